package wiql

import (
	"strconv"
	"strings"
)

// Ref wraps a reference name in brackets.
func Ref(field string) string {
	return "[" + strings.Trim(field, "[] ") + "]"
}

// Quote renders a string literal, doubling embedded single quotes.
func Quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Literal renders v as a macro or number when it already is one, otherwise
// as a quoted string.
func Literal(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "@") && len(v) > 1 {
		return v
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil && v != "" {
		return v
	}
	return Quote(v)
}

// Eq renders [field] = value.
func Eq(field, value string) string {
	return Ref(field) + " = " + Literal(value)
}

// NotEq renders [field] <> value.
func NotEq(field, value string) string {
	return Ref(field) + " <> " + Literal(value)
}

// Compare renders [field] <op> value with value passed through unchanged
// when it is a macro expression such as "@Today - 7".
func Compare(field, op, value string) string {
	if strings.HasPrefix(strings.TrimSpace(value), "@") {
		return Ref(field) + " " + op + " " + strings.TrimSpace(value)
	}
	return Ref(field) + " " + op + " " + Literal(value)
}

// In renders [field] IN ('a', 'b'). Values are always quoted.
func In(field string, values ...string) string {
	return Ref(field) + " IN (" + quoteList(values) + ")"
}

// NotIn renders [field] NOT IN ('a', 'b').
func NotIn(field string, values ...string) string {
	return Ref(field) + " NOT IN (" + quoteList(values) + ")"
}

// InNumbers renders [field] IN (1, 2) for numeric ids.
func InNumbers(field string, ids ...string) string {
	return Ref(field) + " IN (" + strings.Join(ids, ", ") + ")"
}

// Contains renders a substring match. Never use it for hierarchical fields.
func Contains(field, value string) string {
	return Ref(field) + " CONTAINS " + Quote(value)
}

// Under renders a hierarchy match on a path field.
func Under(field, path string) string {
	return Ref(field) + " UNDER " + Quote(path)
}

// Today renders the relative-date macro for offsetDays in the past.
func Today(offsetDays int) string {
	if offsetDays <= 0 {
		return MacroToday
	}
	return MacroToday + " - " + strconv.Itoa(offsetDays)
}

// And joins non-empty clauses with AND. Clauses that contain a top-level OR
// are parenthesized so precedence is preserved.
func And(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if hasTopLevelOr(c) {
			c = "(" + c + ")"
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " AND ")
}

// Or joins non-empty clauses with OR inside parentheses.
func Or(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// WithOrder appends order to where. An empty order uses DefaultOrderBy.
func WithOrder(where, order string) string {
	if order == "" {
		order = DefaultOrderBy
	}
	if where == "" {
		return order
	}
	return where + " " + order
}

func quoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			quoted = append(quoted, Quote(v))
		}
	}
	return strings.Join(quoted, ", ")
}
