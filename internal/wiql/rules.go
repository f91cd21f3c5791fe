package wiql

import (
	"fmt"
	"sort"
	"strings"
)

// Severity of a rule violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule identifiers reported in violations.
const (
	RuleEmpty               = "empty_query"
	RuleSyntax              = "syntax"
	RuleParentheses         = "unbalanced_parentheses"
	RuleHierarchySubstring  = "hierarchy_substring"
	RuleMissingOrder        = "missing_order_by"
	RuleFullStatement       = "full_statement"
	RuleStatementSeparator  = "statement_separator"
	RuleLeadingWhere        = "leading_where"
	RuleUnknownField        = "unknown_field"
	RuleUnresolvedReference = "unresolved_reference"
)

// Rules lists every rule Validate checks, in evaluation order.
var Rules = []string{
	RuleEmpty, RuleSyntax, RuleParentheses, RuleFullStatement, RuleStatementSeparator,
	RuleLeadingWhere, RuleHierarchySubstring, RuleMissingOrder, RuleUnknownField,
}

// Violation is one problem found in a query body.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
	Fixable  bool     `json:"fixable"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s (%s): %s", v.Rule, v.Severity, v.Message)
}

// HasErrors reports whether any violation is an error.
func HasErrors(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Unfixable returns the error violations Fix cannot repair.
func Unfixable(vs []Violation) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.Severity == SeverityError && !v.Fixable {
			out = append(out, v)
		}
	}
	return out
}

// Validate lists the violations in a query body. It never mutates q.
func Validate(q string) []Violation {
	if strings.TrimSpace(q) == "" {
		return []Violation{{Rule: RuleEmpty, Severity: SeverityError, Message: "query body is empty"}}
	}
	toks, err := Tokenize(q)
	if err != nil {
		return []Violation{{Rule: RuleSyntax, Severity: SeverityError, Message: err.Error()}}
	}

	var out []Violation
	depth := 0
	for _, t := range toks {
		switch t.Kind {
		case TokLParen:
			depth++
		case TokRParen:
			depth--
		}
		if depth < 0 {
			break
		}
	}
	if depth != 0 {
		out = append(out, Violation{Rule: RuleParentheses, Severity: SeverityError, Message: "parentheses are not balanced"})
	}

	if i := keywordIndex(toks, "SELECT", "FROM"); i >= 0 {
		out = append(out, Violation{
			Rule:     RuleFullStatement,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s is not allowed; the body is a WHERE clause only", strings.ToUpper(toks[i].Text)),
			Fixable:  keywordIndex(toks, "WHERE") > i,
		})
	}
	if n := countKind(toks, TokSemicolon); n > 0 {
		out = append(out, Violation{
			Rule:     RuleStatementSeparator,
			Severity: SeverityError,
			Message:  "statement separators are not allowed",
			Fixable:  onlyTrailingSemicolons(toks),
		})
	}
	if len(toks) > 0 && toks[0].Is("WHERE") {
		out = append(out, Violation{Rule: RuleLeadingWhere, Severity: SeverityWarning, Message: "leading WHERE keyword is implied", Fixable: true})
	}

	for _, span := range hierarchySubstrings(toks) {
		out = append(out, Violation{
			Rule:     RuleHierarchySubstring,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s is a hierarchical path; use UNDER instead of CONTAINS", span.field),
			Field:    span.field,
			Fixable:  true,
		})
	}

	if orderIndex(toks) < 0 {
		out = append(out, Violation{Rule: RuleMissingOrder, Severity: SeverityWarning, Message: "no ORDER BY clause; result order is not stable", Fixable: true})
	}

	seen := map[string]bool{}
	for _, t := range toks {
		if t.Kind == TokField && !IsKnownField(t.Value) && !seen[strings.ToLower(t.Value)] {
			seen[strings.ToLower(t.Value)] = true
			out = append(out, Violation{Rule: RuleUnknownField, Severity: SeverityWarning, Message: fmt.Sprintf("unknown field [%s]", t.Value), Field: t.Value})
		}
		if t.Kind == TokPlaceholder {
			out = append(out, Violation{Rule: RuleUnresolvedReference, Severity: SeverityWarning, Message: fmt.Sprintf("reference %s is resolved at execution time", t.Text)})
		}
	}
	return out
}

// Fix applies the safe rewrites: substring operators on hierarchical fields
// become UNDER, a leading WHERE or SELECT ... WHERE prefix is removed, trailing
// semicolons are dropped and a missing ORDER BY is appended. Identifier values
// are never touched. It returns the rewritten query and a description of each
// change; unfixable input is returned trimmed and unchanged.
func Fix(q string) (string, []string) {
	q = strings.TrimSpace(q)
	toks, err := Tokenize(q)
	if err != nil || len(toks) == 0 {
		return q, nil
	}

	type edit struct {
		start, end int
		text       string
	}
	var edits []edit
	var changes []string

	sel := keywordIndex(toks, "SELECT", "FROM")
	where := keywordIndex(toks, "WHERE")
	switch {
	case sel >= 0 && where > sel:
		edits = append(edits, edit{0, trimRight(q, toks[where].End), ""})
		changes = append(changes, "removed statement prefix before WHERE")
	case where == 0:
		edits = append(edits, edit{0, trimRight(q, toks[0].End), ""})
		changes = append(changes, "removed leading WHERE")
	}

	for _, span := range hierarchySubstrings(toks) {
		edits = append(edits, edit{span.start, span.end, "UNDER"})
		changes = append(changes, fmt.Sprintf("replaced %s with UNDER on [%s]", span.op, span.field))
	}

	if onlyTrailingSemicolons(toks) {
		for i := len(toks) - 1; i >= 0 && toks[i].Kind == TokSemicolon; i-- {
			edits = append(edits, edit{toks[i].Start, toks[i].End, ""})
		}
		if countKind(toks, TokSemicolon) > 0 {
			changes = append(changes, "removed trailing semicolon")
		}
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := q
	for _, e := range edits {
		out = out[:e.start] + e.text + out[e.end:]
	}
	out = strings.TrimSpace(out)

	if !HasOrderBy(out) {
		out = WithOrder(out, DefaultOrderBy)
		changes = append(changes, "appended "+DefaultOrderBy)
	}
	return out, changes
}

type opSpan struct {
	field      string
	op         string
	start, end int
}

// hierarchySubstrings finds CONTAINS, CONTAINS WORDS and their NOT forms
// applied to hierarchical fields. The span covers only the operator words so
// NOT CONTAINS becomes NOT UNDER.
func hierarchySubstrings(toks []Token) []opSpan {
	var out []opSpan
	for i := 0; i < len(toks); i++ {
		if toks[i].Kind != TokField || !IsHierarchical(toks[i].Value) {
			continue
		}
		j := i + 1
		if j < len(toks) && toks[j].Is("NOT") {
			j++
		}
		if j >= len(toks) || !toks[j].Is("CONTAINS") {
			continue
		}
		span := opSpan{field: toks[i].Value, op: "CONTAINS", start: toks[j].Start, end: toks[j].End}
		if j+1 < len(toks) && toks[j+1].Is("WORDS") {
			span.op = "CONTAINS WORDS"
			span.end = toks[j+1].End
		}
		out = append(out, span)
	}
	return out
}

func keywordIndex(toks []Token, kws ...string) int {
	for i, t := range toks {
		for _, kw := range kws {
			if t.Is(kw) {
				return i
			}
		}
	}
	return -1
}

func countKind(toks []Token, kind TokenKind) int {
	n := 0
	for _, t := range toks {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

func onlyTrailingSemicolons(toks []Token) bool {
	trailing := true
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].Kind != TokSemicolon {
			trailing = false
			continue
		}
		if !trailing {
			return false
		}
	}
	return true
}

// trimRight extends end over following whitespace.
func trimRight(q string, end int) int {
	for end < len(q) && (q[end] == ' ' || q[end] == '\t' || q[end] == '\n' || q[end] == '\r') {
		end++
	}
	return end
}
