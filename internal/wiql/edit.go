package wiql

import "strings"

// Split separates the WHERE body from a trailing ORDER BY clause. The order
// part is returned verbatim, including the ORDER BY keywords.
func Split(q string) (where, order string) {
	q = strings.TrimSpace(q)
	toks, err := Tokenize(q)
	if err != nil {
		if i := strings.Index(strings.ToUpper(q), "ORDER BY"); i >= 0 {
			return strings.TrimSpace(q[:i]), strings.TrimSpace(q[i:])
		}
		return q, ""
	}
	if i := orderIndex(toks); i >= 0 {
		start := toks[i].Start
		return strings.TrimSpace(q[:start]), strings.TrimSpace(q[start:])
	}
	return q, ""
}

// HasOrderBy reports whether q ends with an ORDER BY clause.
func HasOrderBy(q string) bool {
	_, order := Split(q)
	return order != ""
}

// AppendClauses ANDs extra clauses onto the WHERE body of q, keeping any
// ORDER BY clause at the end.
func AppendClauses(q string, clauses ...string) string {
	where, order := Split(q)
	extra := And(clauses...)
	if extra == "" {
		return strings.TrimSpace(q)
	}
	body := And(where, extra)
	if order == "" {
		return body
	}
	return body + " " + order
}

// Conditions splits a WHERE body on its top-level AND operators. A body with
// a top-level OR is returned whole because its parts cannot be removed
// independently.
func Conditions(where string) []string {
	toks, err := Tokenize(where)
	if err != nil || hasTopLevelOrTokens(toks) {
		if strings.TrimSpace(where) == "" {
			return nil
		}
		return []string{strings.TrimSpace(where)}
	}
	var out []string
	depth, start := 0, 0
	for _, t := range toks {
		switch {
		case t.Kind == TokLParen:
			depth++
		case t.Kind == TokRParen:
			depth--
		case depth == 0 && t.Is("AND"):
			if part := strings.TrimSpace(where[start:t.Start]); part != "" {
				out = append(out, part)
			}
			start = t.End
		}
	}
	if part := strings.TrimSpace(where[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

// DropField removes every top-level condition that only references field.
// It reports false when nothing was removed or when removing would leave an
// empty WHERE body.
func DropField(q, field string) (string, bool) {
	where, order := Split(q)
	conds := Conditions(where)
	kept := make([]string, 0, len(conds))
	for _, c := range conds {
		if onlyReferences(c, field) {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == len(conds) || len(kept) == 0 {
		return q, false
	}
	body := strings.Join(kept, " AND ")
	if order != "" {
		body += " " + order
	}
	return body, true
}

// Fields lists the distinct reference names used in q, in order of first use.
func Fields(q string) []string {
	toks, err := Tokenize(q)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range toks {
		if t.Kind != TokField {
			continue
		}
		key := strings.ToLower(t.Value)
		if !seen[key] {
			seen[key] = true
			out = append(out, t.Value)
		}
	}
	return out
}

// ExtractEquality returns the literal compared with = against field.
func ExtractEquality(q, field string) (string, bool) {
	toks, err := Tokenize(q)
	if err != nil {
		return "", false
	}
	for i := 0; i+2 < len(toks); i++ {
		if toks[i].Kind != TokField || !strings.EqualFold(toks[i].Value, field) {
			continue
		}
		if toks[i+1].Kind != TokOp || toks[i+1].Text != "=" {
			continue
		}
		switch toks[i+2].Kind {
		case TokString, TokNumber, TokMacro:
			return toks[i+2].Value, true
		}
	}
	return "", false
}

func onlyReferences(cond, field string) bool {
	fields := Fields(cond)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !strings.EqualFold(f, strings.Trim(field, "[] ")) {
			return false
		}
	}
	return true
}

func orderIndex(toks []Token) int {
	depth := 0
	for i, t := range toks {
		switch t.Kind {
		case TokLParen:
			depth++
		case TokRParen:
			depth--
		}
		if depth == 0 && t.Is("ORDER") && i+1 < len(toks) && toks[i+1].Is("BY") {
			return i
		}
	}
	return -1
}

func hasTopLevelOr(clause string) bool {
	toks, err := Tokenize(clause)
	if err != nil {
		return strings.Contains(strings.ToUpper(clause), " OR ")
	}
	return hasTopLevelOrTokens(toks)
}

func hasTopLevelOrTokens(toks []Token) bool {
	depth := 0
	for _, t := range toks {
		switch {
		case t.Kind == TokLParen:
			depth++
		case t.Kind == TokRParen:
			depth--
		case depth == 0 && t.Is("OR"):
			return true
		}
	}
	return false
}
