package jira

import (
	"fmt"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// fieldMap maps WIQL reference names to JQL field names.
var fieldMap = map[string]string{
	strings.ToLower(wiql.FieldID):            "key",
	strings.ToLower(wiql.FieldTitle):         "summary",
	strings.ToLower(wiql.FieldDescription):   "description",
	strings.ToLower(wiql.FieldState):         "status",
	strings.ToLower(wiql.FieldType):          "issuetype",
	strings.ToLower(wiql.FieldAssignedTo):    "assignee",
	strings.ToLower(wiql.FieldCreatedBy):     "reporter",
	strings.ToLower(wiql.FieldCreatedDate):   "created",
	strings.ToLower(wiql.FieldChangedDate):   "updated",
	strings.ToLower(wiql.FieldClosedDate):    "resolutiondate",
	strings.ToLower(wiql.FieldTags):          "labels",
	strings.ToLower(wiql.FieldIterationPath): "sprint",
	strings.ToLower(wiql.FieldAreaPath):      "component",
	strings.ToLower(wiql.FieldTeamProject):   "project",
	strings.ToLower(wiql.FieldPriority):      "priority",
	strings.ToLower(wiql.FieldStoryPoints):   `"Story Points"`,
}

// ADO priorities are 1..4, Jira uses names.
var priorityNames = map[string]string{"1": "Highest", "2": "High", "3": "Medium", "4": "Low"}

// Translator converts WIQL bodies into JQL.
type Translator struct {
	// Project replaces the @Project macro and scopes every query.
	Project string
}

// Translate converts a WIQL body with optional ORDER BY into JQL. Only the
// subset the planner emits is supported; anything else is an error so a
// mistranslated query never runs.
func (tr Translator) Translate(q string) (string, error) {
	toks, err := wiql.Tokenize(q)
	if err != nil {
		return "", err
	}
	var out jqlWriter
	inOrder := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.Kind == wiql.TokLParen:
			out.open()
		case t.Kind == wiql.TokRParen:
			out.close()
		case t.Kind == wiql.TokComma:
			out.comma()
		case t.Is("AND"), t.Is("OR"), t.Is("ASC"), t.Is("DESC"):
			out.word(strings.ToUpper(t.Text))
		case t.Is("NOT"):
			out.word("NOT")
		case t.Is("ORDER") && i+1 < len(toks) && toks[i+1].Is("BY"):
			out.word("ORDER BY")
			inOrder = true
			i++
		case t.Kind == wiql.TokField && inOrder:
			field, err := jqlField(t.Value)
			if err != nil {
				return "", err
			}
			out.word(field)
		case t.Kind == wiql.TokField:
			cond, next, err := tr.condition(toks, i)
			if err != nil {
				return "", err
			}
			out.word(cond)
			i = next - 1
		case t.Kind == wiql.TokPlaceholder:
			return "", fmt.Errorf("unresolved reference %s", t.Text)
		default:
			return "", fmt.Errorf("unsupported token %q at %d", t.Text, t.Start)
		}
	}
	return out.String(), nil
}

// Scoped translates q and restricts it to the translator's project.
func (tr Translator) Scoped(q string) (string, error) {
	jql, err := tr.Translate(q)
	if err != nil {
		return "", err
	}
	if tr.Project == "" || strings.Contains(strings.ToLower(q), strings.ToLower(wiql.FieldTeamProject)) {
		return jql, nil
	}
	where, order := jql, ""
	if i := strings.Index(jql, "ORDER BY"); i >= 0 {
		where, order = strings.TrimSpace(jql[:i]), jql[i:]
	}
	scoped := "project = " + quoteJQL(tr.Project)
	if where != "" {
		scoped += " AND (" + where + ")"
	}
	if order != "" {
		scoped += " " + order
	}
	return scoped, nil
}

// condition translates "[field] op value" starting at toks[i] and returns
// the index of the first token after it.
func (tr Translator) condition(toks []wiql.Token, i int) (string, int, error) {
	field, err := jqlField(toks[i].Value)
	if err != nil {
		return "", 0, err
	}
	j := i + 1
	if j >= len(toks) {
		return "", 0, fmt.Errorf("missing operator after [%s]", toks[i].Value)
	}

	negate := false
	if toks[j].Is("NOT") {
		negate = true
		j++
		if j >= len(toks) {
			return "", 0, fmt.Errorf("dangling NOT after [%s]", toks[i].Value)
		}
	}

	op := toks[j]
	switch {
	case op.Kind == wiql.TokOp:
		value, next, err := tr.value(toks, j+1, field, false)
		if err != nil {
			return "", 0, err
		}
		jqlOp := op.Text
		if jqlOp == "<>" {
			jqlOp = "!="
		}
		if strings.HasSuffix(value, "()") && field == "sprint" {
			jqlOp = map[string]string{"=": "in", "!=": "not in"}[jqlOp]
			if jqlOp == "" {
				return "", 0, fmt.Errorf("unsupported sprint comparison %s", op.Text)
			}
		}
		return field + " " + jqlOp + " " + value, next, nil

	case op.Is("IN"):
		list, next, err := tr.list(toks, j+1, field)
		if err != nil {
			return "", 0, err
		}
		if negate {
			return field + " not in " + list, next, nil
		}
		return field + " in " + list, next, nil

	case op.Is("CONTAINS"):
		next := j + 1
		if next < len(toks) && toks[next].Is("WORDS") {
			next++
		}
		value, after, err := tr.value(toks, next, field, false)
		if err != nil {
			return "", 0, err
		}
		jqlOp := "~"
		if negate {
			jqlOp = "!~"
		}
		// labels only support equality
		if field == "labels" {
			jqlOp = map[bool]string{false: "=", true: "!="}[negate]
		}
		return field + " " + jqlOp + " " + value, after, nil

	case op.Is("UNDER"):
		value, next, err := tr.value(toks, j+1, field, true)
		if err != nil {
			return "", 0, err
		}
		if negate {
			return field + " != " + value, next, nil
		}
		return field + " = " + value, next, nil
	}
	return "", 0, fmt.Errorf("unsupported operator %q for [%s]", op.Text, toks[i].Value)
}

// value translates one literal or macro expression.
func (tr Translator) value(toks []wiql.Token, i int, field string, leaf bool) (string, int, error) {
	if i >= len(toks) {
		return "", 0, fmt.Errorf("missing value for %s", field)
	}
	t := toks[i]
	switch t.Kind {
	case wiql.TokString:
		v := t.Value
		if leaf {
			v = lastSegment(v)
		}
		if field == "priority" {
			if name, ok := priorityNames[v]; ok {
				v = name
			}
		}
		return quoteJQL(v), i + 1, nil
	case wiql.TokNumber:
		if field == "priority" {
			if name, ok := priorityNames[t.Value]; ok {
				return quoteJQL(name), i + 1, nil
			}
		}
		return t.Value, i + 1, nil
	case wiql.TokMacro:
		switch strings.ToLower(t.Value) {
		case "@me":
			return "currentUser()", i + 1, nil
		case "@currentiteration":
			return "openSprints()", i + 1, nil
		case "@project":
			if tr.Project == "" {
				return "", 0, fmt.Errorf("@Project used without a configured project")
			}
			return quoteJQL(tr.Project), i + 1, nil
		case "@today":
			if i+2 < len(toks) && toks[i+1].Kind == wiql.TokOp && (toks[i+1].Text == "-" || toks[i+1].Text == "+") && toks[i+2].Kind == wiql.TokNumber {
				sign := ""
				if toks[i+1].Text == "-" {
					sign = "-"
				}
				return fmt.Sprintf("startOfDay(%s%sd)", sign, toks[i+2].Value), i + 3, nil
			}
			return "startOfDay()", i + 1, nil
		}
		return "", 0, fmt.Errorf("unsupported macro %s", t.Value)
	case wiql.TokPlaceholder:
		return "", 0, fmt.Errorf("unresolved reference %s", t.Text)
	}
	return "", 0, fmt.Errorf("unsupported value %q for %s", t.Text, field)
}

func (tr Translator) list(toks []wiql.Token, i int, field string) (string, int, error) {
	if i >= len(toks) || toks[i].Kind != wiql.TokLParen {
		return "", 0, fmt.Errorf("IN for %s needs a parenthesized list", field)
	}
	var values []string
	j := i + 1
	for j < len(toks) && toks[j].Kind != wiql.TokRParen {
		if toks[j].Kind == wiql.TokComma {
			j++
			continue
		}
		v, next, err := tr.value(toks, j, field, false)
		if err != nil {
			return "", 0, err
		}
		values = append(values, v)
		j = next
	}
	if j >= len(toks) {
		return "", 0, fmt.Errorf("unterminated IN list for %s", field)
	}
	return "(" + strings.Join(values, ", ") + ")", j + 1, nil
}

func jqlField(ref string) (string, error) {
	if f, ok := fieldMap[strings.ToLower(ref)]; ok {
		return f, nil
	}
	return "", fmt.Errorf("field [%s] has no Jira equivalent", ref)
}

func quoteJQL(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// lastSegment reduces "Proj\Sprint 5" to "Sprint 5".
func lastSegment(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 && i < len(p)-1 {
		return p[i+1:]
	}
	return p
}

// jqlWriter joins JQL pieces with single spaces, without padding inside
// parentheses or before commas.
type jqlWriter struct {
	sb      strings.Builder
	noSpace bool
}

func (w *jqlWriter) word(s string) {
	if w.sb.Len() > 0 && !w.noSpace {
		w.sb.WriteByte(' ')
	}
	w.sb.WriteString(s)
	w.noSpace = false
}

func (w *jqlWriter) open() {
	w.word("(")
	w.noSpace = true
}

func (w *jqlWriter) close() {
	w.sb.WriteByte(')')
	w.noSpace = false
}

func (w *jqlWriter) comma() {
	w.sb.WriteByte(',')
	w.noSpace = false
}

func (w *jqlWriter) String() string {
	return w.sb.String()
}
