package executor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_-]+)\.(ids|relations)\s*\}\}`)

// errNoReferences marks a query whose placeholders resolved to nothing.
var errNoReferences = errors.New("referenced queries returned no ids")

// resolveReferences substitutes {{qN.ids}} and {{qN.relations}} with the id
// lists of earlier results.
func resolveReferences(body string, results map[string]models.QueryResult) (string, error) {
	var resolveErr error
	out := placeholderRegex.ReplaceAllStringFunc(body, func(m string) string {
		parts := placeholderRegex.FindStringSubmatch(m)
		r, ok := results[parts[1]]
		if !ok || !r.Success {
			resolveErr = fmt.Errorf("unresolved reference %s", m)
			return m
		}
		var ids []string
		for _, item := range r.Items {
			if parts[2] == "ids" {
				ids = append(ids, item.ID)
			} else {
				ids = append(ids, item.Relations...)
			}
		}
		ids = dedupe(ids)
		if len(ids) == 0 {
			resolveErr = errNoReferences
			return m
		}
		return idList(ids)
	})
	return out, resolveErr
}

func idList(ids []string) string {
	rendered := make([]string, len(ids))
	for i, id := range ids {
		if _, err := strconv.Atoi(id); err == nil {
			rendered[i] = id
		} else {
			rendered[i] = wiql.Quote(id)
		}
	}
	return strings.Join(rendered, ", ")
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0:0]
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
