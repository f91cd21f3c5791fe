package planner

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/tuannvm/workitem-qa/internal/models"
)

// entrySource adapts metadata entries for fuzzy matching.
type entrySource []models.MetadataEntry

func (s entrySource) String(i int) string {
	if s[i].Path != "" {
		return strings.ToLower(s[i].Path)
	}
	return strings.ToLower(s[i].Name)
}

func (s entrySource) Len() int {
	return len(s)
}

var digitsRegex = regexp.MustCompile(`\d+`)

// Resolve returns the entry best matching name: an exact name, path or last
// path segment first, then the top fuzzy match. Numbers must agree, so
// "Sprint 5" never resolves to "Sprint 15".
func Resolve(name string, entries []models.MetadataEntry) (models.MetadataEntry, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(entries) == 0 {
		return models.MetadataEntry{}, false
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) || strings.EqualFold(e.Path, name) || strings.EqualFold(lastSegment(e.Path), name) {
			return e, true
		}
	}

	want := digitsRegex.FindAllString(name, -1)
	for _, m := range fuzzy.FindFrom(strings.ToLower(name), entrySource(entries)) {
		e := entries[m.Index]
		if len(want) > 0 && !sameNumbers(want, digitsRegex.FindAllString(lastSegment(e.Path)+" "+e.Name, -1)) {
			continue
		}
		return e, true
	}
	return models.MetadataEntry{}, false
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, `\/`)
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// sameNumbers reports whether every number in want appears in got.
func sameNumbers(want, got []string) bool {
	have := map[string]bool{}
	for _, g := range got {
		have[strings.TrimLeft(g, "0")] = true
	}
	for _, w := range want {
		if !have[strings.TrimLeft(w, "0")] {
			return false
		}
	}
	return true
}

func pathOf(e models.MetadataEntry) string {
	if e.Path != "" {
		return e.Path
	}
	return e.Name
}
