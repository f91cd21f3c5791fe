package executor

import (
	"sort"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// FilterClauses renders the active filters as WHERE conditions.
func FilterClauses(f *models.Filters) []string {
	if f.Empty() {
		return nil
	}
	var out []string
	if len(f.ExcludeStates) > 0 {
		out = append(out, wiql.NotIn(wiql.FieldState, f.ExcludeStates...))
	}
	if len(f.ExcludeCreators) > 0 {
		out = append(out, wiql.NotIn(wiql.FieldCreatedBy, f.ExcludeCreators...))
	}
	if f.OnlyMine {
		out = append(out, wiql.Eq(wiql.FieldAssignedTo, wiql.MacroMe))
	}
	if f.MaxAgeDays > 0 {
		out = append(out, wiql.Compare(wiql.FieldChangedDate, ">=", wiql.Today(f.MaxAgeDays)))
	}
	return out
}

// MergeFilters combines conversation-wide filters with per-request ones.
// Lists are unioned; the stricter age and OnlyMine win.
func MergeFilters(global, request *models.Filters) *models.Filters {
	if global.Empty() {
		return request
	}
	if request.Empty() {
		return global
	}
	out := &models.Filters{
		ExcludeStates:   union(global.ExcludeStates, request.ExcludeStates),
		ExcludeCreators: union(global.ExcludeCreators, request.ExcludeCreators),
		OnlyMine:        global.OnlyMine || request.OnlyMine,
		MaxAgeDays:      global.MaxAgeDays,
	}
	if request.MaxAgeDays > 0 && (out.MaxAgeDays <= 0 || request.MaxAgeDays < out.MaxAgeDays) {
		out.MaxAgeDays = request.MaxAgeDays
	}
	return out
}

// canonicalFilters serializes filters with lists lowercased and sorted so
// equivalent filters produce the same fingerprint.
func canonicalFilters(f *models.Filters) string {
	if f.Empty() {
		return ""
	}
	norm := models.Filters{
		ExcludeStates:   sortedLower(f.ExcludeStates),
		ExcludeCreators: sortedLower(f.ExcludeCreators),
		OnlyMine:        f.OnlyMine,
		MaxAgeDays:      f.MaxAgeDays,
	}
	return cache.CanonicalJSON(norm)
}

// FilterFingerprint identifies the effective filters. Equivalent filters
// share a fingerprint.
func FilterFingerprint(f *models.Filters) string {
	return cache.Fingerprint(canonicalFilters(f))
}

// CacheKey derives the result key of one query. The body is the resolved
// body before filters are appended; filters contribute their own
// fingerprint.
func CacheKey(planID string, q models.PlannedQuery, body string, f *models.Filters) string {
	return cache.Key("query", planID, q.ID, string(q.Kind),
		cache.Fingerprint(body), FilterFingerprint(f))
}

func sortedLower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			k := strings.ToLower(s)
			if !seen[k] {
				seen[k] = true
				out = append(out, s)
			}
		}
	}
	return out
}
