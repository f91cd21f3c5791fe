package synthesizer

import (
	"regexp"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
)

// Pattern is one kind of follow-up request the pipeline can execute.
type Pattern struct {
	Name     string
	Example  string
	Keywords []string
}

// SupportedPatterns is the closed set of follow-ups offered to users.
var SupportedPatterns = []Pattern{
	{Name: "by_state", Example: "Show active items", Keywords: []string{"state", "active", "closed", "resolved", "new items", "open", "in progress", "done"}},
	{Name: "by_type", Example: "Show open bugs", Keywords: []string{"bug", "task", "user stor", "feature", "epic", "type"}},
	{Name: "by_assignee", Example: "Show items assigned to me", Keywords: []string{"assigned", "assignee", "my items", "my work"}},
	{Name: "by_creator", Example: "Show items created by me", Keywords: []string{"created by", "creator", "reported by"}},
	{Name: "by_sprint", Example: "Show items in the current sprint", Keywords: []string{"sprint", "iteration"}},
	{Name: "by_tag", Example: "Show items tagged blocked", Keywords: []string{"tag", "label"}},
	{Name: "by_area", Example: "Show items in the web area", Keywords: []string{"area"}},
	{Name: "title_search", Example: "Find items mentioning login", Keywords: []string{"mention", "title", "containing", "search", "find items"}},
	{Name: "item_lookup", Example: "Show details of work item #123", Keywords: []string{"work item #", "item #", "details of", "related"}},
	{Name: "recent_changes", Example: "Show recently changed items", Keywords: []string{"recent", "changed", "updated"}},
	{Name: "saved_queries", Example: "List saved queries", Keywords: []string{"saved quer"}},
	{Name: "listing", Example: "List sprints", Keywords: []string{"list sprints", "list users", "list projects", "list teams", "list areas"}},
}

var unsupportedPhrase = regexp.MustCompile(`(?i)\b(count of|how many|compare|comparing|comparison|versus|vs\.?|trend across|total number)\b`)

// Examples returns the example phrasing of every supported pattern.
func Examples() []string {
	out := make([]string, 0, len(SupportedPatterns))
	for _, p := range SupportedPatterns {
		out = append(out, p.Example)
	}
	return out
}

// Supported reports whether suggestion matches a supported pattern and asks
// for nothing the pipeline cannot run.
func Supported(suggestion string) bool {
	s := strings.ToLower(strings.TrimSpace(suggestion))
	if s == "" || unsupportedPhrase.MatchString(s) {
		return false
	}
	for _, p := range SupportedPatterns {
		for _, kw := range p.Keywords {
			if strings.Contains(s, kw) {
				return true
			}
		}
	}
	return false
}

// FilterSuggestions keeps supported, distinct suggestions, at most max.
func FilterSuggestions(in []string, max int) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if !Supported(s) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

// CannedSuggestions returns fixed follow-ups for a scope.
func CannedSuggestions(in models.Intent) []string {
	switch in.Scope {
	case models.ScopeIssue, models.ScopeRelation:
		if in.IssueID != "" {
			return []string{"Show related items of work item #" + in.IssueID, "Show items in the current sprint", "Show recently changed items"}
		}
	case models.ScopeSprint, models.ScopeIteration:
		return []string{"Show active bugs in this sprint", "Show items assigned to me in this sprint", "Show recently changed items"}
	case models.ScopeUser, models.ScopeAssignee, models.ScopeCreator:
		return []string{"Show active items assigned to me", "Show items created by me", "Show recently changed items"}
	case models.ScopeProject, models.ScopeTeam, models.ScopeBoard, models.ScopeArea:
		return []string{"List sprints", "Show active bugs", "Show recently changed items"}
	case models.ScopeSavedQuery:
		return []string{"Show items assigned to me", "List sprints"}
	}
	return []string{"Show active bugs", "Show items assigned to me", "Show recently changed items"}
}

// GeneralSuggestions follow answers that needed no work item data.
var GeneralSuggestions = []string{"Show items assigned to me", "Show items in the current sprint", "List sprints"}

// RecoverySuggestions accompany failed responses.
var RecoverySuggestions = []string{"Try rephrasing your question", "Show items assigned to me", "Show recently changed items"}
