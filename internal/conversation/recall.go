package conversation

import (
	"sort"
	"strings"
	"time"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// RecentTurns returns the last n turns, oldest first.
func RecentTurns(conv *models.ConversationContext, n int) []models.ConversationTurn {
	if conv == nil || n <= 0 {
		return nil
	}
	turns := conv.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]models.ConversationTurn(nil), turns...)
}

// FindSimilar returns the newest turn within window whose intent matches in:
// same scope and type, and equal values in every identifier slot that either
// side populates.
func FindSimilar(conv *models.ConversationContext, in models.Intent, window time.Duration, now time.Time) (*models.ConversationTurn, bool) {
	if conv == nil {
		return nil, false
	}
	cutoff := now.Add(-window)
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		t := conv.Turns[i]
		if t.Timestamp.Before(cutoff) {
			break
		}
		if Similar(t.Intent, in) {
			return &conv.Turns[i], true
		}
	}
	return nil, false
}

// FindReusable returns the newest turn within window whose answer can stand
// in for in: a similar intent asked under the same filters, with every work
// item of the answer still stored.
func FindReusable(conv *models.ConversationContext, in models.Intent, filterKey string, window time.Duration, now time.Time) (*models.ConversationTurn, bool) {
	if conv == nil {
		return nil, false
	}
	cutoff := now.Add(-window)
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		t := conv.Turns[i]
		if t.Timestamp.Before(cutoff) {
			break
		}
		if t.FilterKey == filterKey && !t.Truncated() && t.Response != "" && Similar(t.Intent, in) {
			return &conv.Turns[i], true
		}
	}
	return nil, false
}

// Similar compares two intents slot by slot.
func Similar(a, b models.Intent) bool {
	if a.Scope != b.Scope || a.Type != b.Type {
		return false
	}
	pairs := [][2]string{
		{a.IssueID, b.IssueID},
		{a.UserIdentifier, b.UserIdentifier},
		{a.SprintIdentifier, b.SprintIdentifier},
		{a.ProjectIdentifier, b.ProjectIdentifier},
		{a.TeamIdentifier, b.TeamIdentifier},
		{a.AreaIdentifier, b.AreaIdentifier},
		{a.Priority, b.Priority},
	}
	for _, p := range pairs {
		if !strings.EqualFold(strings.TrimSpace(p[0]), strings.TrimSpace(p[1])) {
			return false
		}
	}
	if !sameSet(a.States, b.States) || !sameSet(a.Types, b.Types) || !sameSet(a.Tags, b.Tags) {
		return false
	}
	if (a.DateRange == nil) != (b.DateRange == nil) {
		return false
	}
	if a.DateRange != nil && *a.DateRange != *b.DateRange {
		return false
	}
	if a.Scope == models.ScopeTitle || a.Scope == models.ScopeDescription || a.Scope == models.ScopeGlobal {
		return sameSet(a.Entities, b.Entities)
	}
	return true
}

// RecentEntities extracts the last mentioned user, project, sprint and issue
// for pronoun resolution. Intent slots win; a turn that returned exactly one
// work item also contributes that item's assignee, iteration and id.
func RecentEntities(conv *models.ConversationContext) models.RecentEntities {
	var out models.RecentEntities
	if conv == nil {
		return out
	}
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		t := conv.Turns[i]
		in := t.Intent
		if out.LastMentionedUser == "" && in.UserIdentifier != "" && !strings.EqualFold(in.UserIdentifier, wiql.MacroMe) {
			out.LastMentionedUser = in.UserIdentifier
		}
		if out.LastMentionedProject == "" && in.ProjectIdentifier != "" {
			out.LastMentionedProject = in.ProjectIdentifier
		}
		if out.LastMentionedSprint == "" && in.SprintIdentifier != "" {
			out.LastMentionedSprint = in.SprintIdentifier
		}
		if out.LastMentionedIssue == "" && in.IssueID != "" {
			out.LastMentionedIssue = in.IssueID
		}
		if len(t.WorkItems) == 1 {
			item := t.WorkItems[0]
			if out.LastMentionedUser == "" && item.AssignedTo != "" {
				out.LastMentionedUser = item.AssignedTo
			}
			if out.LastMentionedSprint == "" && item.IterationPath != "" {
				out.LastMentionedSprint = item.IterationPath
			}
			if out.LastMentionedIssue == "" {
				out.LastMentionedIssue = item.ID
			}
		}
		if out.LastMentionedUser != "" && out.LastMentionedProject != "" && out.LastMentionedSprint != "" && out.LastMentionedIssue != "" {
			break
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	norm := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(strings.TrimSpace(s))
		}
		sort.Strings(out)
		return out
	}
	na, nb := norm(a), norm(b)
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}
