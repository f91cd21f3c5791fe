package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// HeuristicConfidence is the confidence of every keyword-based intent.
const HeuristicConfidence = 0.5

var (
	hashIDRegex    = regexp.MustCompile(`#(\d+)\b`)
	keywordIDRegex = regexp.MustCompile(`(?i)\b(?:item|bug|task|issue|ticket|story|id|number)\s*#?(\d{2,})\b`)
	bareIDRegex    = regexp.MustCompile(`\b(\d{3,})\b(?:\s+(days?|weeks?|months?|hours?|items?))?`)
	jiraKeyRegex   = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

	lastDaysRegex  = regexp.MustCompile(`(?i)\b(?:last|past|previous)\s+(\d+)\s+(day|week|month)s?\b`)
	sprintRegex    = regexp.MustCompile(`(?i)\b(?:sprint|iteration)\s+([A-Za-z0-9][\w.\-\\/]*(?:\s+\d+)?)`)
	userRegex      = regexp.MustCompile(`\b((?i:assigned to|owned by|created by|reported by|opened by))\s+([A-Za-z@][\w.@'\-]*(?:\s+[A-Z][\w'\-]*)?)`)
	projectRegex   = regexp.MustCompile(`(?i)\bproject\s+([A-Za-z0-9][\w\-]*)`)
	teamRegex      = regexp.MustCompile(`(?i)\bteam\s+([A-Za-z0-9][\w\-]*)`)
	tagRegex       = regexp.MustCompile(`(?i)\b(?:tagged|tag|label(?:led)?)\s+(?:with\s+)?["']?([\w\-]+)`)
	priorityRegex  = regexp.MustCompile(`(?i)\b(?:priority\s+(\d)|p([1-4]))\b`)
	titleRegex     = regexp.MustCompile(`(?i)\b(?:titled|called|named|about|mentioning|containing)\s+["']?([^"'?]+?)["']?(?:\?|$)`)
	pronounRegex   = regexp.MustCompile(`(?i)\b(he|she|they|him|her|them|his|hers|their)\b`)
	thatSprint     = regexp.MustCompile(`(?i)\b(that|the same|same)\s+(sprint|iteration)\b`)
	thatProject    = regexp.MustCompile(`(?i)\b(that|the same|same)\s+project\b`)
	thatItem       = regexp.MustCompile(`(?i)\b(that|the same|this)\s+(item|bug|task|issue|ticket|story)\b`)
	questionPrefix = regexp.MustCompile(`(?i)^(what|which|who|whom|whose|how|when|where|why|is|are|do|does|did|can|could|should|will|would|has|have)\b`)
	commandPrefix  = regexp.MustCompile(`(?i)^(show|list|find|get|give|display|fetch|search|open|pull)\b`)
	meRegex        = regexp.MustCompile(`(?i)\b(me|my|mine|myself)\b`)
	showMeRegex    = regexp.MustCompile(`(?i)\b(show|give|tell|get|send|find|list|let)\s+me\b`)
	currentSprint  = regexp.MustCompile(`(?i)\b(current|this|active)\s+(sprint|iteration)\b`)
	analysisWords  = regexp.MustCompile(`\b(analy|trend|compare|velocity|burndown|throughput)`)
)

// stateWords maps lowercase phrases to canonical state names. Longer phrases
// come first so "in progress" wins over "progress".
var stateWords = []struct{ phrase, state string }{
	{"in progress", "In Progress"},
	{"to do", "To Do"},
	{"todo", "To Do"},
	{"active", "Active"},
	{"new", "New"},
	{"closed", "Closed"},
	{"resolved", "Resolved"},
	{"done", "Done"},
	{"removed", "Removed"},
	{"blocked", "Blocked"},
}

var typeWords = []struct{ phrase, typ string }{
	{"user stories", "User Story"},
	{"user story", "User Story"},
	{"stories", "User Story"},
	{"story", "User Story"},
	{"test cases", "Test Case"},
	{"test case", "Test Case"},
	{"bugs", "Bug"},
	{"bug", "Bug"},
	{"tasks", "Task"},
	{"task", "Task"},
	{"features", "Feature"},
	{"feature", "Feature"},
	{"epics", "Epic"},
	{"epic", "Epic"},
}

var workWords = regexp.MustCompile(`(?i)\b(items?|bugs?|tasks?|stor(y|ies)|tickets?|issues?|features?|epics?|backlog|sprints?|assigned|work)\b`)

// Heuristic classifies text with keyword rules only. It never fails.
func Heuristic(text string, hints models.RecentEntities) models.Intent {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	in := models.Intent{
		Type:         heuristicType(trimmed, lower),
		DataRequired: true,
		Confidence:   HeuristicConfidence,
		Source:       "heuristic",
	}

	in.IssueID = findIssueID(trimmed)
	in.States = matchWords(lower, stateWords)
	in.Types = matchTypes(lower)

	if m := lastDaysRegex.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "week":
			n *= 7
		case "month":
			n *= 30
		}
		in.DateRange = &models.DateRange{From: wiql.Today(n)}
	} else if strings.Contains(lower, "this week") {
		in.DateRange = &models.DateRange{From: wiql.Today(7)}
	} else if strings.Contains(lower, "yesterday") {
		in.DateRange = &models.DateRange{From: wiql.Today(1)}
	} else if strings.Contains(lower, "today") {
		in.DateRange = &models.DateRange{From: wiql.Today(0)}
	}

	userVerb := ""
	if m := userRegex.FindStringSubmatch(trimmed); m != nil {
		userVerb = strings.ToLower(m[1])
		in.UserIdentifier = normalizeUser(m[2])
	} else if meRegex.MatchString(showMeRegex.ReplaceAllString(lower, " ")) && workWords.MatchString(lower) {
		in.UserIdentifier = wiql.MacroMe
	}
	if m := sprintRegex.FindStringSubmatch(trimmed); m != nil && !isFiller(m[1]) {
		in.SprintIdentifier = normalizeSprint(m[1])
		if _, err := strconv.Atoi(in.SprintIdentifier); err == nil {
			in.SprintIdentifier = "Sprint " + in.SprintIdentifier
		}
	} else if currentSprint.MatchString(lower) {
		in.SprintIdentifier = wiql.MacroCurrentIteration
	}
	if m := projectRegex.FindStringSubmatch(trimmed); m != nil && !isFiller(m[1]) {
		in.ProjectIdentifier = m[1]
	}
	if m := teamRegex.FindStringSubmatch(trimmed); m != nil && !isFiller(m[1]) {
		in.TeamIdentifier = m[1]
	}
	if m := tagRegex.FindStringSubmatch(trimmed); m != nil {
		in.Tags = []string{m[1]}
	}
	if m := priorityRegex.FindStringSubmatch(lower); m != nil {
		in.Priority = m[1] + m[2]
	}
	titleText := ""
	if m := titleRegex.FindStringSubmatch(trimmed); m != nil {
		titleText = strings.TrimSpace(m[1])
	}

	ApplyHints(&in, trimmed, hints)

	switch {
	case in.IssueID != "":
		in.Scope = models.ScopeIssue
	case strings.Contains(lower, "saved quer") || strings.Contains(lower, "my queries"):
		in.Scope = models.ScopeSavedQuery
	case in.SprintIdentifier != "" || strings.Contains(lower, "sprint"):
		in.Scope = models.ScopeSprint
	case strings.Contains(lower, "iteration"):
		in.Scope = models.ScopeIteration
	case strings.HasPrefix(userVerb, "created") || strings.HasPrefix(userVerb, "reported") || strings.HasPrefix(userVerb, "opened"):
		in.Scope = models.ScopeCreator
	case in.UserIdentifier != "":
		in.Scope = models.ScopeAssignee
	case in.ProjectIdentifier != "" || strings.Contains(lower, "project"):
		in.Scope = models.ScopeProject
	case in.TeamIdentifier != "" || strings.Contains(lower, "team"):
		in.Scope = models.ScopeTeam
	case strings.Contains(lower, "board"):
		in.Scope = models.ScopeBoard
	case strings.Contains(lower, "area"):
		in.Scope = models.ScopeArea
	case len(in.Tags) > 0:
		in.Scope = models.ScopeTag
	case in.Priority != "":
		in.Scope = models.ScopePriority
	case titleText != "":
		in.Scope = models.ScopeTitle
		in.Entities = append(in.Entities, titleText)
	case in.DateRange != nil:
		in.Scope = models.ScopeDateRange
	case len(in.States) > 0:
		in.Scope = models.ScopeState
	case len(in.Types) > 0:
		in.Scope = models.ScopeType
	default:
		in.Scope = models.ScopeGlobal
	}

	for _, e := range []string{in.IssueID, in.SprintIdentifier, in.UserIdentifier, in.ProjectIdentifier, in.TeamIdentifier} {
		if e != "" {
			in.Entities = append(in.Entities, e)
		}
	}
	in.Entities = append(in.Entities, in.Tags...)

	if in.Scope == models.ScopeGlobal && len(in.States) == 0 && len(in.Types) == 0 &&
		in.DateRange == nil && !workWords.MatchString(lower) {
		in.DataRequired = false
	}

	switch {
	case in.Type == models.IntentAnalysis:
		in.Complexity = models.ComplexityAnalytical
	case filledSlots(in) > 2:
		in.Complexity = models.ComplexityMultiStep
	default:
		in.Complexity = models.ComplexitySimple
	}
	return in
}

// ApplyHints resolves pronouns and "that sprint"-style back references with
// the conversation's recent entities. Slots that are already set are kept.
func ApplyHints(in *models.Intent, text string, hints models.RecentEntities) {
	if hints.Empty() {
		return
	}
	if in.UserIdentifier == "" && hints.LastMentionedUser != "" && pronounRegex.MatchString(text) {
		in.UserIdentifier = hints.LastMentionedUser
	}
	if in.SprintIdentifier == "" && hints.LastMentionedSprint != "" && thatSprint.MatchString(text) {
		in.SprintIdentifier = hints.LastMentionedSprint
	}
	if in.ProjectIdentifier == "" && hints.LastMentionedProject != "" && thatProject.MatchString(text) {
		in.ProjectIdentifier = hints.LastMentionedProject
	}
	if in.IssueID == "" && hints.LastMentionedIssue != "" && thatItem.MatchString(text) {
		in.IssueID = hints.LastMentionedIssue
	}
}

func heuristicType(text, lower string) models.IntentType {
	switch {
	case strings.Contains(lower, "summar"):
		return models.IntentSummary
	case analysisWords.MatchString(lower):
		return models.IntentAnalysis
	case questionPrefix.MatchString(text) || strings.HasSuffix(text, "?"):
		return models.IntentQuestion
	case commandPrefix.MatchString(text):
		return models.IntentCommand
	}
	return models.IntentQuestion
}

func findIssueID(text string) string {
	if m := jiraKeyRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := hashIDRegex.FindStringSubmatch(text); m != nil && len(m[1]) >= 2 {
		return m[1]
	}
	if m := keywordIDRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	for _, m := range bareIDRegex.FindAllStringSubmatch(text, -1) {
		if m[2] == "" {
			return m[1]
		}
	}
	return ""
}

func matchWords(lower string, words []struct{ phrase, state string }) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range words {
		if containsWord(lower, w.phrase) && !seen[w.state] {
			seen[w.state] = true
			out = append(out, w.state)
			lower = strings.ReplaceAll(lower, w.phrase, " ")
		}
	}
	return out
}

func matchTypes(lower string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range typeWords {
		if containsWord(lower, w.phrase) && !seen[w.typ] {
			seen[w.typ] = true
			out = append(out, w.typ)
			lower = strings.ReplaceAll(lower, w.phrase, " ")
		}
	}
	return out
}

func containsWord(lower, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		before := start == 0 || !isWordByte(lower[start-1])
		after := end == len(lower) || !isWordByte(lower[end])
		if before && after {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// isFiller rejects words that follow "sprint"/"project" in ordinary phrasing.
func isFiller(s string) bool {
	switch strings.ToLower(strings.Fields(s)[0]) {
	case "is", "are", "was", "the", "a", "an", "and", "or", "for", "with", "in", "of", "to", "items", "work", "status", "board", "backlog", "so", "has", "have", "that", "this", "i", "me", "we":
		return true
	}
	return false
}

func filledSlots(in models.Intent) int {
	n := 0
	for _, s := range []string{in.IssueID, in.SprintIdentifier, in.UserIdentifier, in.ProjectIdentifier, in.TeamIdentifier, in.Priority} {
		if s != "" {
			n++
		}
	}
	if len(in.States) > 0 {
		n++
	}
	if len(in.Types) > 0 {
		n++
	}
	if len(in.Tags) > 0 {
		n++
	}
	if in.DateRange != nil {
		n++
	}
	return n
}
