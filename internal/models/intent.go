package models

import "strings"

// IntentType is the coarse category of a user utterance.
type IntentType string

const (
	IntentQuestion IntentType = "question"
	IntentCommand  IntentType = "command"
	IntentAnalysis IntentType = "analysis"
	IntentSummary  IntentType = "summary"
)

// Valid reports whether t is one of the known intent types.
func (t IntentType) Valid() bool {
	switch t {
	case IntentQuestion, IntentCommand, IntentAnalysis, IntentSummary:
		return true
	}
	return false
}

// Scope is the single subject area an intent is about.
type Scope string

const (
	ScopeSprint      Scope = "sprint"
	ScopeUser        Scope = "user"
	ScopeProject     Scope = "project"
	ScopeIssue       Scope = "issue"
	ScopeState       Scope = "state"
	ScopeType        Scope = "type"
	ScopeTag         Scope = "tag"
	ScopePriority    Scope = "priority"
	ScopeTitle       Scope = "title"
	ScopeDescription Scope = "description"
	ScopeDateRange   Scope = "date_range"
	ScopeAssignee    Scope = "assignee"
	ScopeCreator     Scope = "creator"
	ScopeIteration   Scope = "iteration"
	ScopeArea        Scope = "area"
	ScopeRelation    Scope = "relation"
	ScopeTeam        Scope = "team"
	ScopeBoard       Scope = "board"
	ScopeSavedQuery  Scope = "saved_query"
	ScopeGlobal      Scope = "global"
)

// AllScopes lists every scope in a stable order. Prompts use it to describe
// the closed set to the completion service.
var AllScopes = []Scope{
	ScopeSprint, ScopeUser, ScopeProject, ScopeIssue, ScopeState, ScopeType,
	ScopeTag, ScopePriority, ScopeTitle, ScopeDescription, ScopeDateRange,
	ScopeAssignee, ScopeCreator, ScopeIteration, ScopeArea, ScopeRelation,
	ScopeTeam, ScopeBoard, ScopeSavedQuery, ScopeGlobal,
}

// Valid reports whether s is a member of AllScopes.
func (s Scope) Valid() bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}

// ParseScope normalizes free-form scope names ("date-range", "Saved Query")
// and maps anything unknown to ScopeGlobal.
func ParseScope(raw string) Scope {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "issues", "item", "work_item", "workitem", "ticket":
		return ScopeIssue
	case "users", "person", "people":
		return ScopeUser
	case "savedquery", "query", "queries":
		return ScopeSavedQuery
	case "daterange", "date":
		return ScopeDateRange
	}
	s := Scope(norm)
	if s.Valid() {
		return s
	}
	return ScopeGlobal
}

// Complexity describes how much work answering an intent takes.
type Complexity string

const (
	ComplexitySimple     Complexity = "simple"
	ComplexityMultiStep  Complexity = "multi_step"
	ComplexityAnalytical Complexity = "analytical"
)

// ParseComplexity maps free-form values to a Complexity, defaulting to simple.
func ParseComplexity(raw string) Complexity {
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch norm {
	case "multi_step", "multistep", "multi":
		return ComplexityMultiStep
	case "analytical", "analysis", "complex":
		return ComplexityAnalytical
	default:
		return ComplexitySimple
	}
}

// DateRange bounds a query by change date. Values are either ISO dates or
// relative tokens such as "@Today - 14".
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Intent is the structured classification of one user utterance.
type Intent struct {
	Type         IntentType `json:"type"`
	Scope        Scope      `json:"scope"`
	Entities     []string   `json:"entities"`
	DataRequired bool       `json:"dataRequired"`
	Complexity   Complexity `json:"complexity"`
	Confidence   float64    `json:"confidence"`

	SprintIdentifier  string     `json:"sprintIdentifier,omitempty"`
	UserIdentifier    string     `json:"userIdentifier,omitempty"`
	IssueID           string     `json:"issueId,omitempty"`
	ProjectIdentifier string     `json:"projectIdentifier,omitempty"`
	DateRange         *DateRange `json:"dateRange,omitempty"`
	TeamIdentifier    string     `json:"teamIdentifier,omitempty"`
	BoardIdentifier   string     `json:"boardIdentifier,omitempty"`
	AreaIdentifier    string     `json:"areaIdentifier,omitempty"`
	Priority          string     `json:"priority,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	States            []string   `json:"states,omitempty"`
	Types             []string   `json:"types,omitempty"`

	// Source records which classifier path produced the intent
	// ("fast_path", "llm" or "heuristic"). Diagnostic only.
	Source string `json:"source,omitempty"`
}

// RecentEntities carries the most recently mentioned identifiers of a
// conversation so the classifier can resolve pronouns.
type RecentEntities struct {
	LastMentionedUser    string `json:"lastMentionedUser,omitempty"`
	LastMentionedProject string `json:"lastMentionedProject,omitempty"`
	LastMentionedSprint  string `json:"lastMentionedSprint,omitempty"`
	LastMentionedIssue   string `json:"lastMentionedIssue,omitempty"`
}

// Empty reports whether no hint is set.
func (r RecentEntities) Empty() bool {
	return r == RecentEntities{}
}

// QueryKind is the kind of call a planned query makes against the tracker.
type QueryKind string

const (
	KindStructuredQuery QueryKind = "structured_query"
	KindRestLookup      QueryKind = "rest_lookup"
	KindMetadataLookup  QueryKind = "metadata_lookup"
)

// ParseQueryKind maps free-form kind names, defaulting to a structured query.
func ParseQueryKind(raw string) QueryKind {
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch norm {
	case "rest_lookup", "rest", "lookup", "get_item":
		return KindRestLookup
	case "metadata_lookup", "metadata", "list":
		return KindMetadataLookup
	default:
		return KindStructuredQuery
	}
}

// Decision says whether and how external data is fetched for an intent.
type Decision struct {
	RequiresADO         bool        `json:"requiresADO"`
	QueriesNeeded       []QueryKind `json:"queriesNeeded"`
	AnalysisRequired    []string    `json:"analysisRequired,omitempty"`
	CanUseCache         bool        `json:"canUseCache"`
	CacheKey            string      `json:"cacheKey,omitempty"`
	EstimatedComplexity int         `json:"estimatedComplexity"`
	Reasoning           string      `json:"reasoning,omitempty"`
}

// Needs reports whether kind is in QueriesNeeded.
func (d Decision) Needs(kind QueryKind) bool {
	for _, k := range d.QueriesNeeded {
		if k == kind {
			return true
		}
	}
	return false
}

// AddQueryKind inserts kind once, keeping QueriesNeeded a set.
func (d *Decision) AddQueryKind(kind QueryKind) {
	if !d.Needs(kind) {
		d.QueriesNeeded = append(d.QueriesNeeded, kind)
	}
}
