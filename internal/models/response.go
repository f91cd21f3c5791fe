package models

// Analysis is the optional structured block attached to a synthesized answer.
type Analysis struct {
	Metrics         map[string]string `json:"metrics,omitempty"`
	Insights        []string          `json:"insights,omitempty"`
	Risks           []string          `json:"risks,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// Visualization is a chart suggestion computed from or validated against the
// raw data.
type Visualization struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Field string         `json:"field"`
	Data  map[string]int `json:"data,omitempty"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	QueriesExecuted int      `json:"queriesExecuted"`
	Confidence      float64  `json:"confidence"`
	ProcessingTime  int64    `json:"processingTimeMs"`
	CacheHit        bool     `json:"cacheHit"`
	Attempts        int      `json:"attempts,omitempty"`
	ConversationID  string   `json:"conversationId,omitempty"`
	Corrected       bool     `json:"corrected,omitempty"`
	Discrepancies   []string `json:"discrepancies,omitempty"`
}

// OrchestratedResponse is what every caller of the pipeline receives.
type OrchestratedResponse struct {
	Success        bool             `json:"success"`
	Summary        string           `json:"summary"`
	Analysis       *Analysis        `json:"analysis,omitempty"`
	RawData        []WorkItem       `json:"rawData"`
	Listing        []MetadataEntry  `json:"listing,omitempty"`
	Suggestions    []string         `json:"suggestions"`
	Visualizations []Visualization  `json:"visualizations,omitempty"`
	Metadata       ResponseMetadata `json:"metadata"`
	Error          string           `json:"error,omitempty"`
}

// Filters are caller-supplied constraints applied to every structured query.
type Filters struct {
	ExcludeStates   []string `json:"excludeStates,omitempty"`
	ExcludeCreators []string `json:"excludeCreators,omitempty"`
	OnlyMine        bool     `json:"onlyMine,omitempty"`
	MaxAgeDays      int      `json:"maxAgeDays,omitempty"`
}

// Empty reports whether no filter is active.
func (f *Filters) Empty() bool {
	return f == nil || (len(f.ExcludeStates) == 0 && len(f.ExcludeCreators) == 0 && !f.OnlyMine && f.MaxAgeDays <= 0)
}

// Options tune a single pipeline run.
type Options struct {
	SkipCache bool `json:"skipCache,omitempty"`
	TimeoutMs int  `json:"timeoutMs,omitempty"`
}

// EventType tags the events of a streamed pipeline run.
type EventType string

const (
	EventToken      EventType = "token"
	EventToolUse    EventType = "tool_use"
	EventVerifying  EventType = "verifying"
	EventCorrection EventType = "correction"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is one element of a streamed response. Exactly one done or error
// event terminates a stream.
type Event struct {
	Type          EventType             `json:"type"`
	Text          string                `json:"text,omitempty"`
	Queries       []string              `json:"queries,omitempty"`
	Discrepancies []string              `json:"discrepancies,omitempty"`
	Response      *OrchestratedResponse `json:"response,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
