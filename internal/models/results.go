package models

import "time"

// WorkItem is the normalized record of one tracker item. tracker.MapWorkItem
// is the only place raw field names are translated into it.
type WorkItem struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Type          string     `json:"type,omitempty"`
	State         string     `json:"state,omitempty"`
	AssignedTo    string     `json:"assignedTo,omitempty"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	CreatedDate   *time.Time `json:"createdDate,omitempty"`
	ChangedDate   *time.Time `json:"changedDate,omitempty"`
	ClosedDate    *time.Time `json:"closedDate,omitempty"`
	Priority      string     `json:"priority,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	IterationPath string     `json:"iterationPath,omitempty"`
	AreaPath      string     `json:"areaPath,omitempty"`
	StoryPoints   float64    `json:"storyPoints,omitempty"`
	Description   string     `json:"description,omitempty"`
	Relations     []string   `json:"relations,omitempty"`
	URL           string     `json:"url,omitempty"`
}

// QueryResult is the outcome of one planned query.
type QueryResult struct {
	QueryID  string          `json:"queryId"`
	Kind     QueryKind       `json:"kind"`
	Success  bool            `json:"success"`
	Items    []WorkItem      `json:"items,omitempty"`
	Metadata []MetadataEntry `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
	Cached   bool            `json:"cached"`
	CacheKey string          `json:"cacheKey,omitempty"`
	// Skipped marks optional queries that never ran because a dependency
	// failed. They are reported but not counted as failures.
	Skipped bool `json:"skipped,omitempty"`
}

// QueryResults aggregates the results of executing one plan.
type QueryResults struct {
	PlanID            string        `json:"planId"`
	Results           []QueryResult `json:"results"`
	WorkItems         []WorkItem    `json:"workItems"`
	TotalQueries      int           `json:"totalQueries"`
	SuccessfulQueries int           `json:"successfulQueries"`
	FailedQueries     int           `json:"failedQueries"`
	CacheHits         int           `json:"cacheHits"`
	ExternalCalls     int           `json:"externalCalls"`
}

// AllFailed reports whether nothing in the plan succeeded. An empty plan
// counts as a complete failure.
func (r QueryResults) AllFailed() bool {
	return r.SuccessfulQueries == 0
}

// MetadataEntries flattens the metadata entries of all successful results.
func (r QueryResults) MetadataEntries() []MetadataEntry {
	var out []MetadataEntry
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res.Metadata...)
		}
	}
	return out
}

// MetadataOnly reports whether every successful result came from a metadata
// lookup, i.e. the answer is a listing rather than work items.
func (r QueryResults) MetadataOnly() bool {
	seen := false
	for _, res := range r.Results {
		if !res.Success {
			continue
		}
		if res.Kind != KindMetadataLookup {
			return false
		}
		seen = true
	}
	return seen
}

// FullyCached reports whether every executed query was served from cache.
func (r QueryResults) FullyCached() bool {
	return r.TotalQueries > 0 && r.ExternalCalls == 0 && r.CacheHits > 0
}

// DataQuality grades the retrieved data.
type DataQuality string

const (
	QualityPoor      DataQuality = "poor"
	QualityFair      DataQuality = "fair"
	QualityGood      DataQuality = "good"
	QualityExcellent DataQuality = "excellent"
)

// Relevance grades how well the data addresses the question.
type Relevance string

const (
	RelevanceLow    Relevance = "low"
	RelevanceMedium Relevance = "medium"
	RelevanceHigh   Relevance = "high"
)

// Completeness grades whether the data fully answers the question.
type Completeness string

const (
	CompletenessIncomplete Completeness = "incomplete"
	CompletenessPartial    Completeness = "partial"
	CompletenessComplete   Completeness = "complete"
)

// Evaluation is the verdict on a set of query results.
type Evaluation struct {
	DataQuality       DataQuality  `json:"dataQuality"`
	Relevance         Relevance    `json:"relevance"`
	Completeness      Completeness `json:"completeness"`
	NeedsAdditional   bool         `json:"needsAdditional"`
	AdditionalQueries []string     `json:"additionalQueries,omitempty"`
	Insights          []string     `json:"insights,omitempty"`
	Warnings          []string     `json:"warnings,omitempty"`
	Confidence        float64      `json:"confidence"`
	Source            string       `json:"source,omitempty"`
}
