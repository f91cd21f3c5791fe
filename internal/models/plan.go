package models

// PlannedQuery is one step of a QueryPlan.
//
// For structured queries Query holds a WHERE-clause body. For rest lookups it
// holds an equality clause on the id field. For metadata lookups it holds the
// metadata kind (see MetadataKind).
type PlannedQuery struct {
	ID        string    `json:"id"`
	Kind      QueryKind `json:"kind"`
	Query     string    `json:"query"`
	Fields    []string  `json:"fields,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
	DependsOn []string  `json:"dependsOn,omitempty"`
	Priority  int       `json:"priority"`
	Optional  bool      `json:"optional"`
}

// QueryPlan is an ordered, dependency-annotated set of queries for one intent.
type QueryPlan struct {
	ID              string         `json:"id"`
	Queries         []PlannedQuery `json:"queries"`
	ValidationRules []string       `json:"validationRules,omitempty"`
	SuccessCriteria []string       `json:"successCriteria,omitempty"`
	// Source is "template", "llm", "fallback" or "retry".
	Source string `json:"source,omitempty"`
}

// Query returns the planned query with the given id.
func (p QueryPlan) Query(id string) (PlannedQuery, bool) {
	for _, q := range p.Queries {
		if q.ID == id {
			return q, true
		}
	}
	return PlannedQuery{}, false
}

// HasKind reports whether any query in the plan has the given kind.
func (p QueryPlan) HasKind(kind QueryKind) bool {
	for _, q := range p.Queries {
		if q.Kind == kind {
			return true
		}
	}
	return false
}

// MetadataKind enumerates the lists the tracker can return.
type MetadataKind string

const (
	MetadataProjects     MetadataKind = "projects"
	MetadataTeams        MetadataKind = "teams"
	MetadataUsers        MetadataKind = "users"
	MetadataStates       MetadataKind = "states"
	MetadataTypes        MetadataKind = "types"
	MetadataTags         MetadataKind = "tags"
	MetadataSprints      MetadataKind = "sprints"
	MetadataAreas        MetadataKind = "areas"
	MetadataSavedQueries MetadataKind = "saved_queries"
)

// AllMetadataKinds lists every metadata kind.
var AllMetadataKinds = []MetadataKind{
	MetadataProjects, MetadataTeams, MetadataUsers, MetadataStates, MetadataTypes,
	MetadataTags, MetadataSprints, MetadataAreas, MetadataSavedQueries,
}

// Valid reports whether k is a known metadata kind.
func (k MetadataKind) Valid() bool {
	for _, known := range AllMetadataKinds {
		if k == known {
			return true
		}
	}
	return false
}

// MetadataEntry is one row of a metadata listing.
type MetadataEntry struct {
	ID    string            `json:"id,omitempty"`
	Name  string            `json:"name"`
	Path  string            `json:"path,omitempty"`
	Kind  MetadataKind      `json:"kind"`
	Extra map[string]string `json:"extra,omitempty"`
}

// TrackerMetadata is the known vocabulary of the tracker, used by the
// planner to resolve fuzzy identifiers.
type TrackerMetadata struct {
	Sprints []MetadataEntry `json:"sprints,omitempty"`
	Users   []MetadataEntry `json:"users,omitempty"`
	Areas   []MetadataEntry `json:"areas,omitempty"`
	Teams   []MetadataEntry `json:"teams,omitempty"`
}

// Empty reports whether no metadata is known.
func (m *TrackerMetadata) Empty() bool {
	return m == nil || len(m.Sprints)+len(m.Users)+len(m.Areas)+len(m.Teams) == 0
}
