package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// Plan-level rules in addition to the wiql query rules.
const (
	RuleEmptyPlan       = "empty_plan"
	RuleDuplicateID     = "duplicate_id"
	RuleUnknownDepends  = "unknown_dependency"
	RuleDependencyOrder = "dependency_order"
	RuleInvalidLookup   = "invalid_lookup"
	RuleInvalidMetadata = "invalid_metadata_kind"
)

// Violation is a rule violation attributed to one query of a plan.
type Violation struct {
	QueryID string `json:"queryId,omitempty"`
	wiql.Violation
}

func (v Violation) String() string {
	if v.QueryID == "" {
		return v.Violation.String()
	}
	return v.QueryID + ": " + v.Violation.String()
}

// ValidateQuery lists the violations of one structured query body.
func ValidateQuery(q string) []wiql.Violation {
	return wiql.Validate(q)
}

// FixQuery applies the safe rewrites to one structured query body.
func FixQuery(q string) (string, []string) {
	return wiql.Fix(q)
}

// ValidatePlan checks every query and the dependency graph. It never mutates
// the plan.
func ValidatePlan(plan models.QueryPlan) []Violation {
	if len(plan.Queries) == 0 {
		return []Violation{{Violation: wiql.Violation{Rule: RuleEmptyPlan, Severity: wiql.SeverityError, Message: "plan has no queries"}}}
	}
	var out []Violation
	add := func(id, rule string, sev wiql.Severity, fixable bool, format string, args ...interface{}) {
		out = append(out, Violation{QueryID: id, Violation: wiql.Violation{
			Rule: rule, Severity: sev, Message: fmt.Sprintf(format, args...), Fixable: fixable,
		}})
	}

	priority := map[string]int{}
	for _, q := range plan.Queries {
		if _, dup := priority[q.ID]; dup || q.ID == "" {
			add(q.ID, RuleDuplicateID, wiql.SeverityError, true, "query id %q is empty or repeated", q.ID)
			continue
		}
		priority[q.ID] = q.Priority
	}

	for _, q := range plan.Queries {
		for _, dep := range q.DependsOn {
			p, ok := priority[dep]
			switch {
			case !ok || dep == q.ID:
				add(q.ID, RuleUnknownDepends, wiql.SeverityError, true, "depends on unknown query %q", dep)
			case p > q.Priority:
				add(q.ID, RuleDependencyOrder, wiql.SeverityError, true, "depends on %q which runs later", dep)
			}
		}

		switch q.Kind {
		case models.KindStructuredQuery:
			for _, v := range wiql.Validate(q.Query) {
				out = append(out, Violation{QueryID: q.ID, Violation: v})
			}
		case models.KindRestLookup:
			if _, ok := LookupID(q.Query); !ok {
				add(q.ID, RuleInvalidLookup, wiql.SeverityError, bareIDRegex.MatchString(strings.TrimSpace(q.Query)),
					"lookup needs an equality on [%s]", wiql.FieldID)
			}
		case models.KindMetadataLookup:
			if !models.MetadataKind(q.Query).Valid() {
				_, fixable := metadataAliases[strings.ToLower(strings.TrimSpace(q.Query))]
				add(q.ID, RuleInvalidMetadata, wiql.SeverityError, fixable, "unknown metadata kind %q", q.Query)
			}
		}
	}
	return out
}

var bareIDRegex = regexp.MustCompile(`^#?(?:\d+|[A-Za-z][A-Za-z0-9]+-\d+)$`)

// LookupID extracts the work item id of a rest lookup body.
func LookupID(body string) (string, bool) {
	id, ok := wiql.ExtractEquality(body, wiql.FieldID)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

var metadataAliases = map[string]models.MetadataKind{
	"project": models.MetadataProjects, "team": models.MetadataTeams, "user": models.MetadataUsers,
	"members": models.MetadataUsers, "state": models.MetadataStates, "statuses": models.MetadataStates,
	"type": models.MetadataTypes, "work_item_types": models.MetadataTypes, "tag": models.MetadataTags,
	"labels": models.MetadataTags, "sprint": models.MetadataSprints, "iterations": models.MetadataSprints,
	"iteration": models.MetadataSprints, "area": models.MetadataAreas, "area_paths": models.MetadataAreas,
	"queries": models.MetadataSavedQueries, "saved queries": models.MetadataSavedQueries,
	"saved_query": models.MetadataSavedQueries,
}

// FixPlan repairs what can be repaired safely and returns a description of
// each change. Identifier values are never changed.
func FixPlan(plan models.QueryPlan) (models.QueryPlan, []string) {
	var changes []string
	fixed := plan
	fixed.Queries = make([]models.PlannedQuery, len(plan.Queries))
	copy(fixed.Queries, plan.Queries)

	seen := map[string]bool{}
	for i := range fixed.Queries {
		q := &fixed.Queries[i]
		if q.ID == "" || seen[q.ID] {
			id := fmt.Sprintf("q%d", i+1)
			for seen[id] {
				id += "x"
			}
			changes = append(changes, fmt.Sprintf("renamed query %d to %s", i+1, id))
			q.ID = id
		}
		seen[q.ID] = true
		if q.Priority < 1 {
			q.Priority = 1
		}

		switch q.Kind {
		case models.KindStructuredQuery:
			body, c := wiql.Fix(q.Query)
			q.Query = body
			for _, change := range c {
				changes = append(changes, q.ID+": "+change)
			}
		case models.KindRestLookup:
			if raw := strings.TrimSpace(q.Query); bareIDRegex.MatchString(raw) {
				q.Query = wiql.Eq(wiql.FieldID, strings.TrimPrefix(raw, "#"))
				changes = append(changes, q.ID+": wrapped bare id in an equality")
			}
		case models.KindMetadataLookup:
			raw := strings.ToLower(strings.TrimSpace(q.Query))
			if kind, ok := metadataAliases[raw]; ok {
				q.Query = string(kind)
				changes = append(changes, q.ID+": normalized metadata kind to "+string(kind))
			} else if raw != q.Query && models.MetadataKind(raw).Valid() {
				q.Query = raw
			}
		}
	}

	priority := map[string]int{}
	for _, q := range fixed.Queries {
		priority[q.ID] = q.Priority
	}
	for i := range fixed.Queries {
		q := &fixed.Queries[i]
		var deps []string
		for _, dep := range q.DependsOn {
			p, ok := priority[dep]
			if !ok || dep == q.ID {
				changes = append(changes, fmt.Sprintf("%s: dropped unknown dependency %q", q.ID, dep))
				continue
			}
			if p > q.Priority {
				q.Priority = p
				changes = append(changes, fmt.Sprintf("%s: moved to priority %d after %s", q.ID, p, dep))
			}
			deps = append(deps, dep)
		}
		q.DependsOn = deps
		priority[q.ID] = q.Priority
	}
	return fixed, changes
}

// prune removes queries with errors and, transitively, the queries that
// depend on them.
func prune(plan models.QueryPlan) models.QueryPlan {
	bad := map[string]bool{}
	for _, v := range ValidatePlan(plan) {
		if v.Severity == wiql.SeverityError && v.QueryID != "" {
			bad[v.QueryID] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, q := range plan.Queries {
			if bad[q.ID] {
				continue
			}
			for _, dep := range q.DependsOn {
				if bad[dep] {
					bad[q.ID] = true
					changed = true
				}
			}
		}
	}
	out := plan
	out.Queries = nil
	for _, q := range plan.Queries {
		if !bad[q.ID] {
			out.Queries = append(out.Queries, q)
		}
	}
	return out
}

func hasErrors(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == wiql.SeverityError {
			return true
		}
	}
	return false
}
