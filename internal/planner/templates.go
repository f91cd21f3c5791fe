package planner

import (
	"fmt"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// Template builds a plan without the completion service. Issue, relation and
// saved-query scopes have dedicated shapes; every other scope becomes one
// structured query composed from all populated slots, or a metadata listing
// when the scope names a list and nothing else narrows it.
func (p *Planner) Template(in models.Intent, meta *models.TrackerMetadata) (models.QueryPlan, bool) {
	switch {
	case in.Scope == models.ScopeRelation && in.IssueID != "":
		return relationPlan(in.IssueID), true
	case in.IssueID != "" && (in.Scope == models.ScopeIssue || in.Scope == models.ScopeGlobal):
		return lookupPlan(in.IssueID), true
	case in.Scope == models.ScopeSavedQuery:
		return listingPlan(models.MetadataSavedQueries), true
	}

	clauses := p.clauses(in, meta)
	if len(clauses) == 0 {
		if kind, ok := listingKinds[in.Scope]; ok {
			return listingPlan(kind), true
		}
		return models.QueryPlan{}, false
	}
	return models.QueryPlan{
		Queries: []models.PlannedQuery{{
			ID:       "q1",
			Kind:     models.KindStructuredQuery,
			Query:    wiql.WithOrder(wiql.And(clauses...), ""),
			Fields:   wiql.DefaultFields,
			Purpose:  purpose(in),
			Priority: 1,
		}},
		SuccessCriteria: []string{"returns work items matching " + string(in.Scope)},
	}, true
}

// listingKinds maps scopes to the metadata list shown when the scope carries
// no identifier.
var listingKinds = map[models.Scope]models.MetadataKind{
	models.ScopeSprint:    models.MetadataSprints,
	models.ScopeIteration: models.MetadataSprints,
	models.ScopeUser:      models.MetadataUsers,
	models.ScopeAssignee:  models.MetadataUsers,
	models.ScopeProject:   models.MetadataProjects,
	models.ScopeTeam:      models.MetadataTeams,
	models.ScopeBoard:     models.MetadataTeams,
	models.ScopeArea:      models.MetadataAreas,
	models.ScopeTag:       models.MetadataTags,
	models.ScopeState:     models.MetadataStates,
	models.ScopeType:      models.MetadataTypes,
}

func lookupPlan(id string) models.QueryPlan {
	return models.QueryPlan{
		Queries: []models.PlannedQuery{{
			ID:       "q1",
			Kind:     models.KindRestLookup,
			Query:    wiql.Eq(wiql.FieldID, id),
			Purpose:  "fetch work item " + id,
			Priority: 1,
		}},
		SuccessCriteria: []string{"work item " + id + " is returned"},
	}
}

func relationPlan(id string) models.QueryPlan {
	plan := lookupPlan(id)
	plan.Queries = append(plan.Queries, models.PlannedQuery{
		ID:        "q2",
		Kind:      models.KindStructuredQuery,
		Query:     wiql.WithOrder(wiql.Ref(wiql.FieldID)+" IN ({{q1.relations}})", ""),
		Fields:    wiql.DefaultFields,
		Purpose:   "fetch items related to " + id,
		DependsOn: []string{"q1"},
		Priority:  2,
		Optional:  true,
	})
	return plan
}

func listingPlan(kind models.MetadataKind) models.QueryPlan {
	return models.QueryPlan{
		Queries: []models.PlannedQuery{{
			ID:       "q1",
			Kind:     models.KindMetadataLookup,
			Query:    string(kind),
			Purpose:  "list " + strings.ReplaceAll(string(kind), "_", " "),
			Priority: 1,
		}},
	}
}

// clauses renders every populated slot, in a fixed order, as a WHERE
// condition.
func (p *Planner) clauses(in models.Intent, meta *models.TrackerMetadata) []string {
	if meta == nil {
		meta = &models.TrackerMetadata{}
	}
	var out []string
	if in.SprintIdentifier != "" {
		out = append(out, p.iterationClause(in.SprintIdentifier, meta.Sprints))
	}
	if in.ProjectIdentifier != "" {
		out = append(out, wiql.Eq(wiql.FieldTeamProject, in.ProjectIdentifier))
	}
	if in.AreaIdentifier != "" {
		out = append(out, p.areaClause(in.AreaIdentifier, meta.Areas))
	}
	for _, team := range []string{in.TeamIdentifier, in.BoardIdentifier} {
		if team != "" {
			out = append(out, p.teamClause(team, meta))
		}
	}
	if in.UserIdentifier != "" {
		field := wiql.FieldAssignedTo
		if in.Scope == models.ScopeCreator {
			field = wiql.FieldCreatedBy
		}
		out = append(out, wiql.Eq(field, resolveUser(in.UserIdentifier, meta.Users)))
	}
	if len(in.States) > 0 {
		out = append(out, wiql.In(wiql.FieldState, in.States...))
	}
	if len(in.Types) > 0 {
		out = append(out, wiql.In(wiql.FieldType, in.Types...))
	}
	for _, tag := range in.Tags {
		out = append(out, wiql.Contains(wiql.FieldTags, tag))
	}
	if pr := normalizePriority(in.Priority); pr != "" {
		out = append(out, wiql.Eq(wiql.FieldPriority, pr))
	}
	if len(in.Entities) > 0 {
		switch in.Scope {
		case models.ScopeTitle:
			out = append(out, wiql.Contains(wiql.FieldTitle, in.Entities[0]))
		case models.ScopeDescription:
			out = append(out, wiql.Contains(wiql.FieldDescription, in.Entities[0]))
		}
	}
	if dr := in.DateRange; dr != nil {
		if dr.From != "" {
			out = append(out, wiql.Compare(wiql.FieldChangedDate, ">=", dr.From))
		}
		if dr.To != "" {
			out = append(out, wiql.Compare(wiql.FieldChangedDate, "<=", dr.To))
		}
	}
	return out
}

func (p *Planner) iterationClause(sprint string, known []models.MetadataEntry) string {
	if strings.HasPrefix(sprint, "@") {
		return wiql.Eq(wiql.FieldIterationPath, sprint)
	}
	if e, ok := Resolve(sprint, known); ok {
		return wiql.Under(wiql.FieldIterationPath, pathOf(e))
	}
	return wiql.Under(wiql.FieldIterationPath, p.qualify(sprint))
}

func (p *Planner) areaClause(area string, known []models.MetadataEntry) string {
	if e, ok := Resolve(area, known); ok {
		return wiql.Under(wiql.FieldAreaPath, pathOf(e))
	}
	return wiql.Under(wiql.FieldAreaPath, p.qualify(area))
}

// teamClause maps a team or board to its area. A team's default area is
// <project>\<team>, so an area entry with the team's name wins over the bare
// team entry.
func (p *Planner) teamClause(team string, meta *models.TrackerMetadata) string {
	if e, ok := Resolve(team, meta.Areas); ok {
		return wiql.Under(wiql.FieldAreaPath, pathOf(e))
	}
	if e, ok := Resolve(team, meta.Teams); ok {
		team = e.Name
	}
	return wiql.Under(wiql.FieldAreaPath, p.qualify(team))
}

// qualify prefixes bare names with the configured project so UNDER receives
// a rooted path.
func (p *Planner) qualify(name string) string {
	if p.project == "" || strings.ContainsAny(name, `\/`) {
		return name
	}
	return p.project + `\` + name
}

func resolveUser(user string, known []models.MetadataEntry) string {
	if strings.HasPrefix(user, "@") {
		return user
	}
	if e, ok := Resolve(user, known); ok {
		return e.Name
	}
	return user
}

func normalizePriority(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return ""
	case "critical", "highest", "urgent", "blocker":
		return "1"
	case "high":
		return "2"
	case "medium", "normal":
		return "3"
	case "low", "lowest", "minor":
		return "4"
	}
	digits := strings.TrimLeft(raw, "p")
	if d := digitsRegex.FindString(digits); d != "" {
		return d
	}
	return ""
}

func purpose(in models.Intent) string {
	switch in.Scope {
	case models.ScopeSprint, models.ScopeIteration:
		return fmt.Sprintf("work items in %s", in.SprintIdentifier)
	case models.ScopeAssignee, models.ScopeUser:
		return fmt.Sprintf("work items assigned to %s", in.UserIdentifier)
	case models.ScopeCreator:
		return fmt.Sprintf("work items created by %s", in.UserIdentifier)
	}
	return "work items by " + strings.ReplaceAll(string(in.Scope), "_", " ")
}
