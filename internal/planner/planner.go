// Package planner turns an intent and fetch decision into a validated,
// dependency-annotated query plan.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// ErrNonConforming is returned when a drafted plan has no usable queries.
var ErrNonConforming = errors.New("plan draft has no queries")

// Plan sources recorded on QueryPlan.Source.
const (
	SourceTemplate = "template"
	SourceLLM      = "llm"
	SourceFallback = "fallback"
	SourceRetry    = "retry"
	SourceNone     = "none"
)

// draftRounds bounds how often a rejected draft is sent back with feedback.
const draftRounds = 2

// Planner builds query plans.
type Planner struct {
	llm         llm.Completer
	temperature float64
	maxTokens   int
	project     string
}

// New creates a planner. project qualifies bare area and iteration names.
func New(c llm.Completer, temperature float64, project string) *Planner {
	return &Planner{llm: c, temperature: temperature, maxTokens: 1200, project: project}
}

// Plan never fails: templates are tried first, then a completion-service
// draft that is fixed and revalidated, then FallbackPlan.
func (p *Planner) Plan(ctx context.Context, in models.Intent, d models.Decision, meta *models.TrackerMetadata) models.QueryPlan {
	if !d.RequiresADO {
		return finalize(models.QueryPlan{}, SourceNone)
	}
	if plan, ok := p.Template(in, meta); ok {
		log.Debugf("Planned scope=%s from template", in.Scope)
		return finalize(plan, SourceTemplate)
	}

	plan, err := p.draft(ctx, in, d, meta)
	if err != nil {
		log.Warnf("Query planning fell back to default plan: %v", err)
		metrics.Fallback("plan")
		return FallbackPlan(in)
	}
	return plan
}

// draft asks the completion service for a plan, feeding validation problems
// back once before pruning invalid queries.
func (p *Planner) draft(ctx context.Context, in models.Intent, d models.Decision, meta *models.TrackerMetadata) (models.QueryPlan, error) {
	if p.llm == nil {
		return models.QueryPlan{}, llm.ErrDisabled
	}
	var (
		feedback []string
		last     models.QueryPlan
		lastErr  error
	)
	for round := 0; round < draftRounds; round++ {
		pr, err := prompts.Plan(in, d, meta, feedback)
		if err != nil {
			return models.QueryPlan{}, err
		}
		obj, err := llm.CompleteJSON(ctx, p.llm, pr.Request(p.temperature, p.maxTokens))
		if err != nil {
			lastErr = err
			continue
		}
		plan, err := FromJSON(obj)
		if err != nil {
			lastErr = err
			continue
		}
		plan, changes := FixPlan(plan)
		for _, c := range changes {
			log.Debugf("Plan fix: %s", c)
		}
		violations := ValidatePlan(plan)
		if !hasErrors(violations) {
			return finalize(plan, SourceLLM), nil
		}
		last, lastErr = plan, fmt.Errorf("draft rejected: %s", violations[0])
		feedback = feedback[:0]
		for _, v := range violations {
			if v.Severity == wiql.SeverityError {
				feedback = append(feedback, v.String())
			}
		}
	}

	if pruned := prune(last); len(pruned.Queries) > 0 {
		log.Warnf("Dropped invalid queries from draft plan: %v", lastErr)
		return finalize(pruned, SourceLLM), nil
	}
	if lastErr == nil {
		lastErr = ErrNonConforming
	}
	return models.QueryPlan{}, lastErr
}

// FromJSON coerces an untrusted plan object. Queries without a body are
// dropped; every other field defaults.
func FromJSON(obj map[string]interface{}) (models.QueryPlan, error) {
	var plan models.QueryPlan
	for i, q := range common.GetMapSlice(obj, "queries") {
		body, _ := common.GetStringValue(q, "query", "queryBody", "wiql", "body")
		if body == "" {
			continue
		}
		pq := models.PlannedQuery{
			ID:        common.GetString(q, "id", fmt.Sprintf("q%d", i+1)),
			Kind:      models.ParseQueryKind(common.GetString(q, "kind", "")),
			Query:     body,
			Fields:    common.GetStringSlice(q, "fields"),
			Purpose:   common.GetString(q, "purpose", ""),
			DependsOn: common.GetStringSlice(q, "dependsOn"),
			Priority:  common.GetInt(q, "priority", 1),
			Optional:  common.GetBool(q, "optional", false),
		}
		plan.Queries = append(plan.Queries, pq)
	}
	if len(plan.Queries) == 0 {
		return models.QueryPlan{}, ErrNonConforming
	}
	plan.ValidationRules = common.GetStringSlice(obj, "validationRules")
	plan.SuccessCriteria = common.GetStringSlice(obj, "successCriteria")
	return plan, nil
}

// FallbackPlan is the deterministic last resort: the intent's slots when it
// has any, else a title search over its entities, else recent changes.
func FallbackPlan(in models.Intent) models.QueryPlan {
	if plan, ok := (&Planner{}).Template(in, nil); ok {
		return finalize(plan, SourceFallback)
	}
	body := wiql.Compare(wiql.FieldChangedDate, ">=", wiql.Today(14))
	purpose := "recently changed work items"
	if len(in.Entities) > 0 {
		term := strings.Join(in.Entities, " ")
		body = wiql.Contains(wiql.FieldTitle, term)
		purpose = "title search for " + term
	}
	return finalize(models.QueryPlan{
		Queries: []models.PlannedQuery{{
			ID:       "q1",
			Kind:     models.KindStructuredQuery,
			Query:    wiql.WithOrder(body, ""),
			Fields:   wiql.DefaultFields,
			Purpose:  purpose,
			Priority: 1,
		}},
	}, SourceFallback)
}

// PlanID derives a stable id from the queries, so identical plans share
// cache entries.
func PlanID(queries []models.PlannedQuery) string {
	return "plan-" + cache.Fingerprint(cache.CanonicalJSON(queries))
}

func finalize(plan models.QueryPlan, source string) models.QueryPlan {
	if plan.Queries == nil {
		plan.Queries = []models.PlannedQuery{}
	}
	for i := range plan.Queries {
		if plan.Queries[i].Kind != models.KindMetadataLookup && len(plan.Queries[i].Fields) == 0 {
			plan.Queries[i].Fields = wiql.DefaultFields
		}
	}
	plan.ID = PlanID(plan.Queries)
	plan.Source = source
	if len(plan.ValidationRules) == 0 {
		plan.ValidationRules = wiql.Rules
	}
	return plan
}
