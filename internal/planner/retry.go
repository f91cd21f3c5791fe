package planner

import (
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// relaxOrder lists the filters RetryPlan removes, most constraining first.
var relaxOrder = []string{
	wiql.FieldState,
	wiql.FieldType,
	wiql.FieldTags,
	wiql.FieldPriority,
	wiql.FieldChangedDate,
	wiql.FieldAreaPath,
}

// RetryPlan relaxes the structured queries that failed or came back empty by
// dropping one over-constraining filter each. It reports false when nothing
// can be relaxed, which ends the retry loop instead of re-issuing the same
// plan.
func RetryPlan(previous models.QueryPlan, results models.QueryResults, eval models.Evaluation) (models.QueryPlan, bool) {
	outcome := map[string]models.QueryResult{}
	for _, r := range results.Results {
		outcome[r.QueryID] = r
	}

	next := previous
	next.Queries = make([]models.PlannedQuery, len(previous.Queries))
	copy(next.Queries, previous.Queries)

	relaxed := false
	for i := range next.Queries {
		q := &next.Queries[i]
		if q.Kind != models.KindStructuredQuery {
			continue
		}
		if r, ok := outcome[q.ID]; ok && r.Success && len(r.Items) > 0 {
			continue
		}
		for _, field := range relaxOrder {
			if body, ok := wiql.DropField(q.Query, field); ok {
				q.Query = body
				q.Purpose = trimPurpose(q.Purpose) + " (relaxed " + field + ")"
				relaxed = true
				break
			}
		}
	}
	if !relaxed {
		return previous, false
	}
	next.SuccessCriteria = append(append([]string(nil), previous.SuccessCriteria...), eval.AdditionalQueries...)
	return finalize(next, SourceRetry), true
}

func trimPurpose(p string) string {
	if p == "" {
		return "retry"
	}
	return p
}
