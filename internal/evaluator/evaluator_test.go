package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuannvm/workitem-qa/internal/llm"
	"github.com/tuannvm/workitem-qa/internal/models"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(context.Context, llm.Request) (string, error) {
	f.calls++
	return f.reply, f.err
}

func failed(n int) models.QueryResults {
	r := models.QueryResults{TotalQueries: n, FailedQueries: n}
	for i := 0; i < n; i++ {
		r.Results = append(r.Results, models.QueryResult{QueryID: "q", Error: "status 500"})
	}
	return r
}

func withItems(n int) models.QueryResults {
	r := models.QueryResults{TotalQueries: 1, SuccessfulQueries: 1}
	for i := 0; i < n; i++ {
		r.WorkItems = append(r.WorkItems, models.WorkItem{ID: string(rune('1' + i))})
	}
	r.Results = []models.QueryResult{{QueryID: "q1", Success: true, Items: r.WorkItems}}
	return r
}

func TestQuickNotFoundForLookupPlan(t *testing.T) {
	e := New(&fakeCompleter{err: errors.New("must not be called")}, 0.1)
	lookup := models.QueryResults{TotalQueries: 1, SuccessfulQueries: 1, Results: []models.QueryResult{
		{QueryID: "q1", Kind: models.KindRestLookup, Success: true},
	}}

	ev := e.Evaluate(context.Background(), models.Intent{Scope: models.ScopeGlobal, IssueID: "12345"}, lookup)
	assert.Equal(t, models.QualityPoor, ev.DataQuality)
	assert.Equal(t, models.CompletenessIncomplete, ev.Completeness)
	assert.InDelta(t, 0.8, ev.Confidence, 1e-9)
	assert.Equal(t, "quick", ev.Source)

	// an id next to a structured query is not a single-item request
	mixed := lookup
	mixed.Results = append([]models.QueryResult{}, lookup.Results...)
	mixed.Results = append(mixed.Results, models.QueryResult{QueryID: "q2", Kind: models.KindStructuredQuery, Success: true})
	_, ok := Quick(models.Intent{Scope: models.ScopeGlobal, IssueID: "12345"}, mixed)
	assert.False(t, ok)
}

func TestQuickEvaluations(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("must not be called")}
	e := New(fc, 0.1)
	ctx := context.Background()

	ev := e.Evaluate(ctx, models.Intent{Scope: models.ScopeSprint}, failed(2))
	assert.Equal(t, models.QualityPoor, ev.DataQuality)
	assert.Equal(t, models.RelevanceLow, ev.Relevance)
	assert.Equal(t, models.CompletenessIncomplete, ev.Completeness)
	assert.InDelta(t, 0.1, ev.Confidence, 1e-9)
	assert.Len(t, ev.Warnings, 2)

	ev = e.Evaluate(ctx, models.Intent{Scope: models.ScopeIssue, IssueID: "12345"}, withItems(0))
	assert.Equal(t, models.QualityPoor, ev.DataQuality)
	assert.Equal(t, models.CompletenessIncomplete, ev.Completeness)
	assert.InDelta(t, 0.8, ev.Confidence, 1e-9)

	ev = e.Evaluate(ctx, models.Intent{Scope: models.ScopeState, Complexity: models.ComplexitySimple}, withItems(3))
	assert.Equal(t, models.QualityGood, ev.DataQuality)
	assert.Equal(t, models.RelevanceHigh, ev.Relevance)
	assert.Equal(t, models.CompletenessComplete, ev.Completeness)
	assert.InDelta(t, 0.9, ev.Confidence, 1e-9)

	listing := models.QueryResults{TotalQueries: 1, SuccessfulQueries: 1, Results: []models.QueryResult{
		{QueryID: "q1", Kind: models.KindMetadataLookup, Success: true, Metadata: []models.MetadataEntry{{Name: "Sprint 1"}}},
	}}
	ev = e.Evaluate(ctx, models.Intent{Scope: models.ScopeSprint, Complexity: models.ComplexitySimple}, listing)
	assert.Equal(t, models.QualityGood, ev.DataQuality)

	assert.Equal(t, 0, fc.calls)
}

func TestLLMEvaluation(t *testing.T) {
	fc := &fakeCompleter{reply: `{"dataQuality": "Excellent", "relevance": "bogus", "completeness": "complete",
		"needsAdditional": true, "additionalQueries": ["closed bugs"], "insights": ["velocity is flat"], "confidence": 1.7}`}
	ev := New(fc, 0.1).Evaluate(context.Background(), models.Intent{Scope: models.ScopeSprint, Complexity: models.ComplexityAnalytical}, withItems(2))

	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, models.QualityExcellent, ev.DataQuality)
	assert.Equal(t, models.RelevanceMedium, ev.Relevance)
	assert.Equal(t, models.CompletenessComplete, ev.Completeness)
	assert.True(t, ev.NeedsAdditional)
	assert.Equal(t, []string{"closed bugs"}, ev.AdditionalQueries)
	assert.Equal(t, 1.0, ev.Confidence)
	assert.Equal(t, "llm", ev.Source)
}

func TestFallbackEvaluation(t *testing.T) {
	for _, fc := range []*fakeCompleter{{reply: "not json"}, {reply: `{"foo": 1}`}, {err: errors.New("down")}} {
		partial := withItems(2)
		partial.TotalQueries = 2
		partial.FailedQueries = 1
		partial.Results = append(partial.Results, models.QueryResult{QueryID: "q2", Error: "timeout"})

		ev := New(fc, 0.1).Evaluate(context.Background(), models.Intent{Scope: models.ScopeSprint, Complexity: models.ComplexityMultiStep}, partial)
		assert.Equal(t, models.QualityFair, ev.DataQuality)
		assert.Equal(t, models.RelevanceMedium, ev.Relevance)
		assert.Equal(t, models.CompletenessPartial, ev.Completeness)
		assert.InDelta(t, 0.5, ev.Confidence, 1e-9)
		assert.Equal(t, []string{"q2: timeout"}, ev.Warnings)
	}
}

func TestShouldRetry(t *testing.T) {
	good := models.Evaluation{DataQuality: models.QualityGood, Relevance: models.RelevanceHigh, Completeness: models.CompletenessComplete, Confidence: 0.9}
	tests := []struct {
		name    string
		ev      models.Evaluation
		attempt int
		want    bool
	}{
		{"good result", good, 0, false},
		{"poor quality", models.Evaluation{DataQuality: models.QualityPoor, Confidence: 0.9}, 0, true},
		{"incomplete", models.Evaluation{DataQuality: models.QualityGood, Completeness: models.CompletenessIncomplete, Confidence: 0.9}, 1, true},
		{"needs additional with queries", func() models.Evaluation { e := good; e.NeedsAdditional = true; e.AdditionalQueries = []string{"x"}; return e }(), 0, true},
		{"needs additional without queries", func() models.Evaluation { e := good; e.NeedsAdditional = true; return e }(), 0, false},
		{"low confidence", func() models.Evaluation { e := good; e.Confidence = 0.2; return e }(), 0, true},
		{"budget exhausted", models.Evaluation{DataQuality: models.QualityPoor}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.ev, tt.attempt, 2))
		})
	}
}

func TestShouldRetryOnTotalFailureUntilBudget(t *testing.T) {
	ev, ok := Quick(models.Intent{}, failed(3))
	assert.True(t, ok)
	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		assert.True(t, ShouldRetry(ev, attempt, maxRetries), "attempt %d", attempt)
	}
	assert.False(t, ShouldRetry(ev, maxRetries, maxRetries))
}
