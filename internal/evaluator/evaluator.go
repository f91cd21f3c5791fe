// Package evaluator scores query results against the intent and decides
// whether the pipeline should re-plan.
package evaluator

import (
	"context"
	"errors"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
)

// LowConfidence is the threshold below which an evaluation asks for a retry.
const LowConfidence = 0.3

// ErrNonConforming is returned for an evaluation object without any rubric
// field.
var ErrNonConforming = errors.New("evaluation has no rubric fields")

// Evaluator scores results.
type Evaluator struct {
	llm         llm.Completer
	temperature float64
	maxTokens   int
}

// New creates an evaluator backed by c.
func New(c llm.Completer, temperature float64) *Evaluator {
	return &Evaluator{llm: c, temperature: temperature, maxTokens: 600}
}

// Evaluate never fails. Quick evaluations avoid the completion service and
// a failed completion degrades to Fallback.
func (e *Evaluator) Evaluate(ctx context.Context, in models.Intent, results models.QueryResults) models.Evaluation {
	if ev, ok := Quick(in, results); ok {
		log.Debugf("Quick evaluation: quality=%s confidence=%.2f", ev.DataQuality, ev.Confidence)
		return ev
	}
	ev, err := e.evaluateLLM(ctx, in, results)
	if err != nil {
		log.Warnf("Result evaluation fell back to defaults: %v", err)
		metrics.Fallback("evaluate")
		return Fallback(in, results)
	}
	return ev
}

// Quick handles the three cases that need no judgment: total failure, a
// missing single item, and a simple request that returned data cleanly.
func Quick(in models.Intent, results models.QueryResults) (models.Evaluation, bool) {
	switch {
	case results.AllFailed():
		return models.Evaluation{
			DataQuality:  models.QualityPoor,
			Relevance:    models.RelevanceLow,
			Completeness: models.CompletenessIncomplete,
			Warnings:     failureWarnings(results),
			Confidence:   0.1,
			Source:       "quick",
		}, true

	case singleLookup(in, results) && len(results.WorkItems) == 0:
		return models.Evaluation{
			DataQuality:  models.QualityPoor,
			Relevance:    models.RelevanceLow,
			Completeness: models.CompletenessIncomplete,
			Insights:     []string{"the work item does not exist or is not visible to the caller"},
			Confidence:   0.8,
			Source:       "quick",
		}, true

	case in.Complexity == models.ComplexitySimple && resultCount(results) > 0 && results.FailedQueries == 0:
		return models.Evaluation{
			DataQuality:  models.QualityGood,
			Relevance:    models.RelevanceHigh,
			Completeness: models.CompletenessComplete,
			Confidence:   0.9,
			Source:       "quick",
		}, true
	}
	return models.Evaluation{}, false
}

// singleLookup reports whether results answer a request for one work item:
// the issue scope, or an id whose plan ran nothing but id lookups.
func singleLookup(in models.Intent, results models.QueryResults) bool {
	if in.Scope == models.ScopeIssue {
		return true
	}
	if in.IssueID == "" || len(results.Results) == 0 {
		return false
	}
	for _, r := range results.Results {
		if r.Kind != models.KindRestLookup {
			return false
		}
	}
	return true
}

// Fallback assumes partial success when anything succeeded.
func Fallback(in models.Intent, results models.QueryResults) models.Evaluation {
	if results.AllFailed() {
		ev, _ := Quick(in, results)
		ev.Source = "fallback"
		return ev
	}
	return models.Evaluation{
		DataQuality:  models.QualityFair,
		Relevance:    models.RelevanceMedium,
		Completeness: models.CompletenessPartial,
		Warnings:     failureWarnings(results),
		Confidence:   0.5,
		Source:       "fallback",
	}
}

// ShouldRetry reports whether another plan attempt is warranted. attempt is
// the number of retries already made.
func ShouldRetry(ev models.Evaluation, attempt, maxRetries int) bool {
	if attempt >= maxRetries {
		return false
	}
	return ev.DataQuality == models.QualityPoor ||
		ev.Completeness == models.CompletenessIncomplete ||
		(ev.NeedsAdditional && len(ev.AdditionalQueries) > 0) ||
		ev.Confidence < LowConfidence
}

func (e *Evaluator) evaluateLLM(ctx context.Context, in models.Intent, results models.QueryResults) (models.Evaluation, error) {
	if e.llm == nil {
		return models.Evaluation{}, llm.ErrDisabled
	}
	p, err := prompts.Evaluate(in, results)
	if err != nil {
		return models.Evaluation{}, err
	}
	obj, err := llm.CompleteJSON(ctx, e.llm, p.Request(e.temperature, e.maxTokens))
	if err != nil {
		return models.Evaluation{}, err
	}
	return FromJSON(obj)
}

// FromJSON coerces an untrusted evaluation object. Unknown enum values take
// the middle grade.
func FromJSON(obj map[string]interface{}) (models.Evaluation, error) {
	quality := common.GetString(obj, "dataQuality", "")
	relevance := common.GetString(obj, "relevance", "")
	completeness := common.GetString(obj, "completeness", "")
	if quality == "" && relevance == "" && completeness == "" {
		return models.Evaluation{}, ErrNonConforming
	}
	return models.Evaluation{
		DataQuality:       parseQuality(quality),
		Relevance:         parseRelevance(relevance),
		Completeness:      parseCompleteness(completeness),
		NeedsAdditional:   common.GetBool(obj, "needsAdditional", false),
		AdditionalQueries: common.GetStringSlice(obj, "additionalQueries"),
		Insights:          common.GetStringSlice(obj, "insights"),
		Warnings:          common.GetStringSlice(obj, "warnings"),
		Confidence:        common.Clamp01(common.GetFloat(obj, "confidence", 0.5)),
		Source:            "llm",
	}, nil
}

func parseQuality(s string) models.DataQuality {
	switch q := models.DataQuality(strings.ToLower(strings.TrimSpace(s))); q {
	case models.QualityPoor, models.QualityFair, models.QualityGood, models.QualityExcellent:
		return q
	}
	return models.QualityFair
}

func parseRelevance(s string) models.Relevance {
	switch r := models.Relevance(strings.ToLower(strings.TrimSpace(s))); r {
	case models.RelevanceLow, models.RelevanceMedium, models.RelevanceHigh:
		return r
	}
	return models.RelevanceMedium
}

func parseCompleteness(s string) models.Completeness {
	switch c := models.Completeness(strings.ToLower(strings.TrimSpace(s))); c {
	case models.CompletenessIncomplete, models.CompletenessPartial, models.CompletenessComplete:
		return c
	}
	return models.CompletenessPartial
}

func resultCount(r models.QueryResults) int {
	return len(r.WorkItems) + len(r.MetadataEntries())
}

func failureWarnings(r models.QueryResults) []string {
	var out []string
	for _, res := range r.Results {
		if !res.Success && !res.Skipped && res.Error != "" {
			out = append(out, res.QueryID+": "+res.Error)
		}
	}
	return out
}
