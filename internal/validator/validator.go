// Package validator cross-checks synthesized answers against the work items
// they were built from.
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
	"github.com/tuannvm/workitem-qa/internal/synthesizer"
)

var (
	nothingFound = regexp.MustCompile(`(?i)\b(no (?:work )?items|no results|nothing (?:was )?found|(?:could not|couldn't|did not|didn't) find|no matching|none were found)\b`)
	statedCount  = regexp.MustCompile(`(?i)\b(?:found|there (?:are|is|were|was)|returned|total of)\s+(\d+)\b|\b(\d+)\s+(?:work\s+)?items?\b`)
	referencedID = regexp.MustCompile(`#([A-Za-z][A-Za-z0-9]+-\d+|\d+)\b`)
)

// Result is the outcome of validating one answer.
type Result struct {
	// Suspicious is set when the heuristics flagged the answer.
	Suspicious       bool
	Corrected        bool
	CorrectedSummary string
	Discrepancies    []string
}

// Validator checks answers. A second completion pass runs only for answers
// the heuristics flag.
type Validator struct {
	llm         llm.Completer
	temperature float64
	maxTokens   int
}

// New creates a validator backed by c.
func New(c llm.Completer, temperature float64) *Validator {
	return &Validator{llm: c, temperature: temperature, maxTokens: 800}
}

// Precheck returns the heuristic discrepancies between answer and items.
func Precheck(answer string, items []models.WorkItem) []string {
	var out []string
	if len(items) > 0 && nothingFound.MatchString(answer) {
		out = append(out, fmt.Sprintf("answer says nothing was found but %d work items were retrieved", len(items)))
	}
	if m := statedCount.FindStringSubmatch(answer); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n != len(items) {
			out = append(out, fmt.Sprintf("answer states %d items but %d were retrieved", n, len(items)))
		}
	}
	if len(items) > 0 {
		known := make(map[string]bool, len(items))
		for _, it := range items {
			known[strings.ToUpper(it.ID)] = true
		}
		seen := map[string]bool{}
		for _, m := range referencedID.FindAllStringSubmatch(answer, -1) {
			id := strings.ToUpper(m[1])
			if !known[id] && !seen[id] {
				seen[id] = true
				out = append(out, fmt.Sprintf("answer references #%s which is not in the retrieved data", m[1]))
			}
		}
	}
	return out
}

// Validate checks resp.Summary. When the completion pass is unavailable a
// flagged answer is replaced by the template summary of items.
func (v *Validator) Validate(ctx context.Context, query string, resp models.OrchestratedResponse, items []models.WorkItem) Result {
	flags := Precheck(resp.Summary, items)
	if len(flags) == 0 {
		return Result{}
	}
	log.Debugf("Answer flagged for validation: %s", strings.Join(flags, "; "))

	res, err := v.crossCheck(ctx, query, resp.Summary, items, flags)
	if err != nil {
		log.Warnf("Answer validation fell back to template correction: %v", err)
		metrics.Fallback("validate")
		res = Result{
			Suspicious:       true,
			Corrected:        true,
			CorrectedSummary: synthesizer.Summarize(items),
			Discrepancies:    flags,
		}
	}
	if res.Corrected {
		metrics.Corrections.Inc()
	}
	return res
}

func (v *Validator) crossCheck(ctx context.Context, query, answer string, items []models.WorkItem, flags []string) (Result, error) {
	if v.llm == nil {
		return Result{}, llm.ErrDisabled
	}
	p, err := prompts.Validate(query, answer, items, flags)
	if err != nil {
		return Result{}, err
	}
	obj, err := llm.CompleteJSON(ctx, v.llm, p.Request(v.temperature, v.maxTokens))
	if err != nil {
		return Result{}, err
	}
	return FromJSON(obj, flags)
}

// FromJSON coerces a cross-check object. An inaccurate verdict without a
// corrected answer is treated as no verdict.
func FromJSON(obj map[string]interface{}, flags []string) (Result, error) {
	if _, ok := obj["accurate"]; !ok {
		return Result{}, fmt.Errorf("validation has no verdict")
	}
	if common.GetBool(obj, "accurate", false) {
		return Result{Suspicious: true}, nil
	}
	corrected := strings.TrimSpace(common.GetString(obj, "correctedAnswer", ""))
	if corrected == "" {
		return Result{}, fmt.Errorf("inaccurate answer without correction")
	}
	discrepancies := common.GetStringSlice(obj, "discrepancies")
	if len(discrepancies) == 0 {
		discrepancies = flags
	}
	return Result{
		Suspicious:       true,
		Corrected:        true,
		CorrectedSummary: corrected,
		Discrepancies:    discrepancies,
	}, nil
}

// Apply returns resp with the correction applied.
func (r Result) Apply(resp models.OrchestratedResponse) models.OrchestratedResponse {
	if !r.Corrected {
		return resp
	}
	resp.Summary = r.CorrectedSummary
	resp.Metadata.Corrected = true
	resp.Metadata.Discrepancies = r.Discrepancies
	return resp
}
