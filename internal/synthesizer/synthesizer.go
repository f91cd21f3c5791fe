// Package synthesizer turns evaluated query results into the answer returned
// to the caller.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

const (
	maxSuggestions  = 5
	maxListingLines = 50
)

// ErrNonConforming is returned for a synthesis object without a summary.
var ErrNonConforming = errors.New("synthesis has no summary")

// Input is everything the synthesizer sees of one pipeline run.
type Input struct {
	Query      string
	Intent     models.Intent
	Evaluation models.Evaluation
	Results    models.QueryResults
	History    []models.ConversationTurn
}

// Synthesizer builds responses. The response metadata is left to the caller.
type Synthesizer struct {
	llm         llm.Completer
	temperature float64
	maxTokens   int
}

// New creates a synthesizer backed by c.
func New(c llm.Completer, temperature float64) *Synthesizer {
	return &Synthesizer{llm: c, temperature: temperature, maxTokens: 1500}
}

// Synthesize never fails: every path has a deterministic fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) models.OrchestratedResponse {
	switch {
	case isGeneral(in):
		return s.general(ctx, in, nil)
	case in.Results.MetadataOnly():
		return Listing(in)
	case len(in.Results.WorkItems) == 0:
		return Fallback(in)
	}

	resp, err := s.synthesizeLLM(ctx, in)
	if err != nil {
		log.Warnf("Synthesis fell back to template: %v", err)
		metrics.Fallback("synthesize")
		return Fallback(in)
	}
	return resp
}

// Stream is Synthesize for streamed answers: the answer text is passed to
// onToken as it is produced. Deterministic answers arrive as one token.
// revised is true when the returned summary is not the text already streamed,
// which happens when the completion fails after its first tokens.
func (s *Synthesizer) Stream(ctx context.Context, in Input, onToken func(string) error) (resp models.OrchestratedResponse, revised bool) {
	var streamed strings.Builder
	emit := func(t string) error {
		if t == "" {
			return nil
		}
		streamed.WriteString(t)
		return onToken(t)
	}
	whole := func(resp models.OrchestratedResponse) (models.OrchestratedResponse, bool) {
		if streamed.Len() == 0 {
			_ = emit(resp.Summary)
			return resp, false
		}
		return resp, strings.TrimSpace(streamed.String()) != resp.Summary
	}

	switch {
	case isGeneral(in):
		return whole(s.general(ctx, in, emit))
	case in.Results.MetadataOnly():
		return whole(Listing(in))
	case len(in.Results.WorkItems) == 0:
		return whole(Fallback(in))
	}

	p, err := prompts.Narrative(in.Query, in.Intent, in.Evaluation, in.Results)
	if err != nil {
		return whole(Fallback(in))
	}
	text, err := s.text(ctx, p, emit)
	resp = Fallback(in)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warnf("Streamed synthesis fell back to template: %v", err)
		metrics.Fallback("synthesize")
		return whole(resp)
	}
	resp.Summary = strings.TrimSpace(text)
	return resp, false
}

func isGeneral(in Input) bool {
	return !in.Intent.DataRequired && in.Results.TotalQueries == 0
}

func (s *Synthesizer) synthesizeLLM(ctx context.Context, in Input) (models.OrchestratedResponse, error) {
	if s.llm == nil {
		return models.OrchestratedResponse{}, llm.ErrDisabled
	}
	p, err := prompts.Synthesize(in.Query, in.Intent, in.Evaluation, in.Results, Examples())
	if err != nil {
		return models.OrchestratedResponse{}, err
	}
	obj, err := llm.CompleteJSON(ctx, s.llm, p.Request(s.temperature, s.maxTokens))
	if err != nil {
		return models.OrchestratedResponse{}, err
	}
	return FromJSON(obj, in)
}

// FromJSON coerces an untrusted synthesis object. Suggestions outside the
// supported patterns are dropped and chart data is recomputed from the items.
func FromJSON(obj map[string]interface{}, in Input) (models.OrchestratedResponse, error) {
	summary := strings.TrimSpace(common.GetString(obj, "summary", ""))
	if summary == "" {
		return models.OrchestratedResponse{}, ErrNonConforming
	}
	items := workItems(in.Results)
	resp := models.OrchestratedResponse{
		Success:     true,
		Summary:     summary,
		Analysis:    analysis(common.GetMap(obj, "analysis")),
		RawData:     items,
		Suggestions: FilterSuggestions(common.GetStringSlice(obj, "suggestions"), maxSuggestions),
	}
	if len(resp.Suggestions) == 0 {
		resp.Suggestions = CannedSuggestions(in.Intent)
	}

	var charts []models.Visualization
	for _, v := range common.GetMapSlice(obj, "visualizations") {
		charts = append(charts, models.Visualization{
			Type:  common.GetString(v, "type", ""),
			Title: common.GetString(v, "title", ""),
			Field: common.GetString(v, "field", ""),
		})
	}
	resp.Visualizations = checkVisualizations(charts, items)
	if len(resp.Visualizations) == 0 {
		resp.Visualizations = DefaultVisualizations(items)
	}
	return resp, nil
}

func analysis(obj map[string]interface{}) *models.Analysis {
	if obj == nil {
		return nil
	}
	a := &models.Analysis{
		Insights:        common.GetStringSlice(obj, "insights"),
		Risks:           common.GetStringSlice(obj, "risks"),
		Recommendations: common.GetStringSlice(obj, "recommendations"),
	}
	if m := common.GetMap(obj, "metrics"); len(m) > 0 {
		a.Metrics = make(map[string]string, len(m))
		for k, v := range m {
			if s := common.AsString(v); s != "" {
				a.Metrics[k] = s
			}
		}
	}
	if len(a.Metrics) == 0 && len(a.Insights) == 0 && len(a.Risks) == 0 && len(a.Recommendations) == 0 {
		return nil
	}
	return a
}

// Fallback is the template answer: a count sentence, charts computed from
// the items and canned suggestions for the scope.
func Fallback(in Input) models.OrchestratedResponse {
	items := workItems(in.Results)
	return models.OrchestratedResponse{
		Success:        true,
		Summary:        fallbackSummary(in.Intent, in.Results),
		RawData:        items,
		Suggestions:    CannedSuggestions(in.Intent),
		Visualizations: DefaultVisualizations(items),
	}
}

func fallbackSummary(it models.Intent, r models.QueryResults) string {
	var b strings.Builder
	n := len(r.WorkItems)
	switch {
	case n == 0 && it.Scope == models.ScopeIssue && it.IssueID != "":
		fmt.Fprintf(&b, "Work item #%s was not found or you do not have access to it.", it.IssueID)
	case n == 0:
		fmt.Fprintf(&b, "No work items matched your request%s.", qualifier(it))
	case n == 1:
		w := r.WorkItems[0]
		fmt.Fprintf(&b, "Found 1 work item%s: #%s %s", qualifier(it), w.ID, w.Title)
		if w.State != "" {
			fmt.Fprintf(&b, " (%s)", w.State)
		}
		b.WriteString(".")
	default:
		fmt.Fprintf(&b, "Found %d work items%s.", n, qualifier(it))
		if dist := formatDistribution(Distribution(r.WorkItems, "state")); dist != "" {
			b.WriteString(" By state: " + dist + ".")
		}
	}
	if r.FailedQueries > 0 {
		b.WriteString(" Some queries failed, so the results may be incomplete.")
	}
	return b.String()
}

func qualifier(it models.Intent) string {
	user := it.UserIdentifier
	if user == wiql.MacroMe {
		user = "you"
	}
	switch {
	case it.SprintIdentifier == wiql.MacroCurrentIteration:
		return " in the current sprint"
	case it.SprintIdentifier != "":
		return " in " + it.SprintIdentifier
	case user != "" && it.Scope == models.ScopeCreator:
		return " created by " + user
	case user != "":
		return " assigned to " + user
	case it.AreaIdentifier != "":
		return " in area " + it.AreaIdentifier
	case it.TeamIdentifier != "":
		return " for team " + it.TeamIdentifier
	case len(it.Tags) > 0:
		return " tagged " + strings.Join(it.Tags, ", ")
	case it.ProjectIdentifier != "":
		return " in project " + it.ProjectIdentifier
	}
	return ""
}

// formatDistribution renders counts largest first, ties by name.
func formatDistribution(d map[string]int) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if d[keys[i]] != d[keys[j]] {
			return d[keys[i]] > d[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, d[k]))
	}
	return strings.Join(parts, ", ")
}

func workItems(r models.QueryResults) []models.WorkItem {
	if r.WorkItems == nil {
		return []models.WorkItem{}
	}
	return r.WorkItems
}

// Summarize is the template summary of items with no scope qualifier.
func Summarize(items []models.WorkItem) string {
	return fallbackSummary(models.Intent{}, models.QueryResults{WorkItems: items})
}
