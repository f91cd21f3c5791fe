package synthesizer

import (
	"context"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
)

const generalFallback = "I can answer questions about your work items, for example what is assigned to you, " +
	"what is in the current sprint or the details of a single item."

// general answers questions that need no tracker data. onToken may be nil.
func (s *Synthesizer) general(ctx context.Context, in Input, onToken func(string) error) models.OrchestratedResponse {
	resp := models.OrchestratedResponse{
		Success:     true,
		RawData:     []models.WorkItem{},
		Suggestions: GeneralSuggestions,
	}
	p, err := prompts.General(in.Query, in.History)
	if err == nil {
		var text string
		text, err = s.text(ctx, p, onToken)
		if text = strings.TrimSpace(text); err == nil && text != "" {
			resp.Summary = text
			return resp
		}
	}
	log.Warnf("General answer fell back to canned text: %v", err)
	metrics.Fallback("synthesize")
	resp.Summary = generalFallback
	return resp
}

// text runs a plain-text prompt, streaming through onToken when both the
// callback and a streaming client are available.
func (s *Synthesizer) text(ctx context.Context, p prompts.Prompt, onToken func(string) error) (string, error) {
	if s.llm == nil {
		return "", llm.ErrDisabled
	}
	req := p.Request(s.temperature, s.maxTokens)
	if st, ok := s.llm.(llm.Streamer); ok && onToken != nil {
		return st.Stream(ctx, req, onToken)
	}
	text, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if onToken != nil && text != "" {
		if err := onToken(text); err != nil {
			return text, err
		}
	}
	return text, nil
}
