// Package decision decides whether answering an intent needs tracker data,
// which query kinds, and whether a recent answer may be reused.
package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/conversation"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
)

// Complexity bounds for Decision.EstimatedComplexity.
const (
	MinComplexity = 1
	MaxComplexity = 10
)

// historyTurns is how much conversation the completion service sees.
const historyTurns = 3

// Maker produces fetch decisions.
type Maker struct {
	llm         llm.Completer
	temperature float64
	maxTokens   int
	window      time.Duration
	now         func() time.Time
}

// NewMaker creates a decision maker. window is the similar-query reuse window.
func NewMaker(c llm.Completer, temperature float64, window time.Duration) *Maker {
	return &Maker{llm: c, temperature: temperature, maxTokens: 400, window: window, now: time.Now}
}

// Decide never fails. Quick decisions bypass the completion service; a failed
// or malformed completion degrades to Fallback.
func (m *Maker) Decide(ctx context.Context, in models.Intent, conv *models.ConversationContext) models.Decision {
	d, ok := Quick(in)
	// an explicit canUseCache from the completion service is final
	ruled := false
	if ok {
		log.Debugf("Quick decision for scope=%s: %s", in.Scope, d.Reasoning)
	} else {
		var err error
		d, ruled, err = m.decideLLM(ctx, in, conversation.RecentTurns(conv, historyTurns))
		if err != nil {
			log.Warnf("Fetch decision fell back to defaults: %v", err)
			metrics.Fallback("decide")
			d, ruled = Fallback(in), false
		}
	}

	if d.RequiresADO && conv != nil && !ruled {
		if _, similar := conversation.FindSimilar(conv, in, m.window, m.now()); similar {
			d.CanUseCache = true
			if d.CacheKey == "" {
				d.CacheKey = IntentKey(in)
			}
		}
	}
	return d
}

// Quick returns the hard-coded decision for the three shortcut cases.
func Quick(in models.Intent) (models.Decision, bool) {
	switch {
	case in.Type == models.IntentQuestion && in.Scope == models.ScopeGlobal && !in.DataRequired:
		return models.Decision{
			RequiresADO:         false,
			QueriesNeeded:       []models.QueryKind{},
			EstimatedComplexity: MinComplexity,
			Reasoning:           "general question without a data requirement",
		}, true

	case in.Scope == models.ScopeIssue && in.IssueID != "":
		return models.Decision{
			RequiresADO:         true,
			QueriesNeeded:       []models.QueryKind{models.KindRestLookup},
			CanUseCache:         true,
			CacheKey:            "issue:" + in.IssueID,
			EstimatedComplexity: MinComplexity,
			Reasoning:           "single work item lookup by id",
		}, true

	case in.Complexity == models.ComplexitySimple && isUserScope(in.Scope):
		return models.Decision{
			RequiresADO:         true,
			QueriesNeeded:       []models.QueryKind{models.KindStructuredQuery},
			CanUseCache:         true,
			CacheKey:            UserKey(in.UserIdentifier, in.States),
			EstimatedComplexity: 2,
			Reasoning:           "simple per-user work item query",
		}, true
	}
	return models.Decision{}, false
}

// UserKey is the reuse key for per-user queries: the user and the state filter.
func UserKey(user string, states []string) string {
	norm := make([]string, 0, len(states))
	for _, s := range states {
		norm = append(norm, strings.ToLower(strings.TrimSpace(s)))
	}
	sort.Strings(norm)
	return fmt.Sprintf("user:%s:state:%s",
		cache.Fingerprint(strings.ToLower(strings.TrimSpace(user))),
		cache.Fingerprint(strings.Join(norm, ",")))
}

// IntentKey fingerprints the identifying slots of an intent.
func IntentKey(in models.Intent) string {
	in.Confidence = 0
	in.Source = ""
	return "intent:" + cache.Fingerprint(cache.CanonicalJSON(in))
}

// Fallback assumes data is needed unless the intent is a plain question with
// no data requirement.
func Fallback(in models.Intent) models.Decision {
	d := models.Decision{
		RequiresADO:         in.DataRequired || in.Type != models.IntentQuestion,
		QueriesNeeded:       []models.QueryKind{},
		EstimatedComplexity: complexityOf(in),
		AnalysisRequired:    analysisFor(in),
		Reasoning:           "conservative default",
	}
	if d.RequiresADO {
		d.AddQueryKind(kindFor(in))
	}
	return d
}

// decideLLM also reports whether the reply ruled on canUseCache.
func (m *Maker) decideLLM(ctx context.Context, in models.Intent, history []models.ConversationTurn) (models.Decision, bool, error) {
	if m.llm == nil {
		return models.Decision{}, false, llm.ErrDisabled
	}
	p, err := prompts.Decide(in, history)
	if err != nil {
		return models.Decision{}, false, err
	}
	obj, err := llm.CompleteJSON(ctx, m.llm, p.Request(m.temperature, m.maxTokens))
	if err != nil {
		return models.Decision{}, false, err
	}
	_, ruled := obj["canUseCache"].(bool)
	return FromJSON(obj, in), ruled, nil
}

// FromJSON coerces an untrusted decision object. Missing or mistyped fields
// take their values from Fallback(in).
func FromJSON(obj map[string]interface{}, in models.Intent) models.Decision {
	def := Fallback(in)
	d := models.Decision{
		RequiresADO:         common.GetBool(obj, "requiresADO", def.RequiresADO),
		QueriesNeeded:       []models.QueryKind{},
		AnalysisRequired:    common.GetStringSlice(obj, "analysisRequired"),
		CanUseCache:         common.GetBool(obj, "canUseCache", false),
		EstimatedComplexity: clampComplexity(common.GetInt(obj, "estimatedComplexity", def.EstimatedComplexity)),
		Reasoning:           common.GetString(obj, "reasoning", ""),
	}
	if d.RequiresADO {
		for _, raw := range common.GetStringSlice(obj, "queriesNeeded") {
			d.AddQueryKind(models.ParseQueryKind(raw))
		}
		if len(d.QueriesNeeded) == 0 {
			d.QueriesNeeded = def.QueriesNeeded
		}
	}
	if d.AnalysisRequired == nil {
		d.AnalysisRequired = def.AnalysisRequired
	}
	return d
}

func isUserScope(s models.Scope) bool {
	return s == models.ScopeUser || s == models.ScopeAssignee || s == models.ScopeCreator
}

func kindFor(in models.Intent) models.QueryKind {
	switch in.Scope {
	case models.ScopeIssue:
		if in.IssueID != "" {
			return models.KindRestLookup
		}
	case models.ScopeSavedQuery:
		return models.KindMetadataLookup
	case models.ScopeProject, models.ScopeTeam:
		if in.ProjectIdentifier == "" && in.TeamIdentifier == "" && len(in.States) == 0 && len(in.Types) == 0 {
			return models.KindMetadataLookup
		}
	}
	return models.KindStructuredQuery
}

func complexityOf(in models.Intent) int {
	switch in.Complexity {
	case models.ComplexityAnalytical:
		return 7
	case models.ComplexityMultiStep:
		return 5
	}
	return 3
}

func analysisFor(in models.Intent) []string {
	switch in.Type {
	case models.IntentAnalysis:
		return []string{"distribution", "trend"}
	case models.IntentSummary:
		return []string{"summary"}
	}
	return nil
}

func clampComplexity(n int) int {
	if n < MinComplexity {
		return MinComplexity
	}
	if n > MaxComplexity {
		return MaxComplexity
	}
	return n
}
