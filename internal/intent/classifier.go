// Package intent turns free text into a structured models.Intent through a
// slash-command fast path, the completion service, or keyword heuristics.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
)

// ErrNonConforming is returned when the completion service answered without
// the required classification fields.
var ErrNonConforming = errors.New("classification response missing type and scope")

// Classifier classifies user utterances.
type Classifier struct {
	llm         llm.Completer
	temperature float64
	maxTokens   int
}

// NewClassifier creates a classifier backed by c.
func NewClassifier(c llm.Completer, temperature float64) *Classifier {
	return &Classifier{llm: c, temperature: temperature, maxTokens: 500}
}

// Classify never fails: slash commands bypass the completion service, and
// any completion failure degrades to Heuristic.
func (c *Classifier) Classify(ctx context.Context, text string, hints models.RecentEntities, history []models.ConversationTurn) models.Intent {
	if in, ok := ParseCommand(text); ok {
		log.Debugf("Fast-path command classified as scope=%s", in.Scope)
		return in
	}
	in, err := c.classifyLLM(ctx, text, hints, history)
	if err != nil {
		log.Warnf("Intent classification fell back to heuristics: %v", err)
		metrics.Fallback("classify")
		return Heuristic(text, hints)
	}
	return in
}

func (c *Classifier) classifyLLM(ctx context.Context, text string, hints models.RecentEntities, history []models.ConversationTurn) (models.Intent, error) {
	if c.llm == nil {
		return models.Intent{}, llm.ErrDisabled
	}
	p, err := prompts.Classify(text, hints, history)
	if err != nil {
		return models.Intent{}, err
	}
	obj, err := llm.CompleteJSON(ctx, c.llm, p.Request(c.temperature, c.maxTokens))
	if err != nil {
		return models.Intent{}, err
	}
	in, err := FromJSON(obj)
	if err != nil {
		return models.Intent{}, err
	}

	// the model sometimes picks the issue scope without echoing the id
	if in.Scope == models.ScopeIssue && in.IssueID == "" {
		in.IssueID = findIssueID(text)
		if in.IssueID == "" {
			in.Scope = models.ScopeGlobal
		}
	}
	if in.Scope == models.ScopeGlobal && in.IssueID != "" {
		in.Scope = models.ScopeIssue
	}
	ApplyHints(&in, text, hints)
	in.Source = "llm"
	return in, nil
}

// FromJSON coerces an untrusted classification object into an Intent. Every
// field falls back to a default; only a response with neither type nor scope
// is rejected.
func FromJSON(obj map[string]interface{}) (models.Intent, error) {
	rawType := strings.ToLower(common.GetString(obj, "type", ""))
	rawScope := common.GetString(obj, "scope", "")
	if rawType == "" && rawScope == "" {
		return models.Intent{}, ErrNonConforming
	}

	in := models.Intent{
		Type:              models.IntentType(rawType),
		Scope:             models.ParseScope(rawScope),
		Entities:          common.GetStringSlice(obj, "entities"),
		DataRequired:      common.GetBool(obj, "dataRequired", true),
		Complexity:        models.ParseComplexity(common.GetString(obj, "complexity", "")),
		Confidence:        common.Clamp01(common.GetFloat(obj, "confidence", 0.7)),
		SprintIdentifier:  common.GetString(obj, "sprintIdentifier", ""),
		UserIdentifier:    common.GetString(obj, "userIdentifier", ""),
		IssueID:           strings.TrimPrefix(common.GetString(obj, "issueId", ""), "#"),
		ProjectIdentifier: common.GetString(obj, "projectIdentifier", ""),
		TeamIdentifier:    common.GetString(obj, "teamIdentifier", ""),
		BoardIdentifier:   common.GetString(obj, "boardIdentifier", ""),
		AreaIdentifier:    common.GetString(obj, "areaIdentifier", ""),
		Priority:          common.GetString(obj, "priority", ""),
		Tags:              common.GetStringSlice(obj, "tags"),
		States:            common.GetStringSlice(obj, "states"),
		Types:             common.GetStringSlice(obj, "types"),
	}
	if !in.Type.Valid() {
		in.Type = models.IntentQuestion
	}
	if in.Entities == nil {
		in.Entities = []string{}
	}
	if in.UserIdentifier != "" {
		in.UserIdentifier = normalizeUser(in.UserIdentifier)
	}
	if in.SprintIdentifier != "" {
		in.SprintIdentifier = normalizeSprint(in.SprintIdentifier)
	}
	if in.IssueID != "" && !issueIDRegex.MatchString(in.IssueID) {
		in.IssueID = ""
	}
	if dr := common.GetMap(obj, "dateRange"); dr != nil {
		from, to := common.GetString(dr, "from", ""), common.GetString(dr, "to", "")
		if from != "" || to != "" {
			in.DateRange = &models.DateRange{From: from, To: to}
		}
	}
	return in, nil
}

// Describe renders an intent for the CLI.
func Describe(in models.Intent) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("type", string(in.Type))
	add("scope", string(in.Scope))
	add("issue", in.IssueID)
	add("user", in.UserIdentifier)
	add("sprint", in.SprintIdentifier)
	add("project", in.ProjectIdentifier)
	add("states", strings.Join(in.States, ","))
	add("types", strings.Join(in.Types, ","))
	add("tags", strings.Join(in.Tags, ","))
	if in.DateRange != nil {
		add("from", in.DateRange.From)
	}
	add("source", in.Source)
	return fmt.Sprintf("%s confidence=%.2f", strings.Join(parts, " "), in.Confidence)
}
