// Package prompts renders the system and user prompts of every
// completion-backed stage.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/tuannvm/workitem-qa/internal/llm"
	"github.com/tuannvm/workitem-qa/internal/models"
)

// Prompt is a rendered prompt pair plus the schema the answer must follow.
type Prompt struct {
	System string
	User   string
	Schema string
}

// Request turns p into a completion request.
func (p Prompt) Request(temperature float64, maxTokens int) llm.Request {
	return llm.Request{System: p.System, User: p.User, Schema: p.Schema, Temperature: temperature, MaxTokens: maxTokens}
}

// maxPromptItems bounds how many work items are inlined into a prompt.
const maxPromptItems = 25

func render(tmpl string, values map[string]any) (string, error) {
	vars := make([]string, 0, len(values))
	for k := range values {
		vars = append(vars, k)
	}
	out, err := prompts.NewPromptTemplate(tmpl, vars).Format(values)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func mustJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func scopeList() string {
	names := make([]string, 0, len(models.AllScopes))
	for _, s := range models.AllScopes {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// History renders the last turns as "User: ... / Assistant: ..." lines.
func History(turns []models.ConversationTurn) string {
	if len(turns) == 0 {
		return "(no previous turns)"
	}
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.UserQuery, truncate(t.Response, 300))
	}
	return strings.TrimSpace(sb.String())
}

// Items renders work items one per line for grounding prompts.
func Items(items []models.WorkItem) string {
	if len(items) == 0 {
		return "(no work items)"
	}
	var sb strings.Builder
	for i, it := range items {
		if i == maxPromptItems {
			fmt.Fprintf(&sb, "... and %d more\n", len(items)-maxPromptItems)
			break
		}
		fmt.Fprintf(&sb, "#%s [%s] %s | state=%s", it.ID, it.Type, it.Title, it.State)
		if it.AssignedTo != "" {
			fmt.Fprintf(&sb, " | assignee=%s", it.AssignedTo)
		}
		if it.Priority != "" {
			fmt.Fprintf(&sb, " | priority=%s", it.Priority)
		}
		if it.IterationPath != "" {
			fmt.Fprintf(&sb, " | iteration=%s", it.IterationPath)
		}
		if len(it.Tags) > 0 {
			fmt.Fprintf(&sb, " | tags=%s", strings.Join(it.Tags, ","))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

// ResultsSummary describes query outcomes without the items themselves.
func ResultsSummary(r models.QueryResults) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "total=%d successful=%d failed=%d items=%d\n", r.TotalQueries, r.SuccessfulQueries, r.FailedQueries, len(r.WorkItems))
	for _, res := range r.Results {
		status := "ok"
		if !res.Success {
			status = "failed: " + res.Error
		}
		fmt.Fprintf(&sb, "- %s (%s): %s, %d items, %d metadata\n", res.QueryID, res.Kind, status, len(res.Items), len(res.Metadata))
	}
	return strings.TrimSpace(sb.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
