package prompts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/models"
)

func TestClassifyIncludesHintsAndScopes(t *testing.T) {
	p, err := Classify("what is she working on?", models.RecentEntities{LastMentionedUser: "Ada Lovelace"}, []models.ConversationTurn{
		{UserQuery: "bugs assigned to Ada Lovelace", Response: "Ada has 3 bugs."},
	})
	require.NoError(t, err)
	assert.Contains(t, p.System, "saved_query")
	assert.Contains(t, p.User, "Ada Lovelace")
	assert.Contains(t, p.User, "User: bugs assigned to Ada Lovelace")
	assert.Contains(t, p.User, "what is she working on?")
	assert.Equal(t, IntentSchema, p.Schema)

	req := p.Request(0.1, 300)
	assert.Equal(t, 0.1, req.Temperature)
	assert.Equal(t, 300, req.MaxTokens)
	assert.Equal(t, p.System, req.System)
}

func TestQueryTextIsNotInterpreted(t *testing.T) {
	p, err := Classify("show {{.secret}} items", models.RecentEntities{}, nil)
	require.NoError(t, err)
	assert.Contains(t, p.User, "show {{.secret}} items")
	assert.Contains(t, p.User, "(no previous turns)")
}

func TestPlanMentionsRulesAndMetadata(t *testing.T) {
	meta := &models.TrackerMetadata{Sprints: []models.MetadataEntry{{Name: "Sprint 5", Path: `proj\Sprint 5`}}}
	p, err := Plan(models.Intent{Scope: models.ScopeSprint}, models.Decision{}, meta, []string{"use UNDER"})
	require.NoError(t, err)
	assert.Contains(t, p.System, "never CONTAINS")
	assert.Contains(t, p.System, "{{q1.ids}}")
	assert.Contains(t, p.User, `proj\Sprint 5`)
	assert.Contains(t, p.User, "- use UNDER")
	assert.Contains(t, p.User, "Known users: (unknown)")
}

func TestSynthesizeAndNarrative(t *testing.T) {
	results := models.QueryResults{WorkItems: []models.WorkItem{{ID: "1", Title: "Login", State: "Active", Type: "Bug"}}}
	eval := models.Evaluation{DataQuality: models.QualityGood, Insights: []string{"one active bug"}}

	p, err := Synthesize("active bugs?", models.Intent{}, eval, results, []string{"Show items by state"})
	require.NoError(t, err)
	assert.Contains(t, p.System, "- Show items by state")
	assert.Contains(t, p.User, "#1 [Bug] Login | state=Active")
	assert.Contains(t, p.User, "one active bug")
	assert.Equal(t, SynthesisSchema, p.Schema)

	n, err := Narrative("active bugs?", models.Intent{}, eval, results)
	require.NoError(t, err)
	assert.Empty(t, n.Schema)
	assert.Equal(t, p.User, n.User)
}

func TestItemsTruncates(t *testing.T) {
	items := make([]models.WorkItem, 30)
	for i := range items {
		items[i] = models.WorkItem{ID: fmt.Sprint(i), Title: "t"}
	}
	out := Items(items)
	assert.Contains(t, out, "... and 5 more")
	assert.NotContains(t, out, "#29 ")
}

func TestValidatePrompt(t *testing.T) {
	p, err := Validate("q", "No items found.", []models.WorkItem{{ID: "9", Title: "x"}}, []string{"answer says nothing was found"})
	require.NoError(t, err)
	assert.Contains(t, p.User, "Work items (1)")
	assert.Contains(t, p.User, "- answer says nothing was found")
}
