package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/llm"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/prompts"
)

func collect(ch <-chan models.Event) []models.Event {
	var out []models.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func types(events []models.Event) []models.EventType {
	out := make([]models.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestStreamEvents(t *testing.T) {
	c := newCompleter(map[string]string{"": "Two active bugs: #3 and #1."})
	p := newPipeline(bugTracker(), c)

	events := collect(p.ProcessStream(context.Background(), Request{Query: "show me active bugs", UserID: "alice"}))

	assert.Equal(t, []models.EventType{models.EventToolUse, models.EventToken, models.EventDone}, types(events))
	assert.Equal(t, []string{activeBugs}, events[0].Queries)
	assert.Equal(t, "Two active bugs: #3 and #1.", events[1].Text)
	require.NotNil(t, events[2].Response)
	assert.Equal(t, "Two active bugs: #3 and #1.", events[2].Response.Summary)
}

func TestStreamCorrection(t *testing.T) {
	c := newCompleter(map[string]string{
		"":                      "I could not find any bugs.",
		prompts.ValidationSchema: `{"accurate": false, "discrepancies": ["claims nothing was found"], "correctedAnswer": "Two active bugs: #3 and #1."}`,
	})
	p := newPipeline(bugTracker(), c)

	events := collect(p.ProcessStream(context.Background(), Request{Query: "show me active bugs", UserID: "alice"}))

	assert.Equal(t, []models.EventType{models.EventToolUse, models.EventToken, models.EventVerifying, models.EventCorrection, models.EventDone}, types(events))
	assert.Equal(t, "Two active bugs: #3 and #1.", events[3].Text)
	final := events[len(events)-1].Response
	require.NotNil(t, final)
	assert.Equal(t, "Two active bugs: #3 and #1.", final.Summary)
	assert.True(t, final.Metadata.Corrected)
	assert.Equal(t, []string{"claims nothing was found"}, final.Metadata.Discrepancies)
}

// brokenStreamer streams one chunk of the plain-text answer and then drops.
type brokenStreamer struct{ *schemaCompleter }

func (b brokenStreamer) Stream(_ context.Context, _ llm.Request, onToken func(string) error) (string, error) {
	if err := onToken("Two active bugs"); err != nil {
		return "", err
	}
	return "", errors.New("connection reset")
}

func TestStreamFailureSendsCorrection(t *testing.T) {
	p := newPipeline(bugTracker(), brokenStreamer{newCompleter(nil)})

	events := collect(p.ProcessStream(context.Background(), Request{Query: "show me active bugs", UserID: "alice"}))
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	require.Equal(t, models.EventDone, final.Type)
	require.NotNil(t, final.Response)
	assert.Equal(t, "Found 2 work items. By state: Active 2.", final.Response.Summary)

	token, correction := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case models.EventToken:
			assert.Equal(t, "Two active bugs", ev.Text)
			token = i
		case models.EventCorrection:
			assert.Equal(t, final.Response.Summary, ev.Text)
			correction = i
		}
	}
	require.NotEqual(t, -1, token)
	require.NotEqual(t, -1, correction, "partial stream must be corrected")
	assert.Less(t, token, correction)
}

func TestStreamErrorIsTerminal(t *testing.T) {
	p := newPipeline(bugTracker(), newCompleter(nil))

	events := collect(p.ProcessStream(context.Background(), Request{Query: "", UserID: "alice"}))

	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.NotEmpty(t, events[0].Error)
	assert.False(t, events[0].Response.Success)
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPipeline(bugTracker(), newCompleter(nil))

	events := collect(p.ProcessStream(ctx, Request{Query: "show me active bugs", UserID: "alice"}))

	terminal := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminal++
		}
	}
	assert.LessOrEqual(t, terminal, 1)
}
