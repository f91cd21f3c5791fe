package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/conversation"
	"github.com/tuannvm/workitem-qa/internal/decision"
	"github.com/tuannvm/workitem-qa/internal/evaluator"
	"github.com/tuannvm/workitem-qa/internal/executor"
	"github.com/tuannvm/workitem-qa/internal/intent"
	"github.com/tuannvm/workitem-qa/internal/llm"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/planner"
	"github.com/tuannvm/workitem-qa/internal/prompts"
	"github.com/tuannvm/workitem-qa/internal/synthesizer"
	"github.com/tuannvm/workitem-qa/internal/tracker"
	"github.com/tuannvm/workitem-qa/internal/tracker/trackertest"
	"github.com/tuannvm/workitem-qa/internal/validator"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

const activeBugs = "[System.State] IN ('Active') AND [System.WorkItemType] IN ('Bug') " + wiql.DefaultOrderBy

// schemaCompleter answers by response schema; plain-text prompts use the
// "" entry. Missing entries fail like an unreachable service.
type schemaCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
}

func newCompleter(replies map[string]string) *schemaCompleter {
	return &schemaCompleter{replies: replies, calls: map[string]int{}}
}

func (c *schemaCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.Schema]++
	if r, ok := c.replies[req.Schema]; ok {
		return r, nil
	}
	return "", errors.New("completion service unreachable")
}

func newPipeline(f *trackertest.Fake, c llm.Completer) *Pipeline {
	store := cache.NewMemoryStore()
	return New(Deps{
		Classifier:    intent.NewClassifier(c, 0.1),
		Decider:       decision.NewMaker(c, 0, time.Minute),
		Planner:       planner.New(c, 0, "Phoenix"),
		Executor:      executor.New(f, store, executor.Config{TTL: time.Minute, Workers: 2, CallTimeout: time.Second}),
		Evaluator:     evaluator.New(c, 0.1),
		Synthesizer:   synthesizer.New(c, 0.3),
		Validator:     validator.New(c, 0),
		Conversations: conversation.NewManager(store, time.Hour),
	}, Config{MaxRetries: 2, Timeout: 5 * time.Second, SimilarWindow: time.Minute})
}

func bugTracker() *trackertest.Fake {
	f := trackertest.NewFake()
	f.Search[activeBugs] = []tracker.RawItem{
		trackertest.Item(3, "Crash on save", "Bug", "Active"),
		trackertest.Item(1, "Login broken", "Bug", "Active"),
	}
	return f
}

func TestScenarioIssueNotFound(t *testing.T) {
	f := trackertest.NewFake()
	p := newPipeline(f, llm.Disabled{})

	resp := p.Process(context.Background(), Request{Query: "/id 12345", UserID: "alice"})

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Work item #12345 was not found or you do not have access to it.", resp.Summary)
	assert.InDelta(t, 0.8, resp.Metadata.Confidence, 1e-9)
	assert.Equal(t, 1, resp.Metadata.Attempts, "no retry")
	assert.Equal(t, 1, resp.Metadata.QueriesExecuted)
	assert.Equal(t, []string{"12345"}, f.Queries)
	assert.Empty(t, resp.RawData)
}

func TestScenarioActiveBugs(t *testing.T) {
	f := bugTracker()
	p := newPipeline(f, llm.Disabled{})

	resp := p.Process(context.Background(), Request{Query: "show me active bugs", UserID: "alice"})

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, []string{activeBugs}, f.Queries)
	assert.Equal(t, "Found 2 work items. By state: Active 2.", resp.Summary)
	require.Len(t, resp.RawData, 2)
	assert.Equal(t, "3", resp.RawData[0].ID)
	assert.False(t, resp.Metadata.CacheHit)
	assert.NotEmpty(t, resp.Metadata.ConversationID)
}

func TestScenarioRepeatedQueryIsCached(t *testing.T) {
	f := bugTracker()
	p := newPipeline(f, llm.Disabled{})
	ctx := context.Background()

	first := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice"})
	require.True(t, first.Success)
	calls := f.CallCount()

	// a fresh conversation goes through the executor cache
	second := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice"})
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, calls, f.CallCount())
	assert.Equal(t, first.RawData, second.RawData)

	// the same conversation reuses the previous turn
	third := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice", ConversationID: first.Metadata.ConversationID})
	assert.True(t, third.Metadata.CacheHit)
	assert.Equal(t, 0, third.Metadata.QueriesExecuted)
	assert.Equal(t, first.Summary, third.Summary)
	assert.Equal(t, calls, f.CallCount())
}

func TestChangedFiltersBypassReuse(t *testing.T) {
	f := bugTracker()
	f.Default = []tracker.RawItem{trackertest.Item(3, "Crash on save", "Bug", "Active")}
	p := newPipeline(f, llm.Disabled{})
	ctx := context.Background()

	first := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice"})
	require.True(t, first.Success)
	calls := f.CallCount()

	second := p.Process(ctx, Request{
		Query:          "show me active bugs",
		UserID:         "alice",
		ConversationID: first.Metadata.ConversationID,
		Filters:        &models.Filters{OnlyMine: true, ExcludeCreators: []string{"bob"}},
	})
	require.True(t, second.Success, second.Error)
	assert.False(t, second.Metadata.CacheHit)
	assert.Greater(t, f.CallCount(), calls)
	require.NotEmpty(t, f.Queries)
	assert.Contains(t, f.Queries[len(f.Queries)-1], "bob")
	require.Len(t, second.RawData, 1)

	// the filtered answer is now reusable under the same filters
	calls = f.CallCount()
	third := p.Process(ctx, Request{
		Query:          "show me active bugs",
		UserID:         "alice",
		ConversationID: first.Metadata.ConversationID,
		Filters:        &models.Filters{ExcludeCreators: []string{"Bob"}, OnlyMine: true},
	})
	assert.True(t, third.Metadata.CacheHit)
	assert.Equal(t, 0, third.Metadata.QueriesExecuted)
	assert.Equal(t, second.Summary, third.Summary)
	assert.Equal(t, calls, f.CallCount())
}

func TestTruncatedTurnIsNotReused(t *testing.T) {
	f := trackertest.NewFake()
	for i := 1; i <= 40; i++ {
		f.Search[activeBugs] = append(f.Search[activeBugs], trackertest.Item(i, fmt.Sprintf("Bug %d", i), "Bug", "Active"))
	}
	p := newPipeline(f, llm.Disabled{})
	ctx := context.Background()

	first := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice"})
	require.True(t, first.Success, first.Error)
	require.Len(t, first.RawData, 40)

	second := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice", ConversationID: first.Metadata.ConversationID})
	require.True(t, second.Success, second.Error)
	assert.Len(t, second.RawData, 40)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, 1, second.Metadata.QueriesExecuted, "answered through the executor, not the stored turn")
}

func TestScenarioMalformedSynthesis(t *testing.T) {
	f := bugTracker()
	c := newCompleter(map[string]string{prompts.SynthesisSchema: `{"summary": "Two bugs", "suggestions": [`})
	p := newPipeline(f, c)

	resp := p.Process(context.Background(), Request{Query: "show me active bugs", UserID: "alice"})

	assert.Equal(t, 1, c.calls[prompts.SynthesisSchema])
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Summary)
	require.NotEmpty(t, resp.Visualizations)
	assert.Equal(t, "state", resp.Visualizations[0].Field)
	assert.Equal(t, map[string]int{"Active": 2}, resp.Visualizations[0].Data)
}

func TestRetryRelaxesEmptyPlan(t *testing.T) {
	f := trackertest.NewFake()
	relaxed := "[System.WorkItemType] IN ('Bug') " + wiql.DefaultOrderBy
	f.Search[relaxed] = []tracker.RawItem{trackertest.Item(8, "Flaky test", "Bug", "New")}
	c := newCompleter(map[string]string{
		prompts.EvaluationSchema: `{"dataQuality": "poor", "relevance": "low", "completeness": "incomplete", "confidence": 0.2}`,
	})
	p := newPipeline(f, c)

	resp := p.Process(context.Background(), Request{Query: "show me active bugs", UserID: "alice"})

	assert.Equal(t, []string{activeBugs, relaxed}, f.Queries)
	assert.Equal(t, 2, resp.Metadata.Attempts)
	assert.Equal(t, 2, resp.Metadata.QueriesExecuted)
	require.Len(t, resp.RawData, 1)
	assert.Equal(t, "8", resp.RawData[0].ID)
}

func TestGeneralQuestionSkipsTracker(t *testing.T) {
	f := bugTracker()
	c := newCompleter(map[string]string{
		prompts.IntentSchema: `{"type": "question", "scope": "global", "dataRequired": false, "complexity": "simple", "confidence": 0.9}`,
		"":                   "A sprint is a fixed time box.",
	})
	p := newPipeline(f, c)

	resp := p.Process(context.Background(), Request{Query: "what is a sprint?", UserID: "alice"})

	assert.True(t, resp.Success)
	assert.Equal(t, "A sprint is a fixed time box.", resp.Summary)
	assert.Equal(t, 0, f.CallCount())
	assert.Equal(t, 0, resp.Metadata.QueriesExecuted)
}

func TestFatalErrors(t *testing.T) {
	f := bugTracker()
	p := newPipeline(f, llm.Disabled{})
	ctx := context.Background()

	resp := p.Process(ctx, Request{Query: "   ", UserID: "alice"})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.Suggestions)

	resp = p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice", ConversationID: "missing"})
	assert.False(t, resp.Success)
	assert.Equal(t, "The conversation was not found or has expired.", resp.Error)

	assert.Equal(t, 0, f.CallCount(), "fatal errors never reach the tracker")

	first := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice"})
	calls := f.CallCount()
	resp = p.Process(ctx, Request{Query: "show me active bugs", UserID: "bob", ConversationID: first.Metadata.ConversationID})
	assert.False(t, resp.Success)
	assert.Equal(t, "The conversation belongs to another user.", resp.Error)
	assert.Equal(t, calls, f.CallCount())
}

func TestTurnsAreRecorded(t *testing.T) {
	f := bugTracker()
	p := newPipeline(f, llm.Disabled{})
	ctx := context.Background()

	first := p.Process(ctx, Request{Query: "show me active bugs", UserID: "alice"})
	id := first.Metadata.ConversationID
	p.Process(ctx, Request{Query: "/id 1", UserID: "alice", ConversationID: id})

	turns, err := p.Conversations.GetRecentTurns(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "show me active bugs", turns[0].UserQuery)
	assert.Len(t, turns[0].WorkItems, 2)
	assert.Equal(t, models.ScopeIssue, turns[1].Intent.Scope)
}

func TestAsPipelineError(t *testing.T) {
	assert.Equal(t, KindTimeout, asPipelineError(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindInvalidInput, asPipelineError(ErrInvalidInput).Kind)
	assert.Equal(t, KindInternal, asPipelineError(errors.New("boom")).Kind)

	pe := &PipelineError{Kind: KindOwnershipMismatch, Msg: "nope", Err: ErrOwnershipMismatch}
	assert.True(t, errors.Is(pe, conversation.ErrOwnershipMismatch))
	assert.Same(t, pe, asPipelineError(pe))
}

func TestExplainDoesNotQueryWorkItems(t *testing.T) {
	f := bugTracker()
	p := newPipeline(f, llm.Disabled{})

	ex, err := p.Explain(context.Background(), "show me active bugs")
	require.NoError(t, err)
	assert.True(t, ex.Decision.RequiresADO)
	require.Len(t, ex.Plan.Queries, 1)
	assert.Equal(t, activeBugs, ex.Plan.Queries[0].Query)
	assert.Zero(t, f.CallCount())

	_, err = p.Explain(context.Background(), "  ")
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindInvalidInput, pe.Kind)
}
