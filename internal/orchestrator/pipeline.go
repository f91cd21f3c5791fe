// Package orchestrator runs the question answering pipeline: classify,
// decide, plan, execute, evaluate with bounded re-planning, synthesize and
// validate.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tuannvm/workitem-qa/internal/conversation"
	"github.com/tuannvm/workitem-qa/internal/decision"
	"github.com/tuannvm/workitem-qa/internal/evaluator"
	"github.com/tuannvm/workitem-qa/internal/executor"
	"github.com/tuannvm/workitem-qa/internal/intent"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/planner"
	"github.com/tuannvm/workitem-qa/internal/synthesizer"
	"github.com/tuannvm/workitem-qa/internal/validator"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

const (
	historyTurns   = 5
	anonymous      = "anonymous"
	turnSaveBudget = 5 * time.Second
)

// Request is one inbound question.
type Request struct {
	Query          string          `json:"query"`
	UserID         string          `json:"userId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	Filters        *models.Filters `json:"filters,omitempty"`
	Options        models.Options  `json:"options,omitempty"`
}

// Config bounds a pipeline run.
type Config struct {
	MaxRetries     int
	Timeout        time.Duration
	SimilarWindow  time.Duration
	MaxQueryLength int
}

// Deps are the stages a Pipeline is assembled from. Validator may be nil.
type Deps struct {
	Classifier    *intent.Classifier
	Decider       *decision.Maker
	Planner       *planner.Planner
	Executor      *executor.Executor
	Evaluator     *evaluator.Evaluator
	Synthesizer   *synthesizer.Synthesizer
	Validator     *validator.Validator
	Conversations *conversation.Manager
}

// Pipeline answers questions. It is safe for concurrent use; every run is
// independent apart from the shared cache and conversation store.
type Pipeline struct {
	Deps
	cfg Config
	now func() time.Time
}

// New assembles a pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.SimilarWindow <= 0 {
		cfg.SimilarWindow = 5 * time.Minute
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	return &Pipeline{Deps: deps, cfg: cfg, now: time.Now}
}

// Process answers req. It never returns an error: failures are reported as
// a response with Success false.
func (p *Pipeline) Process(ctx context.Context, req Request) models.OrchestratedResponse {
	resp, _ := p.run(ctx, req, nil)
	return resp
}

// Answer is Process for callers that need the failure kind. A non-nil
// error is always a *PipelineError; resp is filled in either way.
func (p *Pipeline) Answer(ctx context.Context, req Request) (models.OrchestratedResponse, error) {
	resp, err := p.run(ctx, req, nil)
	if err != nil {
		return resp, asPipelineError(err)
	}
	return resp, nil
}

// step is a state of the plan/execute/evaluate machine.
type step int

const (
	stepPlan step = iota
	stepExecute
	stepEvaluate
	stepReplan
	stepSynthesize
)

func (s step) String() string {
	switch s {
	case stepPlan:
		return "plan"
	case stepExecute:
		return "execute"
	case stepEvaluate:
		return "evaluate"
	case stepReplan:
		return "replan"
	case stepSynthesize:
		return "synthesize"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// state is the bookkeeping of one run of the machine.
type state struct {
	plan     models.QueryPlan
	results  models.QueryResults
	best     models.QueryResults
	eval     models.Evaluation
	attempt  int
	executed int
}

func (p *Pipeline) run(ctx context.Context, req Request, out *emitter) (models.OrchestratedResponse, error) {
	start := p.now()
	req.Query = strings.TrimSpace(req.Query)
	if req.UserID == "" {
		req.UserID = anonymous
	}

	timeout := p.cfg.Timeout
	if req.Options.TimeoutMs > 0 {
		timeout = time.Duration(req.Options.TimeoutMs) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.checkInput(req); err != nil {
		return p.failure(err, start, req.ConversationID), err
	}
	conv, err := p.Conversations.GetOrCreate(runCtx, req.ConversationID, req.UserID)
	if err != nil {
		return p.failure(err, start, req.ConversationID), err
	}
	logger := log.With("conversation", conv.ConversationID)

	t := time.Now()
	history := conversation.RecentTurns(conv, historyTurns)
	in := p.Classifier.Classify(runCtx, req.Query, conversation.RecentEntities(conv), history)
	metrics.ObserveStage("classify", t)

	t = time.Now()
	d := p.Decider.Decide(runCtx, in, conv)
	metrics.ObserveStage("decide", t)
	logger.Debugf("Intent scope=%s type=%s, requiresData=%t", in.Scope, in.Type, d.RequiresADO)

	filters := executor.MergeFilters(conv.GlobalFilters, req.Filters)
	filterKey := executor.FilterFingerprint(filters)
	if resp, ok := p.reuse(conv, in, d, filterKey, req.Options); ok {
		out.token(resp.Summary)
		resp.Metadata.ProcessingTime = p.now().Sub(start).Milliseconds()
		p.finish(ctx, conv.ConversationID, req.Query, in, filterKey, resp)
		metrics.PipelineRuns.WithLabelValues("reused").Inc()
		logger.Infof("Reused answer of a similar recent question")
		return resp, nil
	}

	st := &state{}
	if d.RequiresADO {
		if err := p.machine(runCtx, st, in, d, filters, req.Options, out); err != nil {
			return p.failure(err, start, conv.ConversationID), err
		}
	}

	t = time.Now()
	input := synthesizer.Input{Query: req.Query, Intent: in, Evaluation: st.eval, Results: st.results, History: history}
	var resp models.OrchestratedResponse
	if out != nil {
		var revised bool
		resp, revised = p.Synthesizer.Stream(runCtx, input, out.token)
		if revised {
			// the streamed tokens were a partial answer that was replaced
			out.send(models.Event{Type: models.EventCorrection, Text: resp.Summary})
			logger.Infof("Streamed answer replaced by fallback summary")
		}
	} else {
		resp = p.Synthesizer.Synthesize(runCtx, input)
	}
	metrics.ObserveStage("synthesize", t)

	if p.Validator != nil && d.RequiresADO && !st.results.MetadataOnly() {
		if flags := validator.Precheck(resp.Summary, st.results.WorkItems); len(flags) > 0 {
			t = time.Now()
			out.send(models.Event{Type: models.EventVerifying, Discrepancies: flags})
			res := p.Validator.Validate(runCtx, req.Query, resp, st.results.WorkItems)
			if res.Corrected {
				out.send(models.Event{Type: models.EventCorrection, Text: res.CorrectedSummary, Discrepancies: res.Discrepancies})
				resp = res.Apply(resp)
				logger.Infof("Answer corrected: %s", strings.Join(res.Discrepancies, "; "))
			}
			metrics.ObserveStage("validate", t)
		}
	}

	resp.Metadata.QueriesExecuted = st.executed
	resp.Metadata.Confidence = st.eval.Confidence
	if !d.RequiresADO {
		resp.Metadata.Confidence = in.Confidence
	}
	resp.Metadata.CacheHit = st.results.FullyCached()
	resp.Metadata.Attempts = st.attempt + 1
	resp.Metadata.ConversationID = conv.ConversationID
	resp.Metadata.ProcessingTime = p.now().Sub(start).Milliseconds()

	p.finish(ctx, conv.ConversationID, req.Query, in, filterKey, resp)
	metrics.PipelineRuns.WithLabelValues("success").Inc()
	logger.Infof("Answered in %dms: %d queries over %d attempts, %d items, cacheHit=%t",
		resp.Metadata.ProcessingTime, st.executed, resp.Metadata.Attempts, len(resp.RawData), resp.Metadata.CacheHit)
	return resp, nil
}

// machine drives plan, execute and evaluate until the evaluation is accepted
// or the retry budget is spent.
func (p *Pipeline) machine(ctx context.Context, st *state, in models.Intent, d models.Decision, filters *models.Filters, opts models.Options, out *emitter) error {
	var meta *models.TrackerMetadata
	if needsMetadata(in) {
		t := time.Now()
		meta = p.Executor.Metadata(ctx)
		metrics.ObserveStage("metadata", t)
	}

	for s := stepPlan; s != stepSynthesize; {
		t, cur := time.Now(), s
		switch s {
		case stepPlan:
			st.plan = p.Planner.Plan(ctx, in, d, meta)
			s = stepExecute
			if len(st.plan.Queries) == 0 {
				st.eval = noQueries()
				s = stepSynthesize
			}

		case stepExecute:
			out.send(models.Event{Type: models.EventToolUse, Queries: queryBodies(st.plan)})
			st.results = p.Executor.Execute(ctx, st.plan, filters, opts)
			st.executed += st.results.TotalQueries
			s = stepEvaluate
			if len(st.results.WorkItems) == 0 && len(st.best.WorkItems) > 0 {
				// the relaxed plan lost data; answer from the previous attempt
				st.results = st.best
				s = stepSynthesize
				break
			}
			st.best = st.results

		case stepEvaluate:
			st.eval = p.Evaluator.Evaluate(ctx, in, st.results)
			s = stepSynthesize
			if evaluator.ShouldRetry(st.eval, st.attempt, p.cfg.MaxRetries) {
				s = stepReplan
			}

		case stepReplan:
			s = stepSynthesize
			if ctx.Err() != nil {
				break
			}
			next, ok := planner.RetryPlan(st.plan, st.results, st.eval)
			if !ok {
				log.Debugf("Nothing left to relax in plan %s", st.plan.ID)
				break
			}
			st.attempt++
			st.plan = next
			metrics.Retries.Inc()
			log.Infof("Re-planning (attempt %d): %s", st.attempt+1, strings.Join(queryBodies(next), " | "))
			s = stepExecute
		}
		metrics.ObserveStage(cur.String(), t)
	}

	if ctx.Err() != nil && st.results.AllFailed() {
		return fmt.Errorf("%w after %d attempts: %v", ErrTimeout, st.attempt+1, ctx.Err())
	}
	return nil
}

// reuse answers from a similar turn within the window when the decision
// allows it and the turn was answered under the same filters.
func (p *Pipeline) reuse(conv *models.ConversationContext, in models.Intent, d models.Decision, filterKey string, opts models.Options) (models.OrchestratedResponse, bool) {
	if !d.RequiresADO || !d.CanUseCache || opts.SkipCache {
		return models.OrchestratedResponse{}, false
	}
	turn, ok := conversation.FindReusable(conv, in, filterKey, p.cfg.SimilarWindow, p.now())
	if !ok {
		return models.OrchestratedResponse{}, false
	}
	items := turn.WorkItems
	if items == nil {
		items = []models.WorkItem{}
	}
	return models.OrchestratedResponse{
		Success:        true,
		Summary:        turn.Response,
		RawData:        items,
		Suggestions:    synthesizer.CannedSuggestions(in),
		Visualizations: synthesizer.DefaultVisualizations(items),
		Metadata: models.ResponseMetadata{
			Confidence:     in.Confidence,
			CacheHit:       true,
			Attempts:       1,
			ConversationID: conv.ConversationID,
		},
	}, true
}

// finish records the turn. It runs after the answer is final and outlives
// the run deadline so a slow run still leaves its turn behind.
func (p *Pipeline) finish(ctx context.Context, conversationID, query string, in models.Intent, filterKey string, resp models.OrchestratedResponse) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnSaveBudget)
	defer cancel()
	_, err := p.Conversations.AddTurn(saveCtx, conversationID, models.ConversationTurn{
		UserQuery: query,
		Intent:    in,
		Response:  resp.Summary,
		WorkItems: resp.RawData,
		ItemCount: len(resp.RawData),
		FilterKey: filterKey,
	})
	if err != nil {
		log.Warnf("Failed to record turn for conversation %s: %v", conversationID, err)
	}
}

func (p *Pipeline) checkInput(req Request) error {
	switch {
	case req.Query == "":
		return fmt.Errorf("%w: empty query", ErrInvalidInput)
	case len(req.Query) > p.cfg.MaxQueryLength:
		return fmt.Errorf("%w: query longer than %d characters", ErrInvalidInput, p.cfg.MaxQueryLength)
	case req.Filters != nil && req.Filters.MaxAgeDays < 0:
		return fmt.Errorf("%w: negative maxAgeDays", ErrInvalidInput)
	case req.Options.TimeoutMs < 0:
		return fmt.Errorf("%w: negative timeoutMs", ErrInvalidInput)
	}
	return nil
}

// failure converts err into the response callers receive.
func (p *Pipeline) failure(err error, start time.Time, conversationID string) models.OrchestratedResponse {
	pe := asPipelineError(err)
	metrics.PipelineRuns.WithLabelValues(string(pe.Kind)).Inc()
	log.Warnf("Pipeline failed: %v", pe)
	return models.OrchestratedResponse{
		Success:     false,
		Summary:     pe.Msg,
		RawData:     []models.WorkItem{},
		Suggestions: synthesizer.RecoverySuggestions,
		Error:       pe.Msg,
		Metadata: models.ResponseMetadata{
			ProcessingTime: p.now().Sub(start).Milliseconds(),
			ConversationID: conversationID,
		},
	}
}

// needsMetadata reports whether the intent names something the planner
// resolves against tracker vocabulary.
func needsMetadata(in models.Intent) bool {
	if in.SprintIdentifier != "" && in.SprintIdentifier != wiql.MacroCurrentIteration {
		return true
	}
	if in.UserIdentifier != "" && in.UserIdentifier != wiql.MacroMe {
		return true
	}
	return in.AreaIdentifier != "" || in.TeamIdentifier != "" || in.BoardIdentifier != ""
}

func noQueries() models.Evaluation {
	return models.Evaluation{
		DataQuality:  models.QualityPoor,
		Relevance:    models.RelevanceLow,
		Completeness: models.CompletenessIncomplete,
		Warnings:     []string{"no executable queries could be planned"},
		Confidence:   0.1,
		Source:       "planner",
	}
}

func queryBodies(plan models.QueryPlan) []string {
	out := make([]string, 0, len(plan.Queries))
	for _, q := range plan.Queries {
		out = append(out, q.Query)
	}
	return out
}

// Explanation is what a run would do, without touching work items.
type Explanation struct {
	Intent   models.Intent    `json:"intent"`
	Decision models.Decision  `json:"decision"`
	Plan     models.QueryPlan `json:"plan"`
}

// Explain classifies query, decides and plans it as a fresh conversation
// would. Only cached tracker metadata lookups are performed.
func (p *Pipeline) Explain(ctx context.Context, query string) (Explanation, error) {
	query = strings.TrimSpace(query)
	if err := p.checkInput(Request{Query: query}); err != nil {
		return Explanation{}, asPipelineError(err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	in := p.Classifier.Classify(ctx, query, models.RecentEntities{}, nil)
	d := p.Decider.Decide(ctx, in, nil)
	ex := Explanation{Intent: in, Decision: d}
	if !d.RequiresADO {
		return ex, nil
	}
	var meta *models.TrackerMetadata
	if needsMetadata(in) {
		meta = p.Executor.Metadata(ctx)
	}
	ex.Plan = p.Planner.Plan(ctx, in, d, meta)
	return ex, nil
}
