// Package executor runs query plans against the tracker with per-query
// caching, priority ordering and partial-failure aggregation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tuannvm/workitem-qa/internal/cache"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// ErrDependencyNotMet is recorded for required queries whose prerequisites
// did not succeed.
var ErrDependencyNotMet = errors.New("dependency not met")

// Config tunes an Executor.
type Config struct {
	TTL         time.Duration
	MetadataTTL time.Duration
	Workers     int
	CallTimeout time.Duration
}

// Executor runs plans. It is safe for concurrent use.
type Executor struct {
	tracker tracker.Client
	store   cache.Store
	cfg     Config
	flight  singleflight.Group
}

// New creates an executor. store may be nil to disable caching.
func New(tc tracker.Client, store cache.Store, cfg Config) *Executor {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = 30 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	return &Executor{tracker: tc, store: store, cfg: cfg}
}

// run is the per-execution bookkeeping shared by the workers.
type run struct {
	plan     models.QueryPlan
	filters  *models.Filters
	opts     models.Options
	mu       sync.Mutex
	results  map[string]models.QueryResult
	external int64
}

func (r *run) snapshot() map[string]models.QueryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.QueryResult, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

func (r *run) record(res models.QueryResult) {
	r.mu.Lock()
	r.results[res.QueryID] = res
	r.mu.Unlock()
}

// Execute runs every query of plan and never aborts on a single failure.
// Priority groups run in ascending order; inside a group, queries whose
// dependencies are settled run concurrently up to the worker limit.
func (e *Executor) Execute(ctx context.Context, plan models.QueryPlan, filters *models.Filters, opts models.Options) models.QueryResults {
	r := &run{plan: plan, filters: filters, opts: opts, results: make(map[string]models.QueryResult, len(plan.Queries))}

	for _, group := range priorityGroups(plan.Queries) {
		pending := group
		for len(pending) > 0 {
			settled := r.snapshot()
			var ready, waiting []models.PlannedQuery
			for _, q := range pending {
				if depsSettled(q, settled) {
					ready = append(ready, q)
				} else {
					waiting = append(waiting, q)
				}
			}
			if len(ready) == 0 {
				// the rest wait on ids that never run in this or an earlier group
				for _, q := range waiting {
					r.record(unmet(q, missingDeps(q, settled)))
				}
				break
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(e.cfg.Workers)
			for _, q := range ready {
				q := q
				if missing := failedDeps(q, settled); len(missing) > 0 {
					r.record(unmet(q, missing))
					continue
				}
				g.Go(func() error {
					r.record(e.runQuery(gctx, r, q, settled))
					return nil
				})
			}
			_ = g.Wait()
			pending = waiting
		}
	}
	return aggregate(plan, r)
}

func (e *Executor) runQuery(ctx context.Context, r *run, q models.PlannedQuery, settled map[string]models.QueryResult) models.QueryResult {
	start := time.Now()
	res := models.QueryResult{QueryID: q.ID, Kind: q.Kind}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	body, err := resolveReferences(q.Query, settled)
	if errors.Is(err, errNoReferences) {
		res.Success = true
		res.Duration = time.Since(start)
		return res
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	key := CacheKey(r.plan.ID, q, body, r.filters)
	res.CacheKey = key
	if e.store != nil && !r.opts.SkipCache {
		var cached models.QueryResult
		if err := cache.GetJSON(ctx, e.store, key, &cached); err == nil {
			metrics.CacheLookups.WithLabelValues("query", "hit").Inc()
			cached.QueryID, cached.Kind, cached.CacheKey = q.ID, q.Kind, key
			cached.Cached = true
			cached.Duration = time.Since(start)
			return cached
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("Query cache read failed for %s: %v", q.ID, err)
		}
		metrics.CacheLookups.WithLabelValues("query", "miss").Inc()
	}

	v, err, _ := e.flight.Do(key, func() (interface{}, error) {
		atomic.AddInt64(&r.external, 1)
		live, err := e.live(ctx, q, body, r.filters)
		if err != nil {
			return nil, err
		}
		if e.store != nil {
			if err := cache.SetJSON(ctx, e.store, key, live, e.cfg.TTL); err != nil {
				log.Warnf("Query cache write failed for %s: %v", q.ID, err)
			}
		}
		return live, nil
	})
	res.Duration = time.Since(start)
	if err != nil {
		metrics.TrackerCalls.WithLabelValues(string(q.Kind), "error").Inc()
		log.Warnf("Query %s failed: %v", q.ID, err)
		res.Error = err.Error()
		return res
	}
	metrics.TrackerCalls.WithLabelValues(string(q.Kind), "ok").Inc()
	live := v.(models.QueryResult)
	res.Success = true
	res.Items = live.Items
	res.Metadata = live.Metadata
	return res
}

// live performs the tracker call under the per-call timeout.
func (e *Executor) live(ctx context.Context, q models.PlannedQuery, body string, filters *models.Filters) (models.QueryResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	out := models.QueryResult{QueryID: q.ID, Kind: q.Kind, Success: true}
	switch q.Kind {
	case models.KindStructuredQuery:
		composed := wiql.AppendClauses(body, FilterClauses(filters)...)
		log.Debugf("Executing %s: %s", q.ID, log.Truncate(composed))
		raws, err := e.tracker.SearchItems(callCtx, composed)
		if err != nil {
			return out, fmt.Errorf("search failed: %w", err)
		}
		out.Items = tracker.MapWorkItems(raws)

	case models.KindRestLookup:
		id, ok := wiql.ExtractEquality(body, wiql.FieldID)
		if !ok {
			return out, fmt.Errorf("lookup %s has no id equality", q.ID)
		}
		raw, err := e.tracker.GetItem(callCtx, id)
		switch {
		case errors.Is(err, tracker.ErrNotFound):
			// an absent item is an answer, not a failure
		case err != nil:
			return out, fmt.Errorf("get item %s failed: %w", id, err)
		default:
			out.Items = []models.WorkItem{tracker.MapWorkItem(raw)}
		}

	case models.KindMetadataLookup:
		kind := models.MetadataKind(body)
		if !kind.Valid() {
			return out, fmt.Errorf("unknown metadata kind %q", body)
		}
		entries, err := e.tracker.ListMetadata(callCtx, kind)
		if err != nil {
			return out, fmt.Errorf("list %s failed: %w", kind, err)
		}
		out.Metadata = entries

	default:
		return out, fmt.Errorf("unknown query kind %q", q.Kind)
	}
	return out, nil
}

func priorityGroups(queries []models.PlannedQuery) [][]models.PlannedQuery {
	byPriority := map[int][]models.PlannedQuery{}
	var order []int
	for _, q := range queries {
		if _, ok := byPriority[q.Priority]; !ok {
			order = append(order, q.Priority)
		}
		byPriority[q.Priority] = append(byPriority[q.Priority], q)
	}
	sort.Ints(order)
	groups := make([][]models.PlannedQuery, 0, len(order))
	for _, p := range order {
		groups = append(groups, byPriority[p])
	}
	return groups
}

func depsSettled(q models.PlannedQuery, settled map[string]models.QueryResult) bool {
	for _, dep := range q.DependsOn {
		if _, ok := settled[dep]; !ok {
			return false
		}
	}
	return true
}

func failedDeps(q models.PlannedQuery, settled map[string]models.QueryResult) []string {
	var out []string
	for _, dep := range q.DependsOn {
		if r := settled[dep]; !r.Success {
			out = append(out, dep)
		}
	}
	return out
}

func missingDeps(q models.PlannedQuery, settled map[string]models.QueryResult) []string {
	var out []string
	for _, dep := range q.DependsOn {
		if r, ok := settled[dep]; !ok || !r.Success {
			out = append(out, dep)
		}
	}
	return out
}

// unmet records a query whose prerequisites failed. Optional queries are
// skipped; required ones fail.
func unmet(q models.PlannedQuery, deps []string) models.QueryResult {
	return models.QueryResult{
		QueryID: q.ID,
		Kind:    q.Kind,
		Error:   fmt.Sprintf("%s: %v", ErrDependencyNotMet, deps),
		Skipped: q.Optional,
	}
}

// aggregate orders results by plan position, flattens work items with the
// first occurrence of each id kept, and computes the counts.
func aggregate(plan models.QueryPlan, r *run) models.QueryResults {
	out := models.QueryResults{
		PlanID:        plan.ID,
		Results:       make([]models.QueryResult, 0, len(plan.Queries)),
		WorkItems:     []models.WorkItem{},
		TotalQueries:  len(plan.Queries),
		ExternalCalls: int(atomic.LoadInt64(&r.external)),
	}
	seen := map[string]bool{}
	for _, q := range plan.Queries {
		res, ok := r.results[q.ID]
		if !ok {
			res = models.QueryResult{QueryID: q.ID, Kind: q.Kind, Error: "not executed"}
		}
		out.Results = append(out.Results, res)
		switch {
		case res.Success:
			out.SuccessfulQueries++
		case !res.Skipped:
			out.FailedQueries++
		}
		if res.Cached {
			out.CacheHits++
		}
		for _, item := range res.Items {
			if !seen[item.ID] {
				seen[item.ID] = true
				out.WorkItems = append(out.WorkItems, item)
			}
		}
	}
	log.Debugf("Plan %s: %d/%d queries succeeded, %d cached, %d external calls",
		plan.ID, out.SuccessfulQueries, out.TotalQueries, out.CacheHits, out.ExternalCalls)
	return out
}
