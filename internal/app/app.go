// Package app assembles the pipeline from configuration.
package app

import (
	"fmt"
	"io"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/config"
	"github.com/tuannvm/workitem-qa/internal/conversation"
	"github.com/tuannvm/workitem-qa/internal/decision"
	"github.com/tuannvm/workitem-qa/internal/evaluator"
	"github.com/tuannvm/workitem-qa/internal/executor"
	"github.com/tuannvm/workitem-qa/internal/intent"
	"github.com/tuannvm/workitem-qa/internal/llm"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/orchestrator"
	"github.com/tuannvm/workitem-qa/internal/planner"
	"github.com/tuannvm/workitem-qa/internal/synthesizer"
	"github.com/tuannvm/workitem-qa/internal/tracker"
	"github.com/tuannvm/workitem-qa/internal/tracker/ado"
	"github.com/tuannvm/workitem-qa/internal/tracker/jira"
	"github.com/tuannvm/workitem-qa/internal/validator"
)

// App is a wired pipeline plus what it was built from.
type App struct {
	Pipeline *orchestrator.Pipeline
	Deps     orchestrator.Deps
	Store    cache.Store

	closers []io.Closer
}

// Close releases the cache connection, if any.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build wires every stage from cfg.
func Build(cfg *config.Config) (*App, error) {
	a := &App{}

	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	tc, err := NewTracker(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	completer, err := llm.NewClient(cfg)
	if err != nil {
		// The pipeline degrades to its deterministic paths.
		log.Warnf("Completion service unavailable, running without it: %v", err)
		completer = llm.Disabled{}
	}

	a.Deps = NewDeps(cfg, tc, store, completer)
	a.Pipeline = orchestrator.New(a.Deps, PipelineConfig(cfg))
	return a, nil
}

// NewDeps builds the stages around the given collaborators.
func NewDeps(cfg *config.Config, tc tracker.Client, store cache.Store, completer llm.Completer) orchestrator.Deps {
	deps := orchestrator.Deps{
		Classifier: intent.NewClassifier(completer, cfg.TemperatureClassify),
		Decider:    decision.NewMaker(completer, cfg.TemperatureDecide, cfg.SimilarQueryWindow),
		Planner:    planner.New(completer, cfg.TemperaturePlan, cfg.TrackerProject),
		Executor: executor.New(tc, store, executor.Config{
			TTL:         cfg.QueryCacheTTL,
			MetadataTTL: cfg.MetadataTTL,
			Workers:     cfg.ExecutorWorkers,
			CallTimeout: cfg.CallTimeout,
		}),
		Evaluator:     evaluator.New(completer, cfg.TemperatureEvaluate),
		Synthesizer:   synthesizer.New(completer, cfg.TemperatureSynthesize),
		Conversations: conversation.NewManager(store, cfg.ConversationTTL),
	}
	if cfg.ValidatorEnabled {
		deps.Validator = validator.New(completer, cfg.TemperatureValidate)
	}
	return deps
}

// PipelineConfig extracts the run bounds from cfg.
func PipelineConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxRetries:     cfg.MaxRetries,
		Timeout:        cfg.PipelineTimeout,
		SimilarWindow:  cfg.SimilarQueryWindow,
		MaxQueryLength: cfg.MaxQueryLength,
	}
}

// NewStore returns the configured cache backend.
func NewStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "", "memory":
		log.Infof("Using in-memory cache")
		return cache.NewMemoryStore(), nil
	case "redis":
		log.Infof("Using redis cache at %s", cfg.RedisAddr)
		s, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
}

// NewTracker returns the configured tracker adapter.
func NewTracker(cfg *config.Config) (tracker.Client, error) {
	switch cfg.TrackerBackend {
	case "", "ado":
		return ado.NewClient(cfg), nil
	case "jira":
		c, err := jira.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create jira client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported tracker backend: %s", cfg.TrackerBackend)
}
