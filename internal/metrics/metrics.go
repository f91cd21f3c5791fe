// Package metrics holds the Prometheus collectors for the query pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workq_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_cache_lookups_total",
			Help: "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	LLMFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_llm_fallbacks_total",
			Help: "Stages that fell back to deterministic logic",
		},
		[]string{"stage"},
	)

	TrackerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_tracker_calls_total",
			Help: "Outbound calls to the work-tracking system by query kind and status",
		},
		[]string{"kind", "status"},
	)

	Retries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workq_retries_total",
			Help: "Total number of re-plan attempts",
		},
	)

	Corrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workq_validator_corrections_total",
			Help: "Answers replaced by the validator",
		},
	)
)

// ObserveStage records the time since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Fallback counts a deterministic fallback for stage.
func Fallback(stage string) {
	LLMFallbacks.WithLabelValues(stage).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
