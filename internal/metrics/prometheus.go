package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRejections counts embeddings refused because the cache byte budget was full.
	CacheRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxrecon_cache_rejections_total",
		Help: "Embeddings rejected by the cache because the byte budget was exhausted",
	})

	// CacheBytes tracks the approximate cache footprint per session.
	CacheBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voxrecon_cache_bytes",
		Help: "Approximate embedding cache memory usage in bytes",
	}, []string{"session"})

	// Decisions counts reconciled utterances by decision and resolution rule.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxrecon_reconcile_decisions_total",
		Help: "Reconciled utterances by decision and resolution",
	}, []string{"decision", "resolution"})

	// Increments counts scheduled increments by mode.
	Increments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxrecon_increments_total",
		Help: "Processed increments by mode",
	}, []string{"mode"})

	// ActiveSessions is the number of live sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxrecon_active_sessions",
		Help: "Number of live sessions",
	})

	// StageDuration observes pipeline stage latency.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxrecon_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	// TokensUsed counts language model tokens by direction.
	TokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxrecon_llm_tokens_total",
		Help: "Language model tokens consumed",
	}, []string{"direction"})

	// StageErrors counts failed pipeline stages.
	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxrecon_stage_errors_total",
		Help: "Failed pipeline stages",
	}, []string{"stage"})
)
