package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ask pipeline Prometheus metrics.
var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each ask pipeline stage in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"stage"},
	)

	PipelineStageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "pipeline_stage_errors_total",
			Help:      "Total pipeline stage failures by degradation outcome",
		},
		[]string{"stage", "outcome"}, // outcome: "degraded" / "skipped" / "fatal"
	)

	PipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "pipeline_requests_total",
			Help:      "Total ask requests by final status",
		},
		[]string{"status"}, // "ok" / "partial" / "error"
	)

	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "cache_operations_total",
			Help:      "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"}, // result: "hit" / "miss" / "stale" / "bypass"
	)

	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "cache_invalidations_total",
			Help:      "Cache entries invalidated on document version bumps",
		},
		[]string{"mechanism"}, // "proactive" (version-bump hook) / "lazy" (stale read)
	)

	RetrievalCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "retrieval_candidates_total",
			Help:      "Candidates returned per retrieval source",
		},
		[]string{"source"}, // "lexical" / "vector"
	)

	RetrievalSourceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "retrieval_source_errors_total",
			Help:      "Retrieval source failures tolerated by the hybrid search",
		},
		[]string{"source"},
	)

	RouterDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "router_decisions_total",
			Help:      "Query router decisions",
		},
		[]string{"decision"}, // "retrieve" / "direct" / "fallback"
	)

	RerankOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "rerank_outcomes_total",
			Help:      "Rerank stage outcomes",
		},
		[]string{"outcome"}, // "scored" / "degraded"
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "generation_tokens_total",
			Help:      "Total generation tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		PipelineStageDuration,
		PipelineStageErrorsTotal,
		PipelineRequestsTotal,
		CacheOperationsTotal,
		CacheInvalidationsTotal,
		RetrievalCandidatesTotal,
		RetrievalSourceErrorsTotal,
		RouterDecisionsTotal,
		RerankOutcomesTotal,
		GenerationTokensTotal,
	)
	pipelineMetricsRegistered = true
}
