package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLM chat Prometheus metrics. The op label names the pipeline collaborator:
// "generate", "expand", "route", "rerank".
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM chat requests",
		},
		[]string{"provider", "model", "op", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM chat request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider", "model", "op"},
	)
)

var llmMetricsRegistered bool

// RegisterLLMMetrics registers Prometheus LLM metrics. Must be called once from main.
func RegisterLLMMetrics() {
	if llmMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal, LLMRequestDuration)
	llmMetricsRegistered = true
}
