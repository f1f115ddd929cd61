package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and embedding Prometheus metrics.
var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchagent",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each agent pipeline stage in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchagent",
			Name:      "pipeline_runs_total",
			Help:      "Total agent pipeline runs",
		},
		[]string{"mode", "status"}, // mode: interactive/batch, status: success/degraded/error
	)

	SearchMethodTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchagent",
			Name:      "search_method_total",
			Help:      "Candidate retrieval mode selection",
		},
		[]string{"method"}, // "vector" / "filter"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchagent",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchagent",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchagent",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	WeeklyDropUsersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchagent",
			Name:      "weekly_drop_users_total",
			Help:      "Weekly drop batch outcomes per user",
		},
		[]string{"outcome"}, // "delivered" / "failed" / "empty"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be
// called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(SearchMethodTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(WeeklyDropUsersTotal)
	pipelineMetricsRegistered = true
}
