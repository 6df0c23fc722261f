package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query pipeline metrics.
var (
	RAGStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_stage_duration_seconds",
			Help:      "Duration of each query pipeline stage",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	RAGQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_queries_total",
			Help:      "Total queries by mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: answer/search
	)

	RAGContextChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_context_chunks",
			Help:      "Number of chunks placed into the LLM context",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total LLM completion attempts",
		},
		[]string{"model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "type"}, // prompt/completion
	)

	LLMRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total LLM retries after transient failures",
		},
	)

	IndexRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_requests_total",
			Help:      "Total vector index requests",
		},
		[]string{"backend", "op", "status"},
	)

	ComponentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_state",
			Help:      "Component lifecycle state: 0 uninitialized, 1 ready, 2 degraded, 3 failed",
		},
		[]string{"component"},
	)
)

func ragCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		RAGStageDuration,
		RAGQueriesTotal,
		RAGContextChunks,
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMTokensTotal,
		LLMRetriesTotal,
		IndexRequestsTotal,
		ComponentState,
	}
}
