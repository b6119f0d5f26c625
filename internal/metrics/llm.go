package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider transport metrics, one series per vendor and model.
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_provider_requests_total",
			Help:      "Total number of raw vendor API calls",
		},
		[]string{"provider", "model", "operation", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kira",
			Name:      "llm_provider_request_duration_seconds",
			Help:      "Raw vendor API call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
		[]string{"provider", "model", "operation"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_provider_tokens_total",
			Help:      "Total tokens reported by vendors",
		},
		[]string{"provider", "model", "type"},
	)

	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_provider_errors_total",
			Help:      "Total vendor API errors",
		},
		[]string{"provider", "model", "error_type"},
	)
)

// Orchestration metrics, recorded by the retry envelope and failover loop.
var (
	OperationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_operation_attempts_total",
			Help:      "Attempts made inside the retry envelope",
		},
		[]string{"operation", "provider", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kira",
			Name:      "llm_operation_duration_seconds",
			Help:      "Per-attempt duration inside the retry envelope",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 30},
		},
		[]string{"operation", "provider"},
	)

	OperationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_operation_failures_total",
			Help:      "Retry envelopes that ended in failure",
		},
		[]string{"operation", "provider", "kind"},
	)

	ProviderFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_provider_fallback_total",
			Help:      "Rotations away from a provider after its envelope was exhausted",
		},
		[]string{"operation", "from"},
	)

	ModelFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "llm_model_fallback_total",
			Help:      "Generations served by a non-primary model",
		},
		[]string{"provider", "model"},
	)

	VectorQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kira",
			Name:      "vector_query_duration_seconds",
			Help:      "Document store query duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "source"},
	)

	RerankDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "rerank_degraded_total",
			Help:      "Re-rank passes that fell back to lexical ordering",
		},
	)
)

// Cache and admission metrics.
var (
	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "cache_total",
			Help:      "Response cache hits and misses",
		},
		[]string{"namespace", "result"}, // "hit" / "miss"
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kira",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"path", "backend"},
	)
)

var llmMetricsRegistered bool

// RegisterLLMMetrics registers provider, orchestration and cache metrics. Must be called once from main.
func RegisterLLMMetrics() {
	if llmMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderTokensTotal,
		ProviderErrorsTotal,
		OperationAttemptsTotal,
		OperationDuration,
		OperationFailuresTotal,
		ProviderFallbackTotal,
		ModelFallbackTotal,
		RerankDegradedTotal,
		VectorQueryDuration,
		CacheTotal,
		EmbeddingCacheTotal,
		RateLimitedTotal,
	)
	llmMetricsRegistered = true
}
