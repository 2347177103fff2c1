// Package metrics holds the prometheus instruments for the query pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ValidationsTotal counts query validations by outcome.
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryguard",
			Name:      "validations_total",
			Help:      "Query validations by outcome",
		},
		[]string{"collection", "outcome"},
	)

	// CorrectionsTotal counts self-healing correction attempts by result.
	CorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryguard",
			Name:      "corrections_total",
			Help:      "Self-healing correction attempts by result",
		},
		[]string{"trigger", "result"},
	)

	// VectorSearchTotal counts similarity queries by execution path.
	VectorSearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryguard",
			Name:      "vector_search_total",
			Help:      "Similarity queries by execution path (managed/local)",
		},
		[]string{"index", "path"},
	)

	// VectorFallbackTotal counts permanent downgrades to the local scan path.
	VectorFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryguard",
			Name:      "vector_fallback_total",
			Help:      "Permanent downgrades from the managed vector backend",
		},
		[]string{"index"},
	)

	// EmbeddingRequestsTotal counts embedding provider calls by status.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryguard",
			Name:      "embedding_requests_total",
			Help:      "Embedding provider requests by status",
		},
		[]string{"provider", "model", "status"},
	)

	// EmbeddingRequestDuration observes embedding provider latency.
	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "queryguard",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	// EmbeddingCacheTotal counts embedding cache lookups by result (hit/miss).
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryguard",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"},
	)
)

// Register registers all queryguard metrics. Explicit, no init().
func Register() {
	prometheus.MustRegister(
		ValidationsTotal,
		CorrectionsTotal,
		VectorSearchTotal,
		VectorFallbackTotal,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingCacheTotal,
		httpRequestDuration,
		httpRequestsTotal,
	)
}
