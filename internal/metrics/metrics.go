package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval engine Prometheus metrics.
var (
	RebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragkb",
			Name:      "index_rebuilds_total",
			Help:      "Total number of index rebuilds",
		},
		[]string{"status"},
	)

	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragkb",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragkb",
			Name:      "index_chunks",
			Help:      "Number of chunks in the active index",
		},
	)

	IndexVocabulary = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragkb",
			Name:      "index_vocabulary_terms",
			Help:      "Number of distinct terms in the active index",
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragkb",
			Name:      "queries_total",
			Help:      "Total number of retrieval queries",
		},
		[]string{"strategy", "outcome"}, // outcome: "hit" / "empty"
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragkb",
			Name:      "query_duration_seconds",
			Help:      "Retrieval query duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
		[]string{"strategy"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragkb",
			Name:      "query_cache_total",
			Help:      "Query result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

func init() {
	prometheus.MustRegister(
		RebuildsTotal,
		RebuildDuration,
		IndexChunks,
		IndexVocabulary,
		QueriesTotal,
		QueryDuration,
		QueryCacheTotal,
	)
}
