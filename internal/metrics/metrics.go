// Package metrics exposes Prometheus collectors for the crawl and
// retrieval pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageFetches counts page fetch attempts, labeled ok/error.
	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echochat_page_fetches_total",
			Help: "Total number of page fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// JobsTotal counts finished jobs by terminal status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echochat_jobs_total",
			Help: "Total number of finished crawl jobs, labeled by status.",
		},
		[]string{"status"},
	)

	// ChunksIndexed counts chunks written to the vector index.
	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echochat_chunks_indexed_total",
			Help: "Total number of chunks upserted into the vector index.",
		},
	)

	// IndexRebuilds counts full reindex passes by outcome.
	IndexRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echochat_index_rebuilds_total",
			Help: "Total number of full index rebuilds, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// RetrievalDuration observes nearest-neighbor query latency.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echochat_retrieval_duration_seconds",
			Help:    "Latency of retrieval queries against the vector index.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EmbeddingCalls counts embedding service calls by outcome.
	EmbeddingCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echochat_embedding_calls_total",
			Help: "Total number of embedding service calls, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)
