// Package telemetry holds the Prometheus collectors shared by metricsd
// components and the optional OTLP trace export.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metricsd"

var (
	// CacheLookups counts metadata search cache lookups.
	// Labels: result (hit, miss)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "cache_lookups_total",
			Help:      "Total number of search cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheEvictions counts entries evicted from the search cache.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "cache_evictions_total",
			Help:      "Total number of search cache entries evicted by capacity",
		},
	)

	// CacheClears counts full cache invalidations triggered by indexing.
	CacheClears = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "cache_clears_total",
			Help:      "Total number of search cache invalidations",
		},
	)

	// SearchDuration tracks backend similarity query latency (cache misses only).
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "search_duration_seconds",
			Help:      "Duration of vector similarity queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// IndexOperations counts metadata upserts.
	// Labels: result (success, invalid, error)
	IndexOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "index_operations_total",
			Help:      "Total number of metadata index operations by result",
		},
		[]string{"result"},
	)

	// EmbedDuration tracks embedding latency.
	// Labels: provider (hash, openai, fastembed), op (documents, query)
	EmbedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embeddings",
			Name:      "duration_seconds",
			Help:      "Duration of embedding calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	// EmbedErrors counts failed embedding calls.
	// Labels: provider, op
	EmbedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embeddings",
			Name:      "errors_total",
			Help:      "Total number of failed embedding calls",
		},
		[]string{"provider", "op"},
	)

	// ExtractionAttempts counts calls to the extraction backend.
	// Labels: outcome (success, error), kind (error kind or "none")
	ExtractionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "attempts_total",
			Help:      "Total number of extraction backend attempts",
		},
		[]string{"outcome", "kind"},
	)

	// LowConfidence counts extractions below the confidence threshold.
	LowConfidence = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "low_confidence_total",
			Help:      "Total number of extractions below the confidence threshold",
		},
	)

	// ValidationResults counts schema validations by status.
	// Labels: status (success, failure, parse_error)
	ValidationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "results_total",
			Help:      "Total number of schema validations by status",
		},
		[]string{"status"},
	)

	// LookupStrategy counts membership lookups by strategy.
	// Labels: strategy (bulk, individual)
	LookupStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "lookups_total",
			Help:      "Total number of membership lookups by strategy",
		},
		[]string{"strategy"},
	)
)

// Label values shared by callers.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultError   = "error"
)
