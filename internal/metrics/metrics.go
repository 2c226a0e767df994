// Package metrics defines the Prometheus instrumentation for the ingestion
// and chat pipelines. Collectors are registered on the default registry and
// exposed by the HTTP server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestRuns counts ingestion runs by terminal status.
	IngestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superdaddy",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Ingestion runs by terminal status.",
	}, []string{"status"})

	// IngestChunksPersisted counts chunks written to the vector store.
	IngestChunksPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "superdaddy",
		Subsystem: "ingest",
		Name:      "chunks_persisted_total",
		Help:      "Chunks written to the vector store.",
	})

	// IngestChunksFailed counts chunks dropped by failed persist batches.
	IngestChunksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "superdaddy",
		Subsystem: "ingest",
		Name:      "chunks_failed_total",
		Help:      "Chunks dropped because their persist batch failed.",
	})

	// ChatRequests counts chat requests by outcome.
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superdaddy",
		Subsystem: "chat",
		Name:      "requests_total",
		Help:      "Chat requests by outcome.",
	}, []string{"outcome"})

	// ChatDuration observes end-to-end chat latency.
	ChatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "superdaddy",
		Subsystem: "chat",
		Name:      "request_duration_seconds",
		Help:      "End-to-end chat request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// RetrievalCandidates observes how many candidates retrieval produced
	// before selection.
	RetrievalCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "superdaddy",
		Subsystem: "retrieval",
		Name:      "candidates",
		Help:      "Candidates returned by retrieval before selection.",
		Buckets:   prometheus.LinearBuckets(0, 2, 11),
	})

	// ContextChunks observes the size of the merged context sent to the
	// answering model.
	ContextChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "superdaddy",
		Subsystem: "retrieval",
		Name:      "context_chunks",
		Help:      "Chunks in the merged context after neighbor expansion.",
		Buckets:   prometheus.LinearBuckets(0, 3, 11),
	})
)

// Outcome labels for ChatRequests.
const (
	OutcomeAnswered = "answered"
	OutcomeNoMatch  = "no_match"
	OutcomeError    = "error"
)
