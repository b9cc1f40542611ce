// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Link outcomes
const (
	OutcomeMatched   = "matched"
	OutcomeCreated   = "created"
	OutcomeOrphan    = "orphan"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

var (
	// DocumentsLinkedTotal tracks linked documents by outcome
	DocumentsLinkedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "documents_total",
			Help:      "Total number of documents processed by outcome",
		},
		[]string{"outcome"},
	)

	// LinkDuration tracks the end-to-end duration of linking one document
	LinkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "link_duration_seconds",
			Help:      "Duration of linking one document in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// MatchConfidence tracks the confidence of matched documents
	MatchConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "match_confidence",
			Help:      "Confidence of documents routed to an existing case",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)

	// AmbiguousMatchesTotal tracks documents that matched more than one case
	AmbiguousMatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "ambiguous_matches_total",
			Help:      "Total number of documents matching several cases",
		},
	)

	// LinkErrorsTotal tracks failed links by stage
	LinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "errors_total",
			Help:      "Total number of failed links by stage",
		},
		[]string{"stage"},
	)

	// MergeSkipsTotal tracks merge skips by reason
	MergeSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "skips_total",
			Help:      "Total number of items the merge declined to apply by reason",
		},
		[]string{"reason"},
	)

	// CasesMergedTotal tracks duplicate cases absorbed into a primary
	CasesMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "cases_absorbed_total",
			Help:      "Total number of duplicate cases absorbed into a primary case",
		},
	)

	// LockWaitDuration tracks time spent acquiring per-case locks
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a case lock in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// KafkaMessagesConsumed tracks consumed entity bag messages
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesPublished tracks published case events
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// GraphProjectionsTotal tracks case projections written to the graph
	GraphProjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "graph",
			Name:      "projections_total",
			Help:      "Total number of case projections by status",
		},
		[]string{"status"},
	)

	// BatchFilesTotal tracks files processed by the batch linker
	BatchFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "processor",
			Name:      "files_total",
			Help:      "Total number of entity bag files processed by status",
		},
		[]string{"status"},
	)
)
