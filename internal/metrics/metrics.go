// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heliotrack_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_duckdb_query_errors_total",
			Help: "Total number of failed DuckDB statements",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Matching and reconciliation
	MatchDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_flare_match_decisions_total",
			Help: "Flare matcher decisions by outcome and rule",
		},
		[]string{"decision", "rule"},
	)

	DegradedFlares = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heliotrack_flare_degraded_total",
			Help: "Flares stored degraded because their comparison time was unparseable",
		},
	)

	RecordsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_records_reconciled_total",
			Help: "Records written by the reconciler",
		},
		[]string{"kind", "outcome"}, // kind: flare, cme
	)

	RejectedModelRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heliotrack_cme_model_runs_rejected_total",
			Help: "Model runs rejected because the predicted arrival precedes the CME start",
		},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_parse_errors_total",
			Help: "Records dropped by the feed parsers",
		},
		[]string{"feed"},
	)

	// Ingest cycle
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heliotrack_ingest_cycle_duration_seconds",
			Help:    "Duration of a complete ingest cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	CycleLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heliotrack_ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last ingest cycle that completed without error",
		},
	)

	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_ingest_cycle_errors_total",
			Help: "Ingest cycle failures by stage",
		},
		[]string{"stage"}, // fetch, journal, reconcile
	)

	// Feeds
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heliotrack_feed_fetch_duration_seconds",
			Help:    "Duration of upstream feed requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"feed"},
	)

	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_feed_fetch_errors_total",
			Help: "Failed upstream feed requests",
		},
		[]string{"feed"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heliotrack_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Retention
	SweepDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_sweep_deleted_total",
			Help: "Rows removed by the retention sweep",
		},
		[]string{"table"},
	)

	SweepSkippedNullTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heliotrack_sweep_null_occurrence_rows",
			Help: "Flare rows the last sweep could not age out because their occurrence time is unknown",
		},
	)

	// Journal
	JournalPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heliotrack_journal_pending_entries",
			Help: "Parsed batches written to the journal but not yet confirmed",
		},
	)

	JournalOldestPendingAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heliotrack_journal_oldest_pending_age_seconds",
			Help: "Age of the oldest unconfirmed journal entry, 0 when none is pending",
		},
	)

	JournalDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heliotrack_journal_dropped_total",
			Help: "Journal entries discarded after exhausting replay attempts",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heliotrack_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heliotrack_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records a statement duration and, when err is set, its
// failure class.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table, errorType(err)).Inc()
	}
}

// RecordMatch counts one matcher decision.
func RecordMatch(decision, rule string, degraded bool) {
	MatchDecisions.WithLabelValues(decision, rule).Inc()
	if degraded {
		DegradedFlares.Inc()
	}
}

// RecordCycle records a completed ingest cycle.
func RecordCycle(duration time.Duration, err error) {
	CycleDuration.Observe(duration.Seconds())
	if err == nil {
		CycleLastSuccess.SetToCurrentTime()
	}
}

// RecordFeedFetch records an upstream request.
func RecordFeedFetch(feed string, duration time.Duration, err error) {
	FeedFetchDuration.WithLabelValues(feed).Observe(duration.Seconds())
	if err != nil {
		FeedFetchErrors.WithLabelValues(feed).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// errorType buckets an error message into a bounded label value.
func errorType(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "context canceled"):
		return "canceled"
	case strings.Contains(msg, "constraint"):
		return "constraint"
	case strings.Contains(msg, "conflict"):
		return "conflict"
	default:
		return "other"
	}
}
