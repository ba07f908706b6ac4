// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

// Package metrics registers the Prometheus instruments for capture, the
// queue, sync runs, auth and the backend client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync orchestration
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_sync_runs_total",
			Help: "Orchestrator action runs by outcome",
		},
		[]string{"action", "outcome"}, // outcome: "success", "retry", "fatal", "busy"
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_sync_duration_seconds",
			Help:    "Duration of orchestrator action runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	SyncPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracksync_sync_phase",
			Help: "Current orchestration phase (1 for the active phase)",
		},
		[]string{"phase"},
	)

	BackfillCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracksync_backfill_cursor_timestamp_seconds",
			Help: "Earliest UTC boundary covered by backfill",
		},
	)

	EmptyWindowStreak = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracksync_backfill_empty_window_streak",
			Help: "Consecutive empty backfill windows",
		},
	)

	// Upload and pull
	UploadRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_upload_rows_total",
			Help: "Uploaded rows by reconciled outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "acked", "rejected", "no_receipt", "invalid", "reverted"
	)

	UploadBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracksync_upload_batch_size",
			Help:    "Rows sent per batch upload",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	PullRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_pull_rows_total",
			Help: "Pulled rows by merge result",
		},
		[]string{"kind", "result"}, // result: "inserted", "updated", "unchanged"
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracksync_queue_rows",
			Help: "Local point rows by sync status",
		},
		[]string{"status"},
	)

	// Guard
	GuardBusy = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_guard_busy_total",
			Help: "Sync attempts skipped because another run held the guard",
		},
	)

	// Auth
	AuthRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_auth_refreshes_total",
			Help: "Credential refresh attempts by result",
		},
		[]string{"result"}, // result: "success", "rejected", "error"
	)

	AuthFatal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_auth_fatal_total",
			Help: "Session-fatal authorization failures",
		},
	)

	// Backend client
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_backend_request_duration_seconds",
			Help:    "Backend API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracksync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Capture
	CapturedPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_captured_points_total",
			Help: "Captured fixes by result",
		},
		[]string{"result"}, // result: "stored", "duplicate", "filtered", "dropped", "error"
	)

	SamplingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_sampling_transitions_total",
			Help: "Committed motion state changes",
		},
		[]string{"from", "to"},
	)

	// Control API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_api_requests_total",
			Help: "Control API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_api_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSyncRun records one orchestrator action run.
func RecordSyncRun(action, outcome string, duration time.Duration) {
	SyncRuns.WithLabelValues(action, outcome).Inc()
	SyncDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// SetPhase marks phase as the active orchestration phase among all.
func SetPhase(phase string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == phase {
			v = 1
		}
		SyncPhase.WithLabelValues(p).Set(v)
	}
}

// SetBackfill publishes the backfill cursor and empty-window streak.
func SetBackfill(cursor *time.Time, streak int) {
	if cursor != nil {
		BackfillCursor.Set(float64(cursor.Unix()))
	}
	EmptyWindowStreak.Set(float64(streak))
}

// RecordUploadOutcome adds n rows of kind with outcome.
func RecordUploadOutcome(kind, outcome string, n int) {
	if n > 0 {
		UploadRows.WithLabelValues(kind, outcome).Add(float64(n))
	}
}

// RecordPull adds merge results for kind.
func RecordPull(kind string, inserted, updated, unchanged int) {
	PullRows.WithLabelValues(kind, "inserted").Add(float64(inserted))
	PullRows.WithLabelValues(kind, "updated").Add(float64(updated))
	PullRows.WithLabelValues(kind, "unchanged").Add(float64(unchanged))
}

// SetQueueDepth publishes point counts by status name.
func SetQueueDepth(counts map[string]int) {
	for status, n := range counts {
		QueueDepth.WithLabelValues(status).Set(float64(n))
	}
}

// RecordBackendRequest records one backend HTTP call.
func RecordBackendRequest(endpoint, status string, duration time.Duration) {
	BackendRequestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

// RecordAPIRequest records one control API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
