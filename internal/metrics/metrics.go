// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package metrics provides Prometheus instrumentation for the sync engine:
// remote store reads, circuit breaker state, reconciliation throughput,
// scheduler activity and alert delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote store metrics
	RemoteReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_reads_total",
			Help: "Total remote store reads by outcome",
		},
		[]string{"outcome"}, // "payload", "absent", "transient_error", "permanent_error"
	)

	RemoteReadRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remote_read_retries_total",
			Help: "Total transient read failures retried at the reader layer",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Reconciliation metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total reconciliation runs by mode and status",
		},
		[]string{"mode", "status"}, // mode: "soft"/"hard", status: "success"/"failed"
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	DevicesReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devices_reconciled_total",
			Help: "Total per-device reconciliation outcomes",
		},
		[]string{"status"}, // "succeeded", "partial", "failed"
	)

	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_upserted_total",
			Help: "Total records written by category and disposition",
		},
		[]string{"category", "disposition"}, // disposition: "created", "updated", "skipped", "error"
	)

	StaleDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stale_devices",
			Help: "Devices whose last successful sync exceeds the staleness threshold",
		},
	)

	// Scheduler metrics
	SchedulerJobFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_fires_total",
			Help: "Total scheduled job firings by operation and status",
		},
		[]string{"operation", "status"},
	)

	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total scheduler tick evaluations",
		},
	)

	// Alerting metrics
	Alerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_total",
			Help: "Total outbound operational alerts by result",
		},
		[]string{"result"}, // "sent", "throttled", "failed"
	)
)
