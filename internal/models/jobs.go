// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// OperationKind identifies a schedulable engine operation. Job definitions
// referencing an unknown kind are rejected at creation time, never at fire
// time.
type OperationKind string

const (
	OpSoftSyncAll   OperationKind = "soft_sync_all"
	OpHardSyncAll   OperationKind = "hard_sync_all"
	OpSyncDevice    OperationKind = "sync_device"
	OpDeviceAlerts  OperationKind = "device_alerts"
	OpMarkOutOfSync OperationKind = "mark_out_of_sync"
	OpHealthCheck   OperationKind = "health_check"
	OpCleanupLogs   OperationKind = "cleanup_logs"
)

// ParseOperationKind validates a string against the supported operation kinds.
func ParseOperationKind(s string) (OperationKind, error) {
	switch OperationKind(s) {
	case OpSoftSyncAll, OpHardSyncAll, OpSyncDevice, OpDeviceAlerts,
		OpMarkOutOfSync, OpHealthCheck, OpCleanupLogs:
		return OperationKind(s), nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// IntervalUnit is the unit of an interval schedule.
type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
)

// Duration converts a count of this unit to a time.Duration.
func (u IntervalUnit) Duration(every int) (time.Duration, error) {
	d := time.Duration(every)
	switch u {
	case UnitSeconds:
		return d * time.Second, nil
	case UnitMinutes:
		return d * time.Minute, nil
	case UnitHours:
		return d * time.Hour, nil
	case UnitDays:
		return d * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval unit %q", u)
	}
}

// ScheduledJob is a persisted job definition. Exactly one of the interval pair
// (Every, Unit) or Cron is set; which one is validated when the definition is
// created or updated.
type ScheduledJob struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"` // Unique, operator-visible
	Operation OperationKind   `json:"operation"`
	Enabled   bool            `json:"enabled"`
	Every     int             `json:"every,omitempty"` // Interval schedule: fire every N Unit
	Unit      IntervalUnit    `json:"unit,omitempty"`
	Cron      string          `json:"cron,omitempty"` // 5-field cron schedule
	Args      json.RawMessage `json:"args,omitempty"` // Operation-specific payload
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	TotalRuns int             `json:"total_runs"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsInterval reports whether the job uses an interval schedule.
func (j *ScheduledJob) IsInterval() bool {
	return j.Cron == ""
}

// JobRunStatus is the terminal state of one job firing.
type JobRunStatus string

const (
	RunStatusSuccess JobRunStatus = "success"
	RunStatusFailed  JobRunStatus = "failed"
	// RunStatusSkippedOverlap records a firing rejected because the previous
	// run of the same job was still in flight.
	RunStatusSkippedOverlap JobRunStatus = "skipped_overlap"
)

// JobRun is the execution record emitted for every job firing, consumed by
// the execution-history view.
type JobRun struct {
	ID         string          `json:"id"`
	JobID      string          `json:"job_id"`
	JobName    string          `json:"job_name"`
	Operation  OperationKind   `json:"operation"`
	Status     JobRunStatus    `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Trigger    string          `json:"trigger"` // schedule | manual
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// Run trigger values.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)
