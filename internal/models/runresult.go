// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package models

import "time"

// SyncMode selects the depth of a reconciliation run.
type SyncMode string

const (
	// SyncModeSoft fetches messages, notifications and contacts with a
	// per-category record cap, refreshing device info only for stale devices.
	SyncModeSoft SyncMode = "soft"
	// SyncModeHard fetches device info plus all categories with no cap.
	SyncModeHard SyncMode = "hard"
)

// DeviceStatus is the per-device outcome of one reconciliation run.
type DeviceStatus string

const (
	DeviceStatusSucceeded DeviceStatus = "succeeded"
	DeviceStatusPartial   DeviceStatus = "partial"
	DeviceStatusFailed    DeviceStatus = "failed"
)

// CategoryResult holds per-category upsert counts for one device.
type CategoryResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Fetched int      `json:"fetched"`
	Errors  []string `json:"errors,omitempty"`
}

// DeviceOutcome is the serializable result of reconciling one device.
type DeviceOutcome struct {
	DeviceID   string                      `json:"device_id"`
	Status     DeviceStatus                `json:"status"`
	Categories map[Category]CategoryResult `json:"categories,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// RunResult is the aggregate outcome of a reconciliation run, surfaced to the
// scheduler as the execution result and serialized into job run history.
type RunResult struct {
	RunID            string          `json:"run_id"`
	Mode             SyncMode        `json:"mode"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	DevicesAttempted int             `json:"devices_attempted"`
	DevicesSucceeded int             `json:"devices_succeeded"`
	DevicesPartial   int             `json:"devices_partial"`
	DevicesFailed    int             `json:"devices_failed"`
	RecordsCreated   int             `json:"records_created"`
	RecordsUpdated   int             `json:"records_updated"`
	RecordsSkipped   int             `json:"records_skipped"`
	Devices          []DeviceOutcome `json:"devices,omitempty"`
	Errors           []string        `json:"errors,omitempty"`
}

// Merge folds one device outcome into the aggregate counters.
func (r *RunResult) Merge(o DeviceOutcome) {
	r.DevicesAttempted++
	switch o.Status {
	case DeviceStatusSucceeded:
		r.DevicesSucceeded++
	case DeviceStatusPartial:
		r.DevicesPartial++
	case DeviceStatusFailed:
		r.DevicesFailed++
	}
	for _, cr := range o.Categories {
		r.RecordsCreated += cr.Created
		r.RecordsUpdated += cr.Updated
		r.RecordsSkipped += cr.Skipped
	}
	if o.Error != "" {
		r.Errors = append(r.Errors, o.DeviceID+": "+o.Error)
	}
	r.Devices = append(r.Devices, o)
}
