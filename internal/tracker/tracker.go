// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package tracker maintains per-device sync health: it records reconciliation
// outcomes into the audit log, transitions device sync status, and detects
// devices whose data has gone stale.
//
// Staleness detection is deliberately a separate pass from reconciliation: a
// run that never reaches a device (worker pool saturated, scheduler paused)
// must still surface that device as stale.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
	"github.com/mgeller/fleetsync/internal/models"
)

// Tracker records sync outcomes and computes staleness.
type Tracker struct {
	db         *database.DB
	staleAfter time.Duration
}

// New creates a tracker. staleAfter is the maximum age of the newest
// successful sync log before a device counts as stale.
func New(db *database.DB, staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Tracker{db: db, staleAfter: staleAfter}
}

// RecordOutcome appends the device's sync log entry and transitions its sync
// status. Partial outcomes count as success for staleness purposes: data was
// written, the device is not silent.
func (t *Tracker) RecordOutcome(ctx context.Context, mode models.SyncMode, outcome models.DeviceOutcome) error {
	detail, err := json.Marshal(struct {
		Mode models.SyncMode `json:"mode"`
		models.DeviceOutcome
	}{Mode: mode, DeviceOutcome: outcome})
	if err != nil {
		return fmt.Errorf("failed to marshal outcome for %s: %w", outcome.DeviceID, err)
	}

	logStatus := models.SyncLogSuccess
	syncStatus := models.SyncStatusSynced
	if outcome.Status == models.DeviceStatusFailed {
		logStatus = models.SyncLogFailed
		syncStatus = models.SyncStatusFailed
	}

	if err := t.db.AppendSyncLog(ctx, outcome.DeviceID, logStatus, string(detail)); err != nil {
		return err
	}
	if err := t.db.SetSyncStatus(ctx, outcome.DeviceID, syncStatus, outcome.Error); err != nil {
		return err
	}
	if outcome.Status != models.DeviceStatusFailed {
		hard := mode == models.SyncModeHard
		if err := t.db.TouchSyncTime(ctx, outcome.DeviceID, hard, time.Now()); err != nil {
			return err
		}
	}

	metrics.DevicesReconciled.WithLabelValues(string(outcome.Status)).Inc()
	return nil
}

// MarkSyncing flags a device as in-flight before its categories are fetched.
func (t *Tracker) MarkSyncing(ctx context.Context, deviceID string) error {
	return t.db.SetSyncStatus(ctx, deviceID, models.SyncStatusSyncing, "")
}

// StaleDevices returns active devices whose newest successful sync log is
// older than the staleness threshold, and updates the stale device gauge.
func (t *Tracker) StaleDevices(ctx context.Context) ([]models.Device, error) {
	cutoff := time.Now().Add(-t.staleAfter)
	stale, err := t.db.ListStaleDevices(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	metrics.StaleDevices.Set(float64(len(stale)))
	return stale, nil
}

// IsStale reports whether one device's newest successful sync log is older
// than the staleness threshold.
func (t *Tracker) IsStale(ctx context.Context, deviceID string) (bool, error) {
	last, err := t.db.LastSuccessfulSync(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return last.Before(time.Now().Add(-t.staleAfter)), nil
}

// MarkOutOfSync transitions stale devices to out_of_sync and returns how many
// changed. Run as its own scheduled job so status converges even when no sync
// runs are firing.
func (t *Tracker) MarkOutOfSync(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-t.staleAfter)
	marked, err := t.db.MarkOutOfSync(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		logging.Info().Int64("devices", marked).Msg("Marked stale devices out of sync")
	}
	return marked, nil
}
