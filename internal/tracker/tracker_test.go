// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/mgeller/fleetsync/internal/config"
	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/models"
)

func newTestTracker(t *testing.T, staleAfter time.Duration) (*Tracker, *database.DB) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", Threads: 2})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, staleAfter), db
}

func seedDevice(t *testing.T, db *database.DB, id string) {
	t.Helper()
	if err := db.UpsertDevice(context.Background(), &models.Device{DeviceID: id, IsActive: true}); err != nil {
		t.Fatalf("UpsertDevice(%s) error = %v", id, err)
	}
}

func TestRecordOutcomeSuccess(t *testing.T) {
	tr, db := newTestTracker(t, time.Hour)
	ctx := context.Background()
	seedDevice(t, db, "DEV1")

	outcome := models.DeviceOutcome{
		DeviceID: "DEV1",
		Status:   models.DeviceStatusSucceeded,
		Categories: map[models.Category]models.CategoryResult{
			models.CategoryMessages: {Created: 3, Fetched: 3},
		},
	}
	if err := tr.RecordOutcome(ctx, models.SyncModeSoft, outcome); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	dev, err := db.GetDevice(ctx, "DEV1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if dev.SyncStatus != models.SyncStatusSynced {
		t.Errorf("SyncStatus = %q, want synced", dev.SyncStatus)
	}
	if dev.LastSyncAt == nil {
		t.Error("LastSyncAt not set after success")
	}
	if dev.LastHardSyncAt != nil {
		t.Error("soft sync must not touch LastHardSyncAt")
	}

	logs, err := db.ListSyncLogs(ctx, "DEV1", 10)
	if err != nil {
		t.Fatalf("ListSyncLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != models.SyncLogSuccess {
		t.Errorf("sync logs = %+v", logs)
	}
}

func TestRecordOutcomeHardSyncTouchesHardTime(t *testing.T) {
	tr, db := newTestTracker(t, time.Hour)
	ctx := context.Background()
	seedDevice(t, db, "DEV1")

	outcome := models.DeviceOutcome{DeviceID: "DEV1", Status: models.DeviceStatusSucceeded}
	if err := tr.RecordOutcome(ctx, models.SyncModeHard, outcome); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	dev, err := db.GetDevice(ctx, "DEV1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if dev.LastHardSyncAt == nil {
		t.Error("hard sync must set LastHardSyncAt")
	}
}

func TestRecordOutcomeFailure(t *testing.T) {
	tr, db := newTestTracker(t, time.Hour)
	ctx := context.Background()
	seedDevice(t, db, "DEV1")

	outcome := models.DeviceOutcome{
		DeviceID: "DEV1",
		Status:   models.DeviceStatusFailed,
		Error:    "all paths absent",
	}
	if err := tr.RecordOutcome(ctx, models.SyncModeSoft, outcome); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	dev, err := db.GetDevice(ctx, "DEV1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if dev.SyncStatus != models.SyncStatusFailed {
		t.Errorf("SyncStatus = %q, want sync_failed", dev.SyncStatus)
	}
	if dev.SyncError != "all paths absent" {
		t.Errorf("SyncError = %q", dev.SyncError)
	}
	if dev.LastSyncAt != nil {
		t.Error("failed outcome must not touch LastSyncAt")
	}
}

func TestStaleDevices(t *testing.T) {
	tr, db := newTestTracker(t, time.Minute)
	ctx := context.Background()
	seedDevice(t, db, "FRESH")
	seedDevice(t, db, "NEVER")

	ok := models.DeviceOutcome{DeviceID: "FRESH", Status: models.DeviceStatusSucceeded}
	if err := tr.RecordOutcome(ctx, models.SyncModeSoft, ok); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	stale, err := tr.StaleDevices(ctx)
	if err != nil {
		t.Fatalf("StaleDevices() error = %v", err)
	}
	if len(stale) != 1 || stale[0].DeviceID != "NEVER" {
		t.Errorf("stale = %+v, want [NEVER]", stale)
	}

	isStale, err := tr.IsStale(ctx, "NEVER")
	if err != nil {
		t.Fatalf("IsStale() error = %v", err)
	}
	if !isStale {
		t.Error("never-synced device must be stale")
	}
	isStale, err = tr.IsStale(ctx, "FRESH")
	if err != nil {
		t.Fatalf("IsStale() error = %v", err)
	}
	if isStale {
		t.Error("freshly synced device must not be stale")
	}
}

func TestMarkOutOfSync(t *testing.T) {
	tr, db := newTestTracker(t, time.Minute)
	ctx := context.Background()
	seedDevice(t, db, "DEV1")
	if err := db.SetSyncStatus(ctx, "DEV1", models.SyncStatusSynced, ""); err != nil {
		t.Fatalf("SetSyncStatus() error = %v", err)
	}

	marked, err := tr.MarkOutOfSync(ctx)
	if err != nil {
		t.Fatalf("MarkOutOfSync() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("marked = %d, want 1", marked)
	}
}
