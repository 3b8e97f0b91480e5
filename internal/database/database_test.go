// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mgeller/fleetsync/internal/config"
	"github.com/mgeller/fleetsync/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func TestUpsertDeviceAlwaysUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	battery := 90
	dev := &models.Device{DeviceID: "DEV1", Name: "Pixel", IsActive: true, BatteryPercentage: &battery}
	if err := db.UpsertDevice(ctx, dev); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	// A second upsert overwrites every reported attribute, including
	// clearing ones the remote no longer reports.
	dev2 := &models.Device{DeviceID: "DEV1", Name: "Pixel 7", IsActive: false}
	if err := db.UpsertDevice(ctx, dev2); err != nil {
		t.Fatalf("UpsertDevice() second error = %v", err)
	}

	got, err := db.GetDevice(ctx, "DEV1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Name != "Pixel 7" || got.IsActive {
		t.Errorf("device after second upsert = %+v", got)
	}
	if got.BatteryPercentage != nil {
		t.Errorf("BatteryPercentage should be cleared, got %v", *got.BatteryPercentage)
	}
	if got.SyncStatus != models.SyncStatusNeverSynced {
		t.Errorf("SyncStatus = %q, want never_synced default", got.SyncStatus)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetDevice(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDevice() error = %v, want ErrNotFound", err)
	}
}

func TestInsertMessagesIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	batch := []models.Message{
		{DeviceID: "DEV1", Timestamp: 1000, Direction: models.DirectionSent, Phone: "+1", Body: "a"},
		{DeviceID: "DEV1", Timestamp: 2000, Direction: models.DirectionReceived, Phone: "+2", Body: "b"},
	}
	stats, err := db.InsertMessages(ctx, batch)
	if err != nil {
		t.Fatalf("InsertMessages() error = %v", err)
	}
	if stats.Created != 2 || stats.Skipped != 0 {
		t.Errorf("first batch stats = %+v, want 2 created", stats)
	}

	// Replaying the batch with divergent content must not modify rows.
	batch[0].Body = "changed"
	stats, err = db.InsertMessages(ctx, batch)
	if err != nil {
		t.Fatalf("InsertMessages() replay error = %v", err)
	}
	if stats.Created != 0 || stats.Skipped != 2 {
		t.Errorf("replay stats = %+v, want 2 skipped", stats)
	}

	n, err := db.CountMessages(ctx, "DEV1")
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if n != 2 {
		t.Errorf("message count = %d, want 2", n)
	}
}

func TestInsertNotificationsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	batch := []models.Notification{
		{DeviceID: "DEV1", Timestamp: 1000, Package: "com.app", Title: "t", Text: "x"},
	}
	if _, err := db.InsertNotifications(ctx, batch); err != nil {
		t.Fatalf("InsertNotifications() error = %v", err)
	}
	stats, err := db.InsertNotifications(ctx, batch)
	if err != nil {
		t.Fatalf("InsertNotifications() replay error = %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("replay stats = %+v, want 1 skipped", stats)
	}
}

func TestUpsertContactsMerges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	last := int64(1600000000000)
	first := []models.Contact{{
		DeviceID: "DEV1", PhoneNumber: "+15550100", Name: "Ada",
		Emails: []string{"ada@example.com"}, Company: "Analytical",
		LastContacted: &last, TimesContacted: 5, IsStarred: true,
	}}
	stats, err := db.UpsertContacts(ctx, first)
	if err != nil {
		t.Fatalf("UpsertContacts() error = %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("first stats = %+v, want 1 created", stats)
	}

	// Second sync revises the name but omits email and company; the stored
	// values must survive.
	second := []models.Contact{{
		DeviceID: "DEV1", PhoneNumber: "+15550100", Name: "Ada Lovelace",
		TimesContacted: 3, // Lower count must not regress the stored one
	}}
	stats, err = db.UpsertContacts(ctx, second)
	if err != nil {
		t.Fatalf("UpsertContacts() merge error = %v", err)
	}
	if stats.Updated != 1 || stats.Created != 0 {
		t.Errorf("merge stats = %+v, want 1 updated", stats)
	}

	got, err := db.GetContact(ctx, "DEV1", "+15550100")
	if err != nil {
		t.Fatalf("GetContact() error = %v", err)
	}
	if got.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, incoming non-empty must win", got.Name)
	}
	if got.Company != "Analytical" || len(got.Emails) != 1 {
		t.Errorf("omitted fields must survive merge: %+v", got)
	}
	if got.TimesContacted != 5 {
		t.Errorf("TimesContacted = %d, must not regress below 5", got.TimesContacted)
	}
	if !got.IsStarred {
		t.Error("IsStarred must survive merge")
	}
	if got.LastContacted == nil || *got.LastContacted != last {
		t.Errorf("LastContacted = %v, want %d", got.LastContacted, last)
	}
}

func TestSyncLogsAndStaleness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"FRESH", "STALE"} {
		dev := &models.Device{DeviceID: id, IsActive: true}
		if err := db.UpsertDevice(ctx, dev); err != nil {
			t.Fatalf("UpsertDevice(%s) error = %v", id, err)
		}
		if err := db.SetSyncStatus(ctx, id, models.SyncStatusSynced, ""); err != nil {
			t.Fatalf("SetSyncStatus(%s) error = %v", id, err)
		}
	}
	if err := db.AppendSyncLog(ctx, "FRESH", models.SyncLogSuccess, `{"mode":"soft"}`); err != nil {
		t.Fatalf("AppendSyncLog() error = %v", err)
	}
	// STALE has only a failed log, which must not count.
	if err := db.AppendSyncLog(ctx, "STALE", models.SyncLogFailed, ""); err != nil {
		t.Fatalf("AppendSyncLog() error = %v", err)
	}

	cutoff := time.Now().Add(-time.Minute)
	stale, err := db.ListStaleDevices(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListStaleDevices() error = %v", err)
	}
	if len(stale) != 1 || stale[0].DeviceID != "STALE" {
		t.Fatalf("stale devices = %+v, want [STALE]", stale)
	}

	marked, err := db.MarkOutOfSync(ctx, cutoff)
	if err != nil {
		t.Fatalf("MarkOutOfSync() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("MarkOutOfSync() = %d, want 1", marked)
	}
	got, err := db.GetDevice(ctx, "STALE")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.SyncStatus != models.SyncStatusOutOfSync {
		t.Errorf("SyncStatus = %q, want out_of_sync", got.SyncStatus)
	}

	// Marking again is a no-op: the device already left the eligible set.
	marked, err = db.MarkOutOfSync(ctx, cutoff)
	if err != nil {
		t.Fatalf("MarkOutOfSync() second error = %v", err)
	}
	if marked != 0 {
		t.Errorf("second MarkOutOfSync() = %d, want 0", marked)
	}
}

func TestListSyncLogsAcrossDevices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.AppendSyncLog(ctx, "DEV1", models.SyncLogSuccess, ""); err != nil {
		t.Fatalf("AppendSyncLog() error = %v", err)
	}
	if err := db.AppendSyncLog(ctx, "DEV2", models.SyncLogFailed, ""); err != nil {
		t.Fatalf("AppendSyncLog() error = %v", err)
	}

	logs, err := db.ListSyncLogs(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListSyncLogs() error = %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("fleet-wide logs = %d, want 2", len(logs))
	}

	logs, err = db.ListSyncLogs(ctx, "DEV1", 10)
	if err != nil {
		t.Fatalf("ListSyncLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].DeviceID != "DEV1" {
		t.Errorf("DEV1 logs = %+v, want one row for DEV1", logs)
	}
}

func TestDeleteSyncLogsBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.AppendSyncLog(ctx, "DEV1", models.SyncLogSuccess, ""); err != nil {
		t.Fatalf("AppendSyncLog() error = %v", err)
	}
	deleted, err := db.DeleteSyncLogsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteSyncLogsBefore() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, recent logs must survive", deleted)
	}
	deleted, err = db.DeleteSyncLogsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteSyncLogsBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestJobLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	job := &models.ScheduledJob{
		Name:      "soft sync",
		Operation: models.OpSoftSyncAll,
		Enabled:   true,
		Every:     5,
		Unit:      models.UnitMinutes,
	}
	if err := db.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.ID == "" {
		t.Fatal("CreateJob() must assign an ID")
	}

	// Names are unique.
	dup := &models.ScheduledJob{Name: "soft sync", Operation: models.OpSoftSyncAll}
	if err := db.CreateJob(ctx, dup); err == nil {
		t.Error("CreateJob() accepted duplicate name")
	}

	if err := db.SetJobEnabled(ctx, job.ID, false); err != nil {
		t.Fatalf("SetJobEnabled() error = %v", err)
	}
	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Enabled {
		t.Error("job should be disabled")
	}
	if !got.IsInterval() || got.Every != 5 || got.Unit != models.UnitMinutes {
		t.Errorf("schedule fields = %+v", got)
	}

	if err := db.TouchJobRun(ctx, job.ID, time.Now()); err != nil {
		t.Fatalf("TouchJobRun() error = %v", err)
	}
	got, err = db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.TotalRuns != 1 || got.LastRunAt == nil {
		t.Errorf("run bookkeeping = runs %d lastRun %v", got.TotalRuns, got.LastRunAt)
	}

	if err := db.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if err := db.DeleteJob(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteJob() error = %v, want ErrNotFound", err)
	}
}

func TestJobRunHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Second)
	finished := time.Now()
	run := &models.JobRun{
		JobID: "j1", JobName: "soft sync", Operation: models.OpSoftSyncAll,
		Status: models.RunStatusSuccess, Trigger: models.TriggerSchedule,
		StartedAt: started, FinishedAt: &finished, DurationMS: 1000,
	}
	if err := db.InsertJobRun(ctx, run); err != nil {
		t.Fatalf("InsertJobRun() error = %v", err)
	}
	skip := &models.JobRun{
		JobID: "j1", JobName: "soft sync", Operation: models.OpSoftSyncAll,
		Status: models.RunStatusSkippedOverlap, Trigger: models.TriggerSchedule,
		StartedAt: time.Now(),
	}
	if err := db.InsertJobRun(ctx, skip); err != nil {
		t.Fatalf("InsertJobRun() skip error = %v", err)
	}

	runs, err := db.ListJobRuns(ctx, "j1", 10)
	if err != nil {
		t.Fatalf("ListJobRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first.
	if runs[0].Status != models.RunStatusSkippedOverlap {
		t.Errorf("first run status = %q, want skipped_overlap", runs[0].Status)
	}
	if runs[1].FinishedAt == nil {
		t.Error("finished run must round-trip FinishedAt")
	}
}
