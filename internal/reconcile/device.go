// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/normalize"
	"github.com/mgeller/fleetsync/internal/pathres"
)

// SyncDevice reconciles one device and records the outcome. Never returns an
// error: every failure mode is folded into the DeviceOutcome so fleet runs
// keep going.
func (r *Reconciler) SyncDevice(ctx context.Context, deviceID string, mode models.SyncMode) models.DeviceOutcome {
	unlock := r.lockDevice(deviceID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, r.opts.DeviceTimeout)
	defer cancel()

	outcome := models.DeviceOutcome{
		DeviceID:   deviceID,
		Categories: make(map[models.Category]models.CategoryResult),
	}

	if err := r.tracker.MarkSyncing(ctx, deviceID); err != nil {
		outcome.Status = models.DeviceStatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	if r.shouldFetchDeviceInfo(ctx, deviceID, mode) {
		outcome.Categories[models.CategoryDevice] = r.syncDeviceInfo(ctx, deviceID)
	}

	// Remaining categories run in fixed order. Cancellation is checked
	// between categories, not inside one, so a cancelled run never leaves a
	// category half-written beyond its in-flight record.
	for _, category := range models.SyncCategories {
		if err := ctx.Err(); err != nil {
			outcome.Error = "cancelled before " + string(category)
			break
		}
		outcome.Categories[category] = r.syncCategory(ctx, deviceID, category, mode)
	}

	outcome.Status = classify(outcome)
	if outcome.Status == models.DeviceStatusFailed && outcome.Error == "" {
		outcome.Error = firstCategoryError(outcome)
	}

	if err := r.tracker.RecordOutcome(ctx, mode, outcome); err != nil {
		// Recording can fail on cancellation; the outcome itself stands.
		logging.Warn().Str("device_id", deviceID).Err(err).Msg("Failed to record sync outcome")
	}
	return outcome
}

// shouldFetchDeviceInfo decides whether this run refreshes device info. Hard
// runs always do; soft runs only when the device is stale or not yet synced,
// keeping the steady-state read volume down.
func (r *Reconciler) shouldFetchDeviceInfo(ctx context.Context, deviceID string, mode models.SyncMode) bool {
	if mode == models.SyncModeHard {
		return true
	}
	dev, err := r.db.GetDevice(ctx, deviceID)
	if err != nil {
		return true
	}
	switch dev.SyncStatus {
	case models.SyncStatusSynced, models.SyncStatusSyncing:
	default:
		return true
	}
	stale, err := r.tracker.IsStale(ctx, deviceID)
	if err != nil {
		return true
	}
	return stale
}

// syncDeviceInfo fetches and stores the device info record.
func (r *Reconciler) syncDeviceInfo(ctx context.Context, deviceID string) models.CategoryResult {
	var result models.CategoryResult

	records, err := r.fetchFirstPresent(ctx, deviceID, models.CategoryDevice)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	if records == nil || records.Device == nil {
		return result // Absent everywhere; not an error.
	}

	result.Fetched = 1
	if err := r.db.UpsertDevice(ctx, records.Device); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Updated = 1
	return result
}

// syncCategory fetches one telemetry category and writes it to the store,
// applying the soft-mode record cap.
func (r *Reconciler) syncCategory(ctx context.Context, deviceID string, category models.Category, mode models.SyncMode) models.CategoryResult {
	var result models.CategoryResult

	records, err := r.fetchFirstPresent(ctx, deviceID, category)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	if records == nil {
		return result // Absent everywhere.
	}

	limit := 0
	if mode == models.SyncModeSoft {
		limit = r.opts.SoftCap
	}

	var stats database.WriteStats
	switch category {
	case models.CategoryMessages:
		msgs := records.Messages
		result.Fetched = len(msgs)
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[:limit] // Newest first; the cap keeps the most recent.
		}
		stats, err = r.db.InsertMessages(ctx, msgs)
	case models.CategoryNotifications:
		notes := records.Notifications
		result.Fetched = len(notes)
		if limit > 0 && len(notes) > limit {
			notes = notes[:limit]
		}
		stats, err = r.db.InsertNotifications(ctx, notes)
	case models.CategoryContacts:
		contacts := records.Contacts
		result.Fetched = len(contacts)
		if limit > 0 && len(contacts) > limit {
			contacts = contacts[:limit]
		}
		stats, err = r.db.UpsertContacts(ctx, contacts)
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("no writer for category %s", category))
		return result
	}

	result.Created = stats.Created
	result.Updated = stats.Updated
	result.Skipped = stats.Skipped
	if stats.Errors > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d records failed to write", stats.Errors))
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

// fetchFirstPresent walks the category's candidate paths in order and decodes
// the first non-absent payload. A payload that fails normalization counts as
// absent for that path and resolution continues. A read error likewise moves
// resolution to the next path; the category fails only when every candidate
// erred or was absent, so an unreadable canonical path cannot blind the run
// to data still reachable under a legacy layout.
func (r *Reconciler) fetchFirstPresent(ctx context.Context, deviceID string, category models.Category) (*normalize.Records, error) {
	candidates, err := pathres.Resolve(deviceID, category)
	if err != nil {
		return nil, err
	}

	var readErrs []error
	for _, cand := range candidates {
		res, err := r.reader.Read(ctx, cand.Path)
		if err != nil {
			logging.Warn().Str("path", cand.Path).Err(err).
				Msg("Read failed, trying next candidate path")
			readErrs = append(readErrs, fmt.Errorf("read %s: %w", cand.Path, err))
			continue
		}
		if res.Absent {
			continue
		}

		records, err := normalize.Normalize(cand.Shape, deviceID, json.RawMessage(res.Raw))
		if err != nil {
			var nerr *normalize.Error
			if errors.As(err, &nerr) {
				logging.Warn().Str("path", cand.Path).Err(err).
					Msg("Undecodable payload, treating path as absent")
				continue
			}
			return nil, err
		}
		if records.Dropped > 0 {
			logging.Debug().Str("path", cand.Path).Int("dropped", records.Dropped).
				Msg("Dropped malformed entries during normalization")
		}
		return records, nil
	}
	if len(readErrs) > 0 {
		return nil, errors.Join(readErrs...)
	}
	return nil, nil
}

// classify derives the device status from its category results.
func classify(outcome models.DeviceOutcome) models.DeviceStatus {
	if outcome.Error != "" {
		return models.DeviceStatusFailed
	}
	total, failed := 0, 0
	for _, cr := range outcome.Categories {
		total++
		if len(cr.Errors) > 0 {
			failed++
		}
	}
	switch {
	case total == 0 || failed == 0:
		return models.DeviceStatusSucceeded
	case failed == total:
		return models.DeviceStatusFailed
	default:
		return models.DeviceStatusPartial
	}
}

func firstCategoryError(outcome models.DeviceOutcome) string {
	for _, category := range append([]models.Category{models.CategoryDevice}, models.SyncCategories...) {
		if cr, ok := outcome.Categories[category]; ok && len(cr.Errors) > 0 {
			return cr.Errors[0]
		}
	}
	return ""
}
