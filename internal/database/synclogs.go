// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mgeller/fleetsync/internal/models"
)

// AppendSyncLog records one reconciliation outcome for a device. The log is
// append-only; rows are removed only by retention cleanup.
func (db *DB) AppendSyncLog(ctx context.Context, deviceID, status, detail string) error {
	if detail == "" {
		detail = "{}"
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_logs (device_id, status, detail) VALUES (?, ?, ?)`,
		deviceID, status, detail)
	if err != nil {
		return fmt.Errorf("failed to append sync log for %s: %w", deviceID, err)
	}
	return nil
}

// LastSuccessfulSync returns the time of the device's most recent successful
// sync log, or the zero time when none exists.
func (db *DB) LastSuccessfulSync(ctx context.Context, deviceID string) (time.Time, error) {
	var t *time.Time
	err := db.conn.QueryRowContext(ctx, `
		SELECT max(created_at) FROM sync_logs
		WHERE device_id = ? AND status = ?`, deviceID, models.SyncLogSuccess).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last sync for %s: %w", deviceID, err)
	}
	if t == nil {
		return time.Time{}, nil
	}
	return *t, nil
}

// ListSyncLogs returns the newest sync logs, most recent first. An empty
// deviceID lists across the whole fleet.
func (db *DB) ListSyncLogs(ctx context.Context, deviceID string, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, device_id, status, detail, created_at FROM sync_logs`
	args := []any{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer closeRows(rows)

	var logs []models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.Status, &l.Detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteSyncLogsBefore removes sync logs older than the cutoff and returns
// the number deleted. Used by the retention cleanup job.
func (db *DB) DeleteSyncLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_logs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sync logs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOrphanTelemetry removes telemetry rows whose device record no longer
// exists and returns the total removed across categories.
func (db *DB) DeleteOrphanTelemetry(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"messages", "notifications", "contacts", "sync_logs"} {
		res, err := db.conn.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE device_id NOT IN (SELECT device_id FROM devices)`, table))
		if err != nil {
			return total, fmt.Errorf("failed to delete orphan rows from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			total += n
		}
	}
	return total, nil
}
