// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mgeller/fleetsync/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const deviceColumns = `device_id, name, model, phone, code, is_active, last_seen,
	battery_percentage, current_phone, current_identifier, sync_status, sync_error,
	last_sync_at, last_hard_sync_at, created_at, updated_at`

// UpsertDevice writes a device record. Device info always updates in place:
// the remote store is authoritative for every attribute it reports.
func (db *DB) UpsertDevice(ctx context.Context, dev *models.Device) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO devices (device_id, name, model, phone, code, is_active,
			last_seen, battery_percentage, current_phone, current_identifier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, now())
		ON CONFLICT (device_id) DO UPDATE SET
			name = excluded.name,
			model = excluded.model,
			phone = excluded.phone,
			code = excluded.code,
			is_active = excluded.is_active,
			last_seen = excluded.last_seen,
			battery_percentage = excluded.battery_percentage,
			current_phone = excluded.current_phone,
			current_identifier = excluded.current_identifier,
			updated_at = now()`,
		dev.DeviceID, dev.Name, dev.Model, dev.Phone, dev.Code, dev.IsActive,
		dev.LastSeen, dev.BatteryPercentage, dev.CurrentPhone, dev.CurrentIdentifier)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", dev.DeviceID, err)
	}
	return nil
}

// EnsureDevice inserts a bare device row if none exists, so telemetry for a
// device discovered under a legacy root has a parent record.
func (db *DB) EnsureDevice(ctx context.Context, deviceID string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO devices (device_id) VALUES (?)
		ON CONFLICT (device_id) DO NOTHING`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to ensure device %s: %w", deviceID, err)
	}
	return nil
}

// GetDevice fetches one device by identifier.
func (db *DB) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	dev, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return dev, err
}

// ListDevices returns all devices ordered by identifier.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	return db.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY device_id`)
}

// ListActiveDevices returns devices flagged active, the population every sync
// run iterates.
func (db *DB) ListActiveDevices(ctx context.Context) ([]models.Device, error) {
	return db.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE is_active ORDER BY device_id`)
}

// SetSyncStatus transitions a device's reconciliation status, clearing or
// recording the failure detail.
func (db *DB) SetSyncStatus(ctx context.Context, deviceID string, status models.SyncStatus, syncErr string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE devices SET sync_status = ?, sync_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE device_id = ?`, string(status), syncErr, deviceID)
	if err != nil {
		return fmt.Errorf("failed to set sync status for %s: %w", deviceID, err)
	}
	return nil
}

// TouchSyncTime records a successful sync completion time. Hard syncs also
// advance last_hard_sync_at.
func (db *DB) TouchSyncTime(ctx context.Context, deviceID string, hard bool, at time.Time) error {
	var err error
	if hard {
		_, err = db.conn.ExecContext(ctx, `
			UPDATE devices SET last_sync_at = ?, last_hard_sync_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE device_id = ?`, at.UTC(), at.UTC(), deviceID)
	} else {
		_, err = db.conn.ExecContext(ctx, `
			UPDATE devices SET last_sync_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE device_id = ?`, at.UTC(), deviceID)
	}
	if err != nil {
		return fmt.Errorf("failed to touch sync time for %s: %w", deviceID, err)
	}
	return nil
}

// ListStaleDevices returns active devices whose most recent successful sync
// log is older than the threshold, or that have no successful sync log at all.
func (db *DB) ListStaleDevices(ctx context.Context, olderThan time.Time) ([]models.Device, error) {
	return db.queryDevices(ctx, `
		SELECT `+deviceColumns+` FROM devices d
		WHERE d.is_active
		  AND COALESCE(
			(SELECT max(created_at) FROM sync_logs s
			 WHERE s.device_id = d.device_id AND s.status = 'success'),
			TIMESTAMP '1970-01-01') < ?
		ORDER BY d.device_id`, olderThan.UTC())
}

// MarkOutOfSync flips stale active devices to out_of_sync and returns how
// many rows changed. Devices already failed or out of sync keep their status.
func (db *DB) MarkOutOfSync(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE devices SET sync_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE is_active
		  AND sync_status IN (?, ?)
		  AND COALESCE(
			(SELECT max(created_at) FROM sync_logs s
			 WHERE s.device_id = devices.device_id AND s.status = 'success'),
			TIMESTAMP '1970-01-01') < ?`,
		string(models.SyncStatusOutOfSync),
		string(models.SyncStatusSynced), string(models.SyncStatusSyncing),
		olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark devices out of sync: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) queryDevices(ctx context.Context, query string, args ...any) ([]models.Device, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer closeRows(rows)

	var devices []models.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *dev)
	}
	return devices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var dev models.Device
	var lastSeen sql.NullInt64
	var battery sql.NullInt32
	var lastSync, lastHardSync sql.NullTime

	err := row.Scan(&dev.DeviceID, &dev.Name, &dev.Model, &dev.Phone, &dev.Code,
		&dev.IsActive, &lastSeen, &battery, &dev.CurrentPhone, &dev.CurrentIdentifier,
		&dev.SyncStatus, &dev.SyncError, &lastSync, &lastHardSync,
		&dev.CreatedAt, &dev.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}

	if lastSeen.Valid {
		dev.LastSeen = &lastSeen.Int64
	}
	if battery.Valid {
		b := int(battery.Int32)
		dev.BatteryPercentage = &b
	}
	if lastSync.Valid {
		dev.LastSyncAt = &lastSync.Time
	}
	if lastHardSync.Valid {
		dev.LastHardSyncAt = &lastHardSync.Time
	}
	return &dev, nil
}
