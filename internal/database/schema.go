// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates sequences, tables and indexes.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// schemaQueries returns the schema DDL in dependency order. All columns are
// defined in the initial CREATE TABLE statements; there is no migration
// machinery yet.
func schemaQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_sync_log_id START 1`,

		// One row per physical device; device_id is the stable client-reported
		// identifier and the join key across all telemetry tables.
		`CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			code TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT false,
			last_seen BIGINT,
			battery_percentage INTEGER,
			current_phone TEXT NOT NULL DEFAULT '',
			current_identifier TEXT NOT NULL DEFAULT '',
			sync_status TEXT NOT NULL DEFAULT 'never_synced',
			sync_error TEXT NOT NULL DEFAULT '',
			last_sync_at TIMESTAMP,
			last_hard_sync_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// (device_id, ts) is the identity of a message: the same logical
		// message can surface through several remote path layouts and must
		// collapse to one row.
		`CREATE TABLE IF NOT EXISTS messages (
			device_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			direction TEXT NOT NULL DEFAULT 'received',
			phone TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			read BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (device_id, ts)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			device_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			app_package TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (device_id, ts)
		)`,

		// Contacts update in place: the phone number is the contact's stable
		// key and any other field may be revised by a later sync. List fields
		// are stored as JSON arrays.
		`CREATE TABLE IF NOT EXISTS contacts (
			device_id TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			contact_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			phones TEXT NOT NULL DEFAULT '[]',
			emails TEXT NOT NULL DEFAULT '[]',
			addresses TEXT NOT NULL DEFAULT '[]',
			company TEXT NOT NULL DEFAULT '',
			job_title TEXT NOT NULL DEFAULT '',
			nickname TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			last_contacted BIGINT,
			times_contacted INTEGER NOT NULL DEFAULT 0,
			is_starred BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (device_id, phone_number)
		)`,

		// Append-only reconciliation audit trail, also the input to staleness
		// detection.
		`CREATE TABLE IF NOT EXISTS sync_logs (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_sync_log_id'),
			device_id TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			operation TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			every INTEGER NOT NULL DEFAULT 0,
			unit TEXT NOT NULL DEFAULT '',
			cron TEXT NOT NULL DEFAULT '',
			args TEXT NOT NULL DEFAULT '',
			last_run_at TIMESTAMP,
			total_runs INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS job_runs (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			job_name TEXT NOT NULL,
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			trigger_kind TEXT NOT NULL DEFAULT 'schedule',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_device_ts ON messages(device_id, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_device_ts ON notifications(device_id, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_device_created ON sync_logs(device_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_created ON sync_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_job_started ON job_runs(job_id, started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at DESC)`,
	}
}
