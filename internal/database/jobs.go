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

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mgeller/fleetsync/internal/models"
)

const jobColumns = `id, name, operation, enabled, every, unit, cron, args,
	last_run_at, total_runs, created_at, updated_at`

// CreateJob persists a new scheduled job definition. The caller validates the
// schedule and operation kind; this layer only enforces name uniqueness.
func (db *DB) CreateJob(ctx context.Context, job *models.ScheduledJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, name, operation, enabled, every, unit, cron, args, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, string(job.Operation), job.Enabled,
		job.Every, string(job.Unit), job.Cron, string(job.Args), now, now)
	if err != nil {
		return fmt.Errorf("failed to create job %q: %w", job.Name, err)
	}
	return nil
}

// UpdateJob rewrites a job definition's schedule, operation and args.
func (db *DB) UpdateJob(ctx context.Context, job *models.ScheduledJob) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET name = ?, operation = ?, enabled = ?, every = ?, unit = ?, cron = ?, args = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		job.Name, string(job.Operation), job.Enabled,
		job.Every, string(job.Unit), job.Cron, string(job.Args), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return requireRow(res, job.ID)
}

// SetJobEnabled toggles a job without touching its schedule.
func (db *DB) SetJobEnabled(ctx context.Context, jobID string, enabled bool) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE scheduled_jobs SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		enabled, jobID)
	if err != nil {
		return fmt.Errorf("failed to toggle job %s: %w", jobID, err)
	}
	return requireRow(res, jobID)
}

// DeleteJob removes a job definition. Its run history is retained.
func (db *DB) DeleteJob(ctx context.Context, jobID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return requireRow(res, jobID)
}

// GetJob fetches one job by identifier.
func (db *DB) GetJob(ctx context.Context, jobID string) (*models.ScheduledJob, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, jobID)
	return scanJob(row, jobID)
}

// GetJobByName fetches one job by its unique name.
func (db *DB) GetJobByName(ctx context.Context, name string) (*models.ScheduledJob, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE name = ?`, name)
	return scanJob(row, name)
}

// ListJobs returns every job definition ordered by name.
func (db *DB) ListJobs(ctx context.Context) ([]models.ScheduledJob, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer closeRows(rows)

	var jobs []models.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows, "")
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// TouchJobRun advances a job's last-run bookkeeping after a firing.
func (db *DB) TouchJobRun(ctx context.Context, jobID string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET last_run_at = ?, total_runs = total_runs + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, at.UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to touch job run for %s: %w", jobID, err)
	}
	return nil
}

// InsertJobRun records one job firing outcome.
func (db *DB) InsertJobRun(ctx context.Context, run *models.JobRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO job_runs (id, job_id, job_name, operation, status, result, error, trigger_kind, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobID, run.JobName, string(run.Operation), string(run.Status),
		string(run.Result), run.Error, run.Trigger, run.StartedAt.UTC(), run.FinishedAt, run.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to insert job run for %s: %w", run.JobName, err)
	}
	return nil
}

// ListJobRuns returns the newest run records, optionally filtered to one job.
func (db *DB) ListJobRuns(ctx context.Context, jobID string, limit int) ([]models.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job_id, job_name, operation, status, result, error, trigger_kind,
		started_at, finished_at, duration_ms FROM job_runs`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer closeRows(rows)

	var runs []models.JobRun
	for rows.Next() {
		var run models.JobRun
		var result string
		var finished sql.NullTime
		err := rows.Scan(&run.ID, &run.JobID, &run.JobName, &run.Operation, &run.Status,
			&result, &run.Error, &run.Trigger, &run.StartedAt, &finished, &run.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		if result != "" {
			run.Result = json.RawMessage(result)
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteJobRunsBefore removes run history older than the cutoff.
func (db *DB) DeleteJobRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM job_runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old job runs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(row rowScanner, ref string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	var args string
	var lastRun sql.NullTime

	err := row.Scan(&job.ID, &job.Name, &job.Operation, &job.Enabled,
		&job.Every, &job.Unit, &job.Cron, &args, &lastRun,
		&job.TotalRuns, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if args != "" {
		job.Args = json.RawMessage(args)
	}
	if lastRun.Valid {
		job.LastRunAt = &lastRun.Time
	}
	return &job, nil
}

func requireRow(res sql.Result, ref string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", ref, ErrNotFound)
	}
	return nil
}
