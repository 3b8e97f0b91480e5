// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package scheduler fires persisted jobs against registered engine
// operations.
//
// Job definitions live in the relational store, not in process memory, so
// they survive restarts and are editable through the API. The scheduler
// evaluates due-times on a fixed tick; an interval job is due once its last
// run is older than the interval, a cron job once its next cron time has
// passed. Every firing, including rejected overlaps, leaves a JobRun record.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
	"github.com/mgeller/fleetsync/internal/models"
)

// OperationFunc executes one engine operation. The result payload, when
// non-nil, is stored on the JobRun record.
type OperationFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Scheduler evaluates and fires persisted jobs.
type Scheduler struct {
	db   *database.DB
	tick time.Duration

	mu  sync.RWMutex
	ops map[models.OperationKind]OperationFunc

	// inFlight guards against overlapping runs of the same job.
	inFlight sync.Map // jobID -> struct{}

	// wg tracks firings so Serve can drain them on shutdown.
	wg sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler ticking at the given interval.
func New(db *database.DB, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = 15 * time.Second
	}
	return &Scheduler{
		db:   db,
		tick: tick,
		ops:  make(map[models.OperationKind]OperationFunc),
		now:  time.Now,
	}
}

// Register binds an operation kind to its implementation. Jobs referencing
// an unregistered kind fail at fire time with a clear error; job creation
// already rejects unknown kinds.
func (s *Scheduler) Register(kind models.OperationKind, fn OperationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[kind] = fn
}

// ValidateJob checks a job definition: known operation kind and exactly one
// schedule form, with that form well-formed.
func (s *Scheduler) ValidateJob(job *models.ScheduledJob) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if _, err := models.ParseOperationKind(string(job.Operation)); err != nil {
		return err
	}

	hasInterval := job.Every != 0 || job.Unit != ""
	hasCron := job.Cron != ""
	switch {
	case hasInterval && hasCron:
		return fmt.Errorf("job %q sets both interval and cron schedules", job.Name)
	case !hasInterval && !hasCron:
		return fmt.Errorf("job %q has no schedule", job.Name)
	case hasInterval:
		if job.Every <= 0 {
			return fmt.Errorf("job %q interval must be positive, got %d", job.Name, job.Every)
		}
		if _, err := job.Unit.Duration(job.Every); err != nil {
			return err
		}
	default:
		if _, err := ParseCron(job.Cron); err != nil {
			return err
		}
	}
	return nil
}

// CreateJob validates and persists a new job definition.
func (s *Scheduler) CreateJob(ctx context.Context, job *models.ScheduledJob) error {
	if err := s.ValidateJob(job); err != nil {
		return err
	}
	return s.db.CreateJob(ctx, job)
}

// UpdateJob validates and persists changes to a job definition.
func (s *Scheduler) UpdateJob(ctx context.Context, job *models.ScheduledJob) error {
	if err := s.ValidateJob(job); err != nil {
		return err
	}
	return s.db.UpdateJob(ctx, job)
}

// Serve runs the tick loop until ctx is cancelled, then drains in-flight
// firings. Implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("tick", s.tick).Msg("Scheduler starting")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Scheduler stopping, draining in-flight jobs")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

// evaluate fires every enabled job that is due.
func (s *Scheduler) evaluate(ctx context.Context) {
	metrics.SchedulerTicks.Inc()

	jobs, err := s.db.ListJobs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load job definitions")
		return
	}

	now := s.now()
	for i := range jobs {
		job := jobs[i]
		if !job.Enabled || !s.due(&job, now) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(ctx, &job, models.TriggerSchedule)
		}()
	}
}

// due reports whether a job should fire at now.
func (s *Scheduler) due(job *models.ScheduledJob, now time.Time) bool {
	if job.IsInterval() {
		interval, err := job.Unit.Duration(job.Every)
		if err != nil {
			return false
		}
		last := job.CreatedAt
		if job.LastRunAt != nil {
			last = *job.LastRunAt
		}
		return !now.Before(last.Add(interval))
	}

	cron, err := ParseCron(job.Cron)
	if err != nil {
		return false
	}
	last := job.CreatedAt
	if job.LastRunAt != nil {
		last = *job.LastRunAt
	}
	next := cron.Next(last)
	return !next.IsZero() && !now.Before(next)
}

// RunNow fires a job immediately, bypassing its enabled flag but not the
// overlap guard. Returns the completed run record.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (*models.JobRun, error) {
	job, err := s.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, job, models.TriggerManual), nil
}

// fire executes one job firing and records its JobRun.
func (s *Scheduler) fire(ctx context.Context, job *models.ScheduledJob, trigger string) *models.JobRun {
	started := s.now()
	run := &models.JobRun{
		JobID:     job.ID,
		JobName:   job.Name,
		Operation: job.Operation,
		Trigger:   trigger,
		StartedAt: started,
	}

	if _, loaded := s.inFlight.LoadOrStore(job.ID, struct{}{}); loaded {
		run.Status = models.RunStatusSkippedOverlap
		run.Error = "previous run still in flight"
		s.recordRun(job, run, false)
		logging.Warn().Str("job", job.Name).Msg("Skipping overlapping job run")
		return run
	}
	defer s.inFlight.Delete(job.ID)

	s.mu.RLock()
	fn, ok := s.ops[job.Operation]
	s.mu.RUnlock()

	if !ok {
		run.Status = models.RunStatusFailed
		run.Error = fmt.Sprintf("no implementation registered for operation %s", job.Operation)
		s.recordRun(job, run, true)
		return run
	}

	logging.Info().Str("job", job.Name).Str("operation", string(job.Operation)).
		Str("trigger", trigger).Msg("Job firing")

	result, err := fn(ctx, job.Args)
	finished := s.now()
	run.FinishedAt = &finished
	run.DurationMS = finished.Sub(started).Milliseconds()
	run.Result = result

	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		logging.Error().Str("job", job.Name).Err(err).Msg("Job failed")
	} else {
		run.Status = models.RunStatusSuccess
	}
	s.recordRun(job, run, true)
	return run
}

// recordRun persists the run record and, for executed runs, advances the
// job's last-run bookkeeping.
func (s *Scheduler) recordRun(job *models.ScheduledJob, run *models.JobRun, executed bool) {
	// Recording must survive the firing context's cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.InsertJobRun(ctx, run); err != nil {
		logging.Error().Str("job", job.Name).Err(err).Msg("Failed to record job run")
	}
	if executed {
		if err := s.db.TouchJobRun(ctx, job.ID, run.StartedAt); err != nil {
			logging.Error().Str("job", job.Name).Err(err).Msg("Failed to touch job bookkeeping")
		}
	}
	metrics.SchedulerJobFires.WithLabelValues(string(job.Operation), string(run.Status)).Inc()
}
