// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package reconcile pulls device telemetry from the remote store and folds it
// into the relational store.
//
// A run walks the device fleet with a bounded worker pool. Per device, each
// telemetry category resolves to an ordered list of remote paths; the first
// non-absent payload wins and later paths are not read, so layouts never
// merge. Soft runs cap records per category and skip device info unless the
// device is stale; hard runs fetch everything uncapped. One failing category
// degrades the device outcome to partial instead of failing the device.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
	"github.com/mgeller/fleetsync/internal/remote"
	"github.com/mgeller/fleetsync/internal/tracker"
)

// RemoteReader is the read surface of the remote store client. Satisfied by
// remote.Reader and remote.BreakerReader.
type RemoteReader interface {
	Read(ctx context.Context, path string) (remote.Result, error)
	ListKeys(ctx context.Context, path string) ([]string, error)
}

// Options tunes reconciliation runs.
type Options struct {
	// Workers bounds the per-run device worker pool.
	Workers int
	// SoftCap limits records written per category during a soft run.
	SoftCap int
	// DeviceTimeout bounds one device's reconciliation.
	DeviceTimeout time.Duration
}

// Reconciler drives sync runs against the remote store.
type Reconciler struct {
	reader  RemoteReader
	db      *database.DB
	tracker *tracker.Tracker
	opts    Options

	// deviceLocks serializes writes per device: a manual run-now and a
	// scheduled run may target the same device concurrently.
	deviceLocks sync.Map // string -> *sync.Mutex
}

// New creates a reconciler.
func New(reader RemoteReader, db *database.DB, tr *tracker.Tracker, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.SoftCap <= 0 {
		opts.SoftCap = 100
	}
	if opts.DeviceTimeout <= 0 {
		opts.DeviceTimeout = 2 * time.Minute
	}
	return &Reconciler{reader: reader, db: db, tracker: tr, opts: opts}
}

// DiscoverDevices enumerates device identifiers across all remote roots,
// canonical first, and ensures a device row exists for each. Returns the
// deduplicated identifier list.
func (r *Reconciler) DiscoverDevices(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	var rootErrs []error

	for _, root := range pathres.DeviceRoots {
		keys, err := r.reader.ListKeys(ctx, root)
		if err != nil {
			// A single unreadable root must not hide devices under the
			// others.
			rootErrs = append(rootErrs, err)
			logging.Warn().Str("root", root).Err(err).Msg("Failed to enumerate device root")
			continue
		}
		for _, id := range keys {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 && len(rootErrs) > 0 {
		return nil, errors.Join(rootErrs...)
	}

	for _, id := range ids {
		if err := r.db.EnsureDevice(ctx, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// SyncAll reconciles the whole fleet in the given mode. The returned RunResult
// is complete even when some devices failed; the error is non-nil only when
// the run could not start at all.
func (r *Reconciler) SyncAll(ctx context.Context, mode models.SyncMode) (*models.RunResult, error) {
	started := time.Now()
	result := &models.RunResult{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: started,
	}

	ids, err := r.DiscoverDevices(ctx)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(string(mode), "failed").Inc()
		return nil, err
	}

	logging.Info().Str("run_id", result.RunID).Str("mode", string(mode)).
		Int("devices", len(ids)).Msg("Reconciliation run starting")

	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan string)

	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				outcome := r.SyncDevice(ctx, id, mode)
				mu.Lock()
				result.Merge(outcome)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case work <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	result.FinishedAt = time.Now()
	if err := ctx.Err(); err != nil {
		result.Errors = append(result.Errors, "run cancelled: "+err.Error())
	}

	status := "success"
	if result.DevicesFailed > 0 && result.DevicesSucceeded == 0 && result.DevicesPartial == 0 {
		status = "failed"
	}
	metrics.SyncRuns.WithLabelValues(string(mode), status).Inc()
	metrics.SyncRunDuration.WithLabelValues(string(mode)).Observe(result.FinishedAt.Sub(started).Seconds())

	logging.Info().Str("run_id", result.RunID).Str("mode", string(mode)).
		Int("succeeded", result.DevicesSucceeded).
		Int("partial", result.DevicesPartial).
		Int("failed", result.DevicesFailed).
		Int("created", result.RecordsCreated).
		Dur("elapsed", result.FinishedAt.Sub(started)).
		Msg("Reconciliation run finished")
	return result, nil
}

// lockDevice acquires the per-device write lock and returns its release func.
func (r *Reconciler) lockDevice(deviceID string) func() {
	v, _ := r.deviceLocks.LoadOrStore(deviceID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
