// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package scheduler

import (
	"context"
	"errors"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/models"
)

// defaultJobs is the standard job set installed on first start. Hard sync
// ships disabled: it is expensive and most fleets only need it on demand.
func defaultJobs() []models.ScheduledJob {
	return []models.ScheduledJob{
		{Name: "soft sync", Operation: models.OpSoftSyncAll, Enabled: true, Every: 5, Unit: models.UnitMinutes},
		{Name: "device alerts", Operation: models.OpDeviceAlerts, Enabled: true, Every: 5, Unit: models.UnitMinutes},
		{Name: "health check", Operation: models.OpHealthCheck, Enabled: true, Every: 10, Unit: models.UnitMinutes},
		{Name: "mark out of sync", Operation: models.OpMarkOutOfSync, Enabled: true, Every: 30, Unit: models.UnitMinutes},
		{Name: "hard sync", Operation: models.OpHardSyncAll, Enabled: false, Every: 60, Unit: models.UnitMinutes},
		{Name: "log cleanup", Operation: models.OpCleanupLogs, Enabled: true, Cron: "0 3 * * *"},
		{Name: "orphan cleanup", Operation: models.OpCleanupLogs, Enabled: true, Cron: "0 4 * * 0",
			Args: []byte(`{"orphans":true}`)},
	}
}

// SeedDefaults installs the standard jobs, skipping any whose name already
// exists so operator edits survive restarts.
func (s *Scheduler) SeedDefaults(ctx context.Context) error {
	for _, job := range defaultJobs() {
		if _, err := s.db.GetJobByName(ctx, job.Name); err == nil {
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}
		if err := s.CreateJob(ctx, &job); err != nil {
			return err
		}
		logging.Info().Str("job", job.Name).Str("operation", string(job.Operation)).
			Msg("Seeded default job")
	}
	return nil
}
