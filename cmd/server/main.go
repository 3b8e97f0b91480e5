// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package main is the entry point for the Fleetsync server.
//
// Fleetsync reconciles device telemetry from a path-addressable remote store
// into a local DuckDB database, keeps a persisted job schedule driving the
// sync and monitoring operations, and serves the results over a REST API.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load via Koanf (defaults, config file, env)
//  2. Database: DuckDB with the telemetry and scheduling schema
//  3. Remote reader: rate-limited HTTP client behind a circuit breaker
//  4. Reconciler and monitor: the sync engine and its alert checks
//  5. Scheduler: persisted jobs bound to engine operations
//  6. Supervisor tree: scheduler and HTTP server under Suture supervision
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the scheduler drains in-flight job firings, and the
// database is checkpointed on close.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/alerting"
	"github.com/mgeller/fleetsync/internal/api"
	"github.com/mgeller/fleetsync/internal/config"
	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/reconcile"
	"github.com/mgeller/fleetsync/internal/remote"
	"github.com/mgeller/fleetsync/internal/scheduler"
	"github.com/mgeller/fleetsync/internal/supervisor"
	"github.com/mgeller/fleetsync/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("remote_url", cfg.Remote.BaseURL).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Fleetsync")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	reader := remote.NewBreakerReader(remote.NewReader(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		AuthToken:      cfg.Remote.AuthToken,
		Timeout:        cfg.Remote.Timeout,
		RetryDelay:     cfg.Remote.RetryDelay,
		ReadsPerSecond: cfg.Remote.ReadsPerSecond,
	}))

	alerter, closeAlerter, err := buildAlerter(&cfg.Alerts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize alerting")
	}
	defer closeAlerter()

	tr := tracker.New(db, cfg.Sync.StaleAfter)
	rec := reconcile.New(reader, db, tr, reconcile.Options{
		Workers:       cfg.Sync.Workers,
		SoftCap:       cfg.Sync.SoftCap,
		DeviceTimeout: cfg.Sync.DeviceTimeout,
	})
	monitor := reconcile.NewMonitor(rec, alerter, reconcile.AlertPolicy{
		OfflineAfter:        cfg.Alerts.OfflineAfter,
		LowBatteryThreshold: cfg.Alerts.LowBatteryThreshold,
	})

	sched := scheduler.New(db, cfg.Scheduler.TickInterval)
	registerOperations(sched, db, rec, monitor, tr, alerter, &cfg.Sync)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Scheduler.SeedDefaults {
		if err := sched.SeedDefaults(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to seed default jobs")
		}
	}

	router := api.NewRouter(db, rec, monitor, sched)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	tree := supervisor.NewTree(slogger, supervisor.DefaultTreeConfig())
	tree.AddEngineService(sched)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Fleetsync stopped")
}

// buildAlerter assembles the alert channel: Telegram when enabled, a Badger
// throttle store when a path is configured, in-memory otherwise.
func buildAlerter(cfg *config.AlertsConfig) (*alerting.Alerter, func(), error) {
	var notifier alerting.Notifier
	if cfg.Telegram.Enabled {
		notifier = alerting.NewTelegramNotifier(&cfg.Telegram)
		logging.Info().Msg("Telegram alerting enabled")
	} else {
		logging.Info().Msg("Alerting disabled: no notifier configured")
	}

	var store alerting.ThrottleStore
	if cfg.ThrottlePath != "" {
		badgerStore, err := alerting.NewBadgerStore(cfg.ThrottlePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open throttle store: %w", err)
		}
		store = badgerStore
	} else {
		store = alerting.NewMemoryStore()
	}

	closeStore := func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing throttle store")
		}
	}
	return alerting.New(notifier, store), closeStore, nil
}

// registerOperations binds every schedulable operation kind to the engine.
func registerOperations(sched *scheduler.Scheduler, db *database.DB, rec *reconcile.Reconciler,
	monitor *reconcile.Monitor, tr *tracker.Tracker, alerter *alerting.Alerter, syncCfg *config.SyncConfig) {

	syncAll := func(mode models.SyncMode) scheduler.OperationFunc {
		return func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			result, err := rec.SyncAll(ctx, mode)
			if err != nil {
				// The run could not start at all; distinct from per-device
				// failures, which stay inside the result.
				alerter.Alert(ctx, alerting.KeySyncFailed, string(mode),
					fmt.Sprintf("%s sync run failed to start: %v", mode, err))
				return nil, err
			}
			if mode == models.SyncModeHard {
				alerter.Alert(ctx, alerting.KeyHardSync, "",
					fmt.Sprintf("Hard sync finished: %d devices, %d created, %d failed",
						result.DevicesAttempted, result.RecordsCreated, result.DevicesFailed))
			}
			return json.Marshal(result)
		}
	}
	sched.Register(models.OpSoftSyncAll, syncAll(models.SyncModeSoft))
	sched.Register(models.OpHardSyncAll, syncAll(models.SyncModeHard))

	sched.Register(models.OpSyncDevice, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			DeviceID string          `json:"device_id"`
			Mode     models.SyncMode `json:"mode"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid sync_device args: %w", err)
		}
		if req.DeviceID == "" {
			return nil, errors.New("sync_device requires a device_id argument")
		}
		if req.Mode == "" {
			req.Mode = models.SyncModeSoft
		}
		outcome := rec.SyncDevice(ctx, req.DeviceID, req.Mode)
		return json.Marshal(outcome)
	})

	sched.Register(models.OpDeviceAlerts, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		summary, err := monitor.CheckDeviceAlerts(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(summary)
	})

	sched.Register(models.OpMarkOutOfSync, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		marked, err := tr.MarkOutOfSync(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int64{"marked": marked})
	})

	sched.Register(models.OpHealthCheck, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		// Unhealthy probes are reflected in the report, not the run status;
		// the check itself completed.
		return json.Marshal(monitor.HealthCheck(ctx))
	})

	sched.Register(models.OpCleanupLogs, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Orphans bool `json:"orphans"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, fmt.Errorf("invalid cleanup_logs args: %w", err)
			}
		}

		if req.Orphans {
			removed, err := db.DeleteOrphanTelemetry(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]int64{"orphans_removed": removed})
		}

		retention := syncCfg.LogRetention
		if retention <= 0 {
			retention = 14 * 24 * time.Hour
		}
		cutoff := time.Now().Add(-retention)
		logs, err := db.DeleteSyncLogsBefore(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		runs, err := db.DeleteJobRunsBefore(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int64{"sync_logs_removed": logs, "job_runs_removed": runs})
	})
}
