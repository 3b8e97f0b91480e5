// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/reconcile"
)

// SyncEngine triggers reconciliation runs. Implemented by
// reconcile.Reconciler.
type SyncEngine interface {
	DiscoverDevices(ctx context.Context) ([]string, error)
	SyncAll(ctx context.Context, mode models.SyncMode) (*models.RunResult, error)
	SyncDevice(ctx context.Context, deviceID string, mode models.SyncMode) models.DeviceOutcome
}

// HealthMonitor runs health and device-alert checks. Implemented by
// reconcile.Monitor.
type HealthMonitor interface {
	HealthCheck(ctx context.Context) *reconcile.HealthReport
	CheckDeviceAlerts(ctx context.Context) (*reconcile.AlertSummary, error)
}

// JobScheduler validates job definitions and fires them on demand.
// Implemented by scheduler.Scheduler.
type JobScheduler interface {
	CreateJob(ctx context.Context, job *models.ScheduledJob) error
	UpdateJob(ctx context.Context, job *models.ScheduledJob) error
	RunNow(ctx context.Context, jobID string) (*models.JobRun, error)
}

// Router wires the HTTP handlers to their dependencies.
type Router struct {
	db      *database.DB
	engine  SyncEngine
	monitor HealthMonitor
	sched   JobScheduler
}

// NewRouter creates the API router.
func NewRouter(db *database.DB, engine SyncEngine, monitor HealthMonitor, sched JobScheduler) *Router {
	return &Router{db: db, engine: engine, monitor: monitor, sched: sched}
}

// Routes builds the full route tree.
func (router *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", router.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", router.health)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", router.listDevices)
			r.Get("/stale", router.listStaleDevices)
			r.Post("/discover", router.discoverDevices)
			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", router.getDevice)
				r.Get("/logs", router.listDeviceSyncLogs)
				r.Post("/sync", router.syncDevice)
			})
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", router.syncAll)
			r.Get("/logs", router.listSyncLogs)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", router.listJobs)
			r.Post("/", router.createJob)
			r.Get("/runs", router.listJobRuns)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", router.getJob)
				r.Put("/", router.updateJob)
				r.Delete("/", router.deleteJob)
				r.Post("/run", router.runJobNow)
				r.Post("/enable", router.enableJob)
				r.Post("/disable", router.disableJob)
			})
		})

		r.Get("/alerts/check", router.checkDeviceAlerts)
	})

	return r
}

// requestLogger logs each request with its outcome at debug level, errors at
// warn.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		evt := logging.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			evt = logging.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("Request")
	})
}
