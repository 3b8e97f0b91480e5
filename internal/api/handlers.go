// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/models"
)

// parseMode reads the ?mode= query parameter, defaulting to soft.
func parseMode(r *http.Request) (models.SyncMode, error) {
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", string(models.SyncModeSoft):
		return models.SyncModeSoft, nil
	case string(models.SyncModeHard):
		return models.SyncModeHard, nil
	default:
		return "", errors.New("mode must be soft or hard")
	}
}

// parseLimit reads the ?limit= query parameter with a default and a hard cap.
func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

func (router *Router) healthz(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := router.db.Ping(ctx); err != nil {
		rw.Unavailable("database unreachable")
		return
	}
	rw.Success(map[string]string{"status": "ok"})
}

func (router *Router) health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	report := router.monitor.HealthCheck(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	rw.writeJSON(status, APIResponse{Success: report.Healthy, Data: report, Meta: rw.meta(0)})
}

func (router *Router) listDevices(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	devices, err := router.db.ListDevices(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(devices, len(devices))
}

func (router *Router) listStaleDevices(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)

	olderThan := 30 * time.Minute
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			rw.BadRequest("older_than must be a positive duration like 45m")
			return
		}
		olderThan = d
	}

	devices, err := router.db.ListStaleDevices(r.Context(), time.Now().Add(-olderThan))
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(devices, len(devices))
}

func (router *Router) getDevice(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	deviceID := chi.URLParam(r, "deviceID")
	dev, err := router.db.GetDevice(r.Context(), deviceID)
	if errors.Is(err, database.ErrNotFound) {
		rw.NotFound("device " + deviceID + " not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(dev)
}

func (router *Router) discoverDevices(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	ids, err := router.engine.DiscoverDevices(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(map[string]interface{}{"device_ids": ids}, len(ids))
}

func (router *Router) syncDevice(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	mode, err := parseMode(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	deviceID := chi.URLParam(r, "deviceID")
	if _, err := router.db.GetDevice(r.Context(), deviceID); errors.Is(err, database.ErrNotFound) {
		rw.NotFound("device " + deviceID + " not found")
		return
	} else if err != nil {
		rw.InternalError(err)
		return
	}
	outcome := router.engine.SyncDevice(r.Context(), deviceID, mode)
	rw.Success(outcome)
}

func (router *Router) syncAll(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	mode, err := parseMode(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	result, err := router.engine.SyncAll(r.Context(), mode)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(result)
}

func (router *Router) listSyncLogs(w http.ResponseWriter, r *http.Request) {
	router.writeSyncLogs(w, r, r.URL.Query().Get("device_id"))
}

func (router *Router) listDeviceSyncLogs(w http.ResponseWriter, r *http.Request) {
	router.writeSyncLogs(w, r, chi.URLParam(r, "deviceID"))
}

func (router *Router) writeSyncLogs(w http.ResponseWriter, r *http.Request, deviceID string) {
	rw := NewResponseWriter(w)
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	logs, err := router.db.ListSyncLogs(r.Context(), deviceID, limit)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(logs, len(logs))
}

func (router *Router) checkDeviceAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	summary, err := router.monitor.CheckDeviceAlerts(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(summary)
}
