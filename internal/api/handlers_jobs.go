// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mgeller/fleetsync/internal/database"
	"github.com/mgeller/fleetsync/internal/models"
)

func (router *Router) listJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	jobs, err := router.db.ListJobs(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(jobs, len(jobs))
}

func (router *Router) createJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	var job models.ScheduledJob
	if err := decodeRequest(w, r, &job); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if err := router.sched.CreateJob(r.Context(), &job); err != nil {
		writeJobError(rw, err)
		return
	}
	rw.Created(job)
}

func (router *Router) getJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	job, err := router.db.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, database.ErrNotFound) {
		rw.NotFound("job not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(job)
}

func (router *Router) updateJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	var job models.ScheduledJob
	if err := decodeRequest(w, r, &job); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	job.ID = chi.URLParam(r, "jobID")
	if err := router.sched.UpdateJob(r.Context(), &job); err != nil {
		writeJobError(rw, err)
		return
	}
	rw.Success(job)
}

func (router *Router) deleteJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	err := router.db.DeleteJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, database.ErrNotFound) {
		rw.NotFound("job not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.NoContent()
}

func (router *Router) runJobNow(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	run, err := router.sched.RunNow(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, database.ErrNotFound) {
		rw.NotFound("job not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(run)
}

func (router *Router) enableJob(w http.ResponseWriter, r *http.Request) {
	router.setJobEnabled(w, r, true)
}

func (router *Router) disableJob(w http.ResponseWriter, r *http.Request) {
	router.setJobEnabled(w, r, false)
}

func (router *Router) setJobEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rw := NewResponseWriter(w)
	jobID := chi.URLParam(r, "jobID")
	err := router.db.SetJobEnabled(r.Context(), jobID, enabled)
	if errors.Is(err, database.ErrNotFound) {
		rw.NotFound("job not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(map[string]interface{}{"id": jobID, "enabled": enabled})
}

func (router *Router) listJobRuns(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w)
	limit, err := parseLimit(r, 50, 500)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	runs, err := router.db.ListJobRuns(r.Context(), r.URL.Query().Get("job_id"), limit)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(runs, len(runs))
}

// writeJobError maps job persistence errors to response codes. Validation
// failures and duplicate names are client errors.
func writeJobError(rw *ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound("job not found")
	case strings.Contains(strings.ToLower(msg), "constraint"),
		strings.Contains(strings.ToLower(msg), "duplicate"):
		rw.Conflict("a job with that name already exists")
	default:
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, msg)
	}
}
