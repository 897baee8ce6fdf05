// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pyforge/controlplane/internal/controlplane/models"
	loggermw "github.com/pyforge/controlplane/internal/server/middleware/logger"
)

// SubmitTask handles submit-task.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := loggermw.GetLogger(ctx)

	var req models.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	defer r.Body.Close()

	task, err := h.tasks.SubmitTask(ctx, req.PythonCode, req.PythonDeps, req.RequirementsFile, req.SystemDeps)
	if err != nil {
		log.Warn("submit task failed", "error", err)
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, models.NewTaskResponse(task))
}

// RunTask handles run-task.
func (h *Handler) RunTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	var req models.RunTaskRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		defer r.Body.Close()
	}

	run, err := h.tasks.RunTask(ctx, taskID, req.UseCache)
	if err != nil {
		loggermw.GetLogger(ctx).Warn("run task failed", "task_id", taskID, "error", err)
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, models.NewRunResponse(run))
}

// ListTasks handles list-tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := h.tasks.ListTasks(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]*models.TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = models.NewTaskResponse(t)
	}
	writeList(w, out)
}

// GetTask handles get-task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	task, err := h.tasks.GetTask(ctx, taskID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, models.NewTaskResponse(task))
}

// ListRuns lists every run of a task.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	runs, err := h.tasks.ListRuns(ctx, taskID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]*models.RunResponse, len(runs))
	for i, run := range runs {
		out[i] = models.NewRunResponse(run)
	}
	writeList(w, out)
}

// GetLogs handles list-run-logs, returning the pull algorithm's result for
// a run (latest, or a specific run_number given the ?run query param).
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	var runNumber *int
	if raw := r.URL.Query().Get("run"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "run must be an integer")
			return
		}
		runNumber = &n
	}

	result, err := h.tasks.GetLogs(ctx, taskID, runNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	records := make([]*models.LogRecordResponse, len(result.Logs))
	for i, l := range result.Logs {
		records[i] = models.NewLogRecordResponse(l)
	}
	writeSuccess(w, http.StatusOK, models.LogsResponse{
		Phase:  string(result.Phase),
		Source: result.Source,
		Error:  result.Error,
		Logs:   records,
	})
}

// CancelTask handles cancel-task.
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	if err := h.tasks.CancelTask(ctx, taskID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeTask handles purge-task.
func (h *Handler) PurgeTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	if err := h.tasks.PurgeTask(ctx, taskID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
