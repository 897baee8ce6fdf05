// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"log/slog"
	"net/http"

	"github.com/pyforge/controlplane/internal/controlplane/api/middleware"
	"github.com/pyforge/controlplane/internal/controlplane/config"
	"github.com/pyforge/controlplane/internal/controlplane/service"
	loggermw "github.com/pyforge/controlplane/internal/server/middleware/logger"
)

// Handler holds the services and builds the core's HTTP surface.
type Handler struct {
	tasks  *service.TaskService
	flows  *service.FlowService
	files  *service.FileService
	logger *slog.Logger
}

// New builds a Handler over already-constructed services.
func New(tasks *service.TaskService, flows *service.FlowService, files *service.FileService, logger *slog.Logger) *Handler {
	return &Handler{tasks: tasks, flows: flows, files: files, logger: logger.With("component", "api")}
}

// Routes builds the complete router: access logging and CORS apply
// globally, then every spec §6 operation is wired at its conventional path.
func (h *Handler) Routes(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	const v1 = "/api/v1"

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	mux.HandleFunc("POST "+v1+"/tasks", h.SubmitTask)
	mux.HandleFunc("GET "+v1+"/tasks", h.ListTasks)
	mux.HandleFunc("GET "+v1+"/tasks/{taskID}", h.GetTask)
	mux.HandleFunc("POST "+v1+"/tasks/{taskID}/run", h.RunTask)
	mux.HandleFunc("GET "+v1+"/tasks/{taskID}/runs", h.ListRuns)
	mux.HandleFunc("GET "+v1+"/tasks/{taskID}/logs", h.GetLogs)
	mux.HandleFunc("GET "+v1+"/tasks/{taskID}/logs/stream", h.StreamLatestLogs)
	mux.HandleFunc("POST "+v1+"/tasks/{taskID}/cancel", h.CancelTask)
	mux.HandleFunc("DELETE "+v1+"/tasks/{taskID}", h.PurgeTask)

	mux.HandleFunc("POST "+v1+"/flows", h.CreateFlow)
	mux.HandleFunc("GET "+v1+"/flows", h.ListFlows)
	mux.HandleFunc("GET "+v1+"/flows/{flowID}", h.GetFlow)
	mux.HandleFunc("PUT "+v1+"/flows/{flowID}", h.UpdateFlow)
	mux.HandleFunc("DELETE "+v1+"/flows/{flowID}", h.DeleteFlow)
	mux.HandleFunc("POST "+v1+"/flows/preview-manifest", h.PreviewFlowManifest)
	mux.HandleFunc("POST "+v1+"/flows/{flowID}/run", h.RunFlow)
	mux.HandleFunc("GET "+v1+"/flows/{flowID}/runs", h.ListFlowRuns)
	mux.HandleFunc("GET "+v1+"/flow-runs/{flowRunID}", h.GetFlowRun)
	mux.HandleFunc("GET "+v1+"/flow-runs/{flowRunID}/logs", h.GetFlowRunLogs)
	mux.HandleFunc("GET "+v1+"/flow-runs/{flowRunID}/manifest", h.GetFlowRunManifest)
	mux.HandleFunc("POST "+v1+"/flow-runs/{flowRunID}/steps/{stepID}/run", h.RunStep)

	mux.HandleFunc("GET "+v1+"/files", h.ListFiles)
	mux.HandleFunc("GET "+v1+"/files/content", h.ReadFile)
	mux.HandleFunc("GET "+v1+"/files/preview", h.PreviewFile)
	mux.HandleFunc("POST "+v1+"/files/copy", h.CopyFile)
	mux.HandleFunc("POST "+v1+"/files/upload", h.UploadFile)

	var handler http.Handler = mux
	handler = middleware.CORS(cfg.HTTP.CORSOrigins)(handler)
	handler = loggermw.Middleware(h.logger)(handler)
	return handler
}

// Health reports liveness unconditionally.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Ready reports readiness unconditionally; the core has no external
// dependency worth degrading on (store and engine calls fail per-request).
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}
