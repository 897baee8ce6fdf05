// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pyforge/controlplane/internal/controlplane/models"
	"github.com/pyforge/controlplane/internal/store"
)

// CreateFlow handles create-flow.
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	defer r.Body.Close()

	flow, err := h.flows.CreateFlow(ctx, req.Name, req.Description, req.Definition)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toFlowResponse(flow))
}

// UpdateFlow handles update-flow.
func (h *Handler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := r.PathValue("flowID")

	var req models.CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	defer r.Body.Close()

	flow, err := h.flows.UpdateFlow(ctx, flowID, req.Name, req.Description, req.Definition)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toFlowResponse(flow))
}

// ListFlows handles list-flows.
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flows, err := h.flows.ListFlows(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]*models.FlowResponse, len(flows))
	for i, f := range flows {
		out[i] = toFlowResponse(f)
	}
	writeList(w, out)
}

// GetFlow handles get-flow.
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := r.PathValue("flowID")

	flow, err := h.flows.GetFlow(ctx, flowID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toFlowResponse(flow))
}

// DeleteFlow handles delete-flow.
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := r.PathValue("flowID")

	if err := h.flows.DeleteFlow(ctx, flowID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewFlowManifest handles preview-flow-manifest: synthesizes a
// definition's workflow document without persisting or submitting it.
func (h *Handler) PreviewFlowManifest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Definition models.FlowDefinition `json:"definition"`
		UseCache   bool                  `json:"useCache"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	defer r.Body.Close()

	doc, err := h.flows.PreviewManifest(req.Definition, req.UseCache)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, doc)
}

// RunFlow handles run-flow.
func (h *Handler) RunFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := r.PathValue("flowID")

	var req models.RunFlowRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		defer r.Body.Close()
	}

	flowRun, err := h.flows.RunFlow(ctx, flowID, req.UseCache)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, models.NewFlowRunResponse(flowRun))
}

// RunStep handles run-step.
func (h *Handler) RunStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowRunID, err := strconv.ParseInt(r.PathValue("flowRunID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "flowRunID must be an integer")
		return
	}
	stepID := r.PathValue("stepID")

	var req struct {
		Step     models.FlowStepInput `json:"step"`
		UseCache bool                 `json:"useCache"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	defer r.Body.Close()

	stepRun, err := h.flows.RunStep(ctx, flowRunID, stepID, req.Step, req.UseCache)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, models.NewStepRunResponse(stepRun))
}

// ListFlowRuns handles list-flow-runs.
func (h *Handler) ListFlowRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := r.PathValue("flowID")

	runs, err := h.flows.ListFlowRuns(ctx, flowID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]*models.FlowRunResponse, len(runs))
	for i, run := range runs {
		out[i] = models.NewFlowRunResponse(run)
	}
	writeList(w, out)
}

// GetFlowRun handles get-flow-run.
func (h *Handler) GetFlowRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowRunID, err := strconv.ParseInt(r.PathValue("flowRunID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "flowRunID must be an integer")
		return
	}

	flowRun, err := h.flows.GetFlowRun(ctx, flowRunID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, models.NewFlowRunResponse(flowRun))
}

// GetFlowRunLogs handles get-flow-run-logs.
func (h *Handler) GetFlowRunLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowRunID, err := strconv.ParseInt(r.PathValue("flowRunID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "flowRunID must be an integer")
		return
	}

	flowRun, stepRuns, logsByStep, err := h.flows.GetFlowRunLogs(ctx, flowRunID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	steps := make([]*models.FlowRunStepLogsResponse, len(stepRuns))
	for i, sr := range stepRuns {
		records := logsByStep[sr.ID]
		logEntries := make([]*models.StepLogRecordResponse, len(records))
		for j, l := range records {
			logEntries[j] = &models.StepLogRecordResponse{
				StepID:    sr.StepID,
				NodeID:    l.NodeID,
				PodName:   l.PodName,
				Phase:     string(l.Phase),
				Logs:      l.Logs,
				UpdatedAt: l.UpdatedAt,
			}
		}
		steps[i] = &models.FlowRunStepLogsResponse{StepID: sr.StepID, Phase: string(sr.Phase), Logs: logEntries}
	}

	writeSuccess(w, http.StatusOK, models.FlowRunLogsResponse{Phase: string(flowRun.Phase), Steps: steps})
}

// GetFlowRunManifest handles get-flow-run-manifest.
func (h *Handler) GetFlowRunManifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowRunID, err := strconv.ParseInt(r.PathValue("flowRunID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "flowRunID must be an integer")
		return
	}

	doc, err := h.flows.GetFlowRunManifest(ctx, flowRunID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, doc)
}

func toFlowResponse(f *store.Flow) *models.FlowResponse {
	var def models.FlowDefinition
	_ = json.Unmarshal([]byte(f.Definition), &def)
	return &models.FlowResponse{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Definition:  def,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}
