// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	"github.com/pyforge/controlplane/internal/store"
)

// FlowStepInput is one step of a flow definition as submitted by a caller.
type FlowStepInput struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	PythonCode       string `json:"pythonCode"`
	PythonDeps       string `json:"pythonDeps,omitempty"`
	RequirementsFile string `json:"requirementsFile,omitempty"`
	SystemDeps       string `json:"systemDeps,omitempty"`
}

// FlowEdgeInput is one edge of a flow definition as submitted by a caller.
type FlowEdgeInput struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FlowDefinition is the decoded shape of store.Flow.Definition: the JSON
// document create-flow and update-flow accept and get-flow-run-manifest's
// preview synthesizes from.
type FlowDefinition struct {
	Steps []FlowStepInput `json:"steps"`
	Edges []FlowEdgeInput `json:"edges"`
}

// CreateFlowRequest is the body of create-flow and update-flow.
type CreateFlowRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Definition  FlowDefinition `json:"definition"`
}

// RunFlowRequest is the body of run-flow.
type RunFlowRequest struct {
	UseCache bool `json:"useCache"`
}

// FlowResponse represents a Flow in API responses.
type FlowResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Definition  FlowDefinition `json:"definition"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// FlowRunResponse represents a FlowRun in API responses.
type FlowRunResponse struct {
	ID         int64      `json:"id"`
	FlowID     string     `json:"flowId"`
	WorkflowID string     `json:"workflowId,omitempty"`
	RunNumber  int        `json:"runNumber"`
	Phase      string     `json:"phase"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewFlowRunResponse converts a store.FlowRun to its wire shape.
func NewFlowRunResponse(r *store.FlowRun) *FlowRunResponse {
	return &FlowRunResponse{
		ID:         r.ID,
		FlowID:     r.FlowID,
		WorkflowID: r.WorkflowID,
		RunNumber:  r.RunNumber,
		Phase:      string(r.Phase),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// StepRunResponse represents a StepRun in API responses.
type StepRunResponse struct {
	ID         int64      `json:"id"`
	FlowRunID  int64      `json:"flowRunId"`
	StepID     string     `json:"stepId"`
	Phase      string     `json:"phase"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewStepRunResponse converts a store.StepRun to its wire shape.
func NewStepRunResponse(r *store.StepRun) *StepRunResponse {
	return &StepRunResponse{
		ID:         r.ID,
		FlowRunID:  r.FlowRunID,
		StepID:     r.StepID,
		Phase:      string(r.Phase),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// StepLogRecordResponse represents one persisted per-step log snapshot.
type StepLogRecordResponse struct {
	StepID    string    `json:"stepId"`
	NodeID    string    `json:"nodeId"`
	PodName   string    `json:"podName"`
	Phase     string    `json:"phase"`
	Logs      string    `json:"logs"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FlowRunLogsResponse is the payload of get-flow-run-logs: every step's
// latest log records, keyed by the step they belong to.
type FlowRunLogsResponse struct {
	Phase string                     `json:"phase"`
	Steps []*FlowRunStepLogsResponse `json:"steps"`
}

// FlowRunStepLogsResponse is one step's slice of FlowRunLogsResponse.
type FlowRunStepLogsResponse struct {
	StepID string                   `json:"stepId"`
	Phase  string                   `json:"phase"`
	Logs   []*StepLogRecordResponse `json:"logs"`
}
