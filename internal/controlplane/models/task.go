// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	"github.com/pyforge/controlplane/internal/store"
)

// CreateTaskRequest is the body of submit-task.
type CreateTaskRequest struct {
	PythonCode       string `json:"pythonCode"`
	PythonDeps       string `json:"pythonDeps,omitempty"`
	RequirementsFile string `json:"requirementsFile,omitempty"`
	SystemDeps       string `json:"systemDeps,omitempty"`
}

// RunTaskRequest is the body of run-task.
type RunTaskRequest struct {
	UseCache bool `json:"useCache"`
}

// TaskResponse represents a Task in API responses.
type TaskResponse struct {
	ID               string    `json:"id"`
	PythonCode       string    `json:"pythonCode"`
	PythonDeps       string    `json:"pythonDeps,omitempty"`
	RequirementsFile string    `json:"requirementsFile,omitempty"`
	SystemDeps       string    `json:"systemDeps,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewTaskResponse converts a store.Task to its wire shape.
func NewTaskResponse(t *store.Task) *TaskResponse {
	return &TaskResponse{
		ID:               t.ID,
		PythonCode:       t.PythonCode,
		PythonDeps:       t.PythonDeps,
		RequirementsFile: t.RequirementsFile,
		SystemDeps:       t.SystemDeps,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// RunResponse represents a Run in API responses.
type RunResponse struct {
	ID               int64      `json:"id"`
	TaskID           string     `json:"taskId"`
	WorkflowID       string     `json:"workflowId,omitempty"`
	RunNumber        int        `json:"runNumber"`
	Phase            string     `json:"phase"`
	PythonCode       string     `json:"pythonCode"`
	PythonDeps       string     `json:"pythonDeps,omitempty"`
	RequirementsFile string     `json:"requirementsFile,omitempty"`
	SystemDeps       string     `json:"systemDeps,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// NewRunResponse converts a store.Run to its wire shape.
func NewRunResponse(r *store.Run) *RunResponse {
	return &RunResponse{
		ID:               r.ID,
		TaskID:           r.TaskID,
		WorkflowID:       r.WorkflowID,
		RunNumber:        r.RunNumber,
		Phase:            string(r.Phase),
		PythonCode:       r.PythonCode,
		PythonDeps:       r.PythonDeps,
		RequirementsFile: r.RequirementsFile,
		SystemDeps:       r.SystemDeps,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		CreatedAt:        r.CreatedAt,
	}
}

// LogRecordResponse represents one persisted pod-level log snapshot.
type LogRecordResponse struct {
	NodeID    string    `json:"nodeId"`
	PodName   string    `json:"podName"`
	Phase     string    `json:"phase"`
	Logs      string    `json:"logs"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewLogRecordResponse converts a store.LogRecord to its wire shape.
func NewLogRecordResponse(l *store.LogRecord) *LogRecordResponse {
	return &LogRecordResponse{
		NodeID:    l.NodeID,
		PodName:   l.PodName,
		Phase:     string(l.Phase),
		Logs:      l.Logs,
		UpdatedAt: l.UpdatedAt,
	}
}

// LogsResponse is the payload of list-run-logs: the run's current phase
// plus every stored log record, tagged with where the data came from.
type LogsResponse struct {
	Phase  string               `json:"phase"`
	Source string               `json:"source"` // "database", "kubernetes", or "error"
	Error  string               `json:"error,omitempty"`
	Logs   []*LogRecordResponse `json:"logs"`
}
