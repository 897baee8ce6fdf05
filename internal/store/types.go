// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/pyforge/controlplane/internal/phase"
)

// ActivePhases is the set of non-terminal phases a Run/FlowRun may carry;
// at most one Run per Task may be in this set at a time.
var ActivePhases = []phase.Phase{phase.Pending, phase.Running}

// Task is a persisted, user-authored Python unit.
type Task struct {
	ID               string
	PythonCode       string
	PythonDeps       string
	RequirementsFile string
	SystemDeps       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Run is one execution attempt of a Task.
type Run struct {
	ID         int64
	TaskID     string
	WorkflowID string
	RunNumber  int
	Phase      phase.Phase

	// Snapshot fields captured from the Task at run creation. Under
	// legacy-read mode (no code-snapshot columns) these are populated from
	// the owning Task's current values instead — a documented caveat, not a
	// bug: old runs show current code.
	PythonCode       string
	PythonDeps       string
	RequirementsFile string
	SystemDeps       string

	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// LogRecord is a pod-level log snapshot for one Run.
type LogRecord struct {
	ID        int64
	RunID     int64
	TaskID    string // legacy-mode correlation; empty under current schema
	NodeID    string
	PodName   string
	Phase     phase.Phase
	Logs      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Flow is a persisted DAG of steps.
type Flow struct {
	ID          string
	Name        string
	Description string
	Definition  string // JSON-encoded {steps: [...], edges: [...]}
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FlowRun is one execution of a Flow.
type FlowRun struct {
	ID         int64
	FlowID     string
	WorkflowID string
	RunNumber  int
	Phase      phase.Phase
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// StepRun is per-step execution state within a FlowRun.
type StepRun struct {
	ID             int64
	FlowRunID      int64
	StepID         string
	WorkflowNodeID string
	Phase          phase.Phase
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// StepLogRecord is a pod-level log snapshot for one StepRun.
type StepLogRecord struct {
	ID        int64
	StepRunID int64
	NodeID    string
	PodName   string
	Phase     phase.Phase
	Logs      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
