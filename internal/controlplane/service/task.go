// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pyforge/controlplane/internal/bootstrap"
	"github.com/pyforge/controlplane/internal/controlplane/metrics"
	"github.com/pyforge/controlplane/internal/engine"
	"github.com/pyforge/controlplane/internal/logs"
	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/store"
)

// TaskService orchestrates task submission, run creation, and log/cancel
// operations against the Store Adapter, engine client, Manifest
// Synthesizer, and Log Pipeline.
type TaskService struct {
	store       *store.Store
	engine      *engine.Client
	synthesizer *manifest.Synthesizer
	logs        *logs.Pipeline
	logger      *slog.Logger
}

// NewTaskService builds a TaskService over already-constructed collaborators.
func NewTaskService(s *store.Store, e *engine.Client, synth *manifest.Synthesizer, pipeline *logs.Pipeline, logger *slog.Logger) *TaskService {
	return &TaskService{store: s, engine: e, synthesizer: synth, logs: pipeline, logger: logger.With("component", "task_service")}
}

// SubmitTask validates dependency input and upserts a task row, generating
// a fresh id on first submission.
func (s *TaskService) SubmitTask(ctx context.Context, pythonCode, pythonDeps, requirementsFile, systemDeps string) (*store.Task, error) {
	if err := bootstrap.Validate(pythonDeps, requirementsFile, systemDeps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	id, err := newTaskID()
	if err != nil {
		return nil, fmt.Errorf("service: generate task id: %w", err)
	}

	return s.store.UpsertTask(ctx, id, pythonCode, pythonDeps, requirementsFile, systemDeps)
}

// ResubmitTask overwrites an existing task's code/deps under its current id.
func (s *TaskService) ResubmitTask(ctx context.Context, id, pythonCode, pythonDeps, requirementsFile, systemDeps string) (*store.Task, error) {
	if err := bootstrap.Validate(pythonDeps, requirementsFile, systemDeps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.store.UpsertTask(ctx, id, pythonCode, pythonDeps, requirementsFile, systemDeps)
}

// RunTask checks the PVC preconditions, reserves a run, synthesizes and
// submits a workflow, and snapshots the run's code/deps. A reserved run
// that fails synthesis or submission is marked Error rather than left
// dangling in Pending.
func (s *TaskService) RunTask(ctx context.Context, taskID string, useCache bool) (*store.Run, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s not found", ErrPrecondition, taskID)
		}
		return nil, err
	}

	if err := s.engine.CheckPVCsBound(ctx, s.engine.Namespace(), manifest.RequiredPVCs(useCache)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	run, err := s.store.CreateRun(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.RunsSubmitted.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("%w: task %s already has an active run", ErrConflict, taskID)
		}
		return nil, err
	}

	doc, err := s.synthesizer.SynthesizeTask(manifest.TaskSpec{
		Namespace:        s.engine.Namespace(),
		PythonCode:       task.PythonCode,
		PythonDeps:       task.PythonDeps,
		RequirementsFile: task.RequirementsFile,
		SystemDeps:       task.SystemDeps,
		UseCache:         useCache,
	})
	if err != nil {
		_ = s.store.MarkRunError(ctx, run.ID)
		metrics.RunsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("service: synthesize manifest for run %d: %w", run.ID, err)
	}

	workflowID, err := s.engine.CreateWorkflow(ctx, s.engine.Namespace(), doc)
	if err != nil {
		_ = s.store.MarkRunError(ctx, run.ID)
		metrics.RunsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("service: submit workflow for run %d: %w", run.ID, err)
	}

	if err := s.store.SetRunSnapshot(ctx, run.ID, workflowID, task.PythonCode, task.PythonDeps, task.RequirementsFile, task.SystemDeps); err != nil {
		return nil, fmt.Errorf("service: snapshot run %d: %w", run.ID, err)
	}

	metrics.RunsSubmitted.WithLabelValues("started").Inc()
	return s.store.GetRun(ctx, run.ID)
}

// ListTasks returns every task. Per the original backend's sync-on-read
// behavior, each task's latest run (if any) is opportunistically
// reconciled against the engine, bounded so one slow/unreachable workflow
// can't stall the whole listing.
func (s *TaskService) ListTasks(ctx context.Context) ([]*store.Task, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tasks {
		run, err := s.store.GetLatestRun(ctx, t.ID)
		if err != nil {
			continue
		}
		syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err = s.logs.GetLogs(syncCtx, t.ID, &run.RunNumber)
		cancel()
		if err != nil {
			s.logger.Warn("sync-on-read reconciliation failed", "task_id", t.ID, "error", err)
		}
	}

	return tasks, nil
}

// GetTask fetches a single task.
func (s *TaskService) GetTask(ctx context.Context, id string) (*store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: task %s not found", ErrPrecondition, id)
	}
	return task, err
}

// ListRuns returns every run of a task, most recent first.
func (s *TaskService) ListRuns(ctx context.Context, taskID string) ([]*store.Run, error) {
	return s.store.ListRunsForTask(ctx, taskID)
}

// GetLogs runs the Log Pipeline's pull algorithm for a task's run (latest,
// if runNumber is nil).
func (s *TaskService) GetLogs(ctx context.Context, taskID string, runNumber *int) (*logs.PullResult, error) {
	result, err := s.logs.GetLogs(ctx, taskID, runNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: run not found for task %s", ErrPrecondition, taskID)
	}
	return result, err
}

// StreamLatestLogs runs the Log Pipeline's push algorithm for a task's
// latest run, emitting frames through emit until the stream ends.
func (s *TaskService) StreamLatestLogs(ctx context.Context, taskID string, emit func(logs.Frame) error) error {
	return s.logs.StreamLatest(ctx, taskID, emit)
}

// CancelTask deletes the latest run's workflow (tolerating not-found) and
// forces its stored phase to Cancelled.
func (s *TaskService) CancelTask(ctx context.Context, taskID string) error {
	run, err := s.store.GetLatestRun(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: task %s has no run", ErrPrecondition, taskID)
		}
		return err
	}

	if run.WorkflowID != "" {
		if err := s.engine.DeleteWorkflow(ctx, s.engine.Namespace(), run.WorkflowID); err != nil {
			return fmt.Errorf("service: delete workflow for run %d: %w", run.ID, err)
		}
	}

	return s.store.CancelRun(ctx, run.ID)
}

// PurgeTask deletes a task's workflows (tolerating not-found) and its
// store row, cascading to every run and log.
func (s *TaskService) PurgeTask(ctx context.Context, taskID string) error {
	runs, err := s.store.ListRunsForTask(ctx, taskID)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if r.WorkflowID == "" {
			continue
		}
		if err := s.engine.DeleteWorkflow(ctx, s.engine.Namespace(), r.WorkflowID); err != nil {
			return fmt.Errorf("service: delete workflow for run %d: %w", r.ID, err)
		}
	}

	if err := s.store.PurgeTask(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: task %s not found", ErrPrecondition, taskID)
		}
		return err
	}
	return nil
}

func newTaskID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "task-" + hex.EncodeToString(buf), nil
}
