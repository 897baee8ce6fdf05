// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/pyforge/controlplane/internal/phase"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// in-memory sqlite drops all state once the pool closes every
	// connection; pin it to a single connection so schema and data survive
	// across calls within a test.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), db, DialectSQLite, logger)
	require.NoError(t, err)
	return s
}

func TestOpenCreatesFreshSchemaWithEvolvedCapabilities(t *testing.T) {
	s := newTestStore(t)
	caps := s.capsSnapshot()

	require.True(t, caps.TaskLogsHaveRunID)
	require.True(t, caps.TaskRunsHaveCodeSnapshot)
	require.True(t, caps.TasksHaveSystemDeps)
	require.True(t, caps.TaskRunsHaveSystemDeps)
}

func TestEvolveSchemaIsIdempotentOnSQLite(t *testing.T) {
	s := newTestStore(t)

	// Re-running evolution against an already-evolved SQLite store must not
	// error: ALTER TABLE ... ADD COLUMN IF NOT EXISTS isn't valid SQLite
	// grammar, so the SQLite path has to check hasColumn itself before
	// issuing a plain ADD COLUMN.
	s.evolveSchema(context.Background())
	require.NoError(t, s.refreshCapabilities(context.Background()))

	caps := s.capsSnapshot()
	require.True(t, caps.TaskLogsHaveRunID)
	require.True(t, caps.TaskRunsHaveCodeSnapshot)
	require.True(t, caps.TasksHaveSystemDeps)
	require.True(t, caps.TaskRunsHaveSystemDeps)
}

func TestUpsertTaskInsertsThenUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.UpsertTask(ctx, "task-1", "print(1)", "requests", "", "")
	require.NoError(t, err)
	require.Equal(t, "print(1)", task.PythonCode)
	require.Equal(t, "requests", task.PythonDeps)

	task, err = s.UpsertTask(ctx, "task-1", "print(2)", "", "reqs.txt", "jq")
	require.NoError(t, err)
	require.Equal(t, "print(2)", task.PythonCode)
	require.Equal(t, "", task.PythonDeps)
	require.Equal(t, "reqs.txt", task.RequirementsFile)
	require.Equal(t, "jq", task.SystemDeps)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRunMonotonicNumbering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)

	run1, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, 1, run1.RunNumber)

	require.NoError(t, s.UpdateRunPhase(ctx, run1.ID, phase.Succeeded, nil, nil))

	run2, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, 2, run2.RunNumber)
}

func TestCreateRunRejectsConcurrentActiveRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)

	_, err = s.CreateRun(ctx, "task-1")
	require.NoError(t, err)

	_, err = s.CreateRun(ctx, "task-1")
	require.ErrorIs(t, err, ErrConflict)
}

func TestUpdateRunPhaseNeverRegressesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateRunPhase(ctx, run.ID, phase.Succeeded, nil, nil))
	require.NoError(t, s.UpdateRunPhase(ctx, run.ID, phase.Running, nil, nil))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, phase.Succeeded, got.Phase)
}

func TestSetRunSnapshotAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "numpy", "", "")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)

	require.NoError(t, s.SetRunSnapshot(ctx, run.ID, "wf-abc", "print(1)", "numpy", "", ""))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, "wf-abc", got.WorkflowID)
	require.Equal(t, "numpy", got.PythonDeps)
}

func TestUpsertLogIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)

	require.NoError(t, s.UpsertLog(ctx, run.ID, "task-1", "node-1", "pod-1", phase.Running, "hello\n"))
	require.NoError(t, s.UpsertLog(ctx, run.ID, "task-1", "node-1", "pod-1", phase.Succeeded, "hello\nworld\n"))

	logs, err := s.GetLogsForRun(ctx, run)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, phase.Succeeded, logs[0].Phase)
	require.Equal(t, "hello\nworld\n", logs[0].Logs)
}

func TestRewriteTerminalLogPhases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)

	require.NoError(t, s.UpsertLog(ctx, run.ID, "task-1", "node-1", "pod-1", phase.Running, "still going\n"))
	require.NoError(t, s.RewriteTerminalLogPhases(ctx, run, phase.Succeeded))

	logs, err := s.GetLogsForRun(ctx, run)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, phase.Succeeded, logs[0].Phase)
}

func TestPurgeTaskCascadesRunsAndLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)
	require.NoError(t, s.UpsertLog(ctx, run.ID, "task-1", "node-1", "pod-1", phase.Running, "x\n"))

	require.NoError(t, s.PurgeTask(ctx, "task-1"))

	_, err = s.GetTask(ctx, "task-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRun(ctx, run.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLegacyReadModeFallsBackToTaskColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "pandas", "", "")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, "task-1")
	require.NoError(t, err)

	// simulate a legacy database: pretend the code-snapshot columns never
	// evolved, so run reads must fall back to the owning task's values.
	s.mu.Lock()
	s.caps.TaskRunsHaveCodeSnapshot = false
	s.caps.TaskLogsHaveRunID = false
	s.mu.Unlock()

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, "print(1)", got.PythonCode)
	require.Equal(t, "pandas", got.PythonDeps)
}

func TestFlowCRUDAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, "flow-1", "my flow", "a test flow", `{"steps":[],"edges":[]}`)
	require.NoError(t, err)
	require.Equal(t, "draft", flow.Status)

	updated, err := s.UpdateFlow(ctx, "flow-1", "renamed", "still a test flow", `{"steps":[{"id":"a"}],"edges":[]}`)
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)

	flowRun, err := s.CreateFlowRun(ctx, "flow-1")
	require.NoError(t, err)
	require.Equal(t, 1, flowRun.RunNumber)

	stepRuns, err := s.CreateStepRuns(ctx, flowRun.ID, []string{"a"})
	require.NoError(t, err)
	require.Len(t, stepRuns, 1)

	require.NoError(t, s.SetStepRunWorkflowNodeID(ctx, stepRuns[0].ID, "flow-1-wf.a"))
	require.NoError(t, s.UpsertStepLog(ctx, stepRuns[0].ID, "flow-1-wf.a", "pod-a", phase.Running, "step log\n"))

	require.NoError(t, s.DeleteFlow(ctx, "flow-1"))

	_, err = s.GetFlow(ctx, "flow-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetStepRun(ctx, stepRuns[0].ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFlowRunRejectsConcurrentActiveRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateFlow(ctx, "flow-1", "f", "", `{"steps":[],"edges":[]}`)
	require.NoError(t, err)

	_, err = s.CreateFlowRun(ctx, "flow-1")
	require.NoError(t, err)

	_, err = s.CreateFlowRun(ctx, "flow-1")
	require.ErrorIs(t, err, ErrConflict)
}

func TestStepRunPhaseNeverRegressesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateFlow(ctx, "flow-1", "f", "", `{"steps":[],"edges":[]}`)
	require.NoError(t, err)
	flowRun, err := s.CreateFlowRun(ctx, "flow-1")
	require.NoError(t, err)
	stepRuns, err := s.CreateStepRuns(ctx, flowRun.ID, []string{"a"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStepRunPhase(ctx, stepRuns[0].ID, phase.Failed, nil, nil))
	require.NoError(t, s.UpdateStepRunPhase(ctx, stepRuns[0].ID, phase.Running, nil, nil))

	got, err := s.GetStepRun(ctx, stepRuns[0].ID)
	require.NoError(t, err)
	require.Equal(t, phase.Failed, got.Phase)
}

func TestListTasksAndFlows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertTask(ctx, "task-1", "print(1)", "", "", "")
	require.NoError(t, err)
	_, err = s.UpsertTask(ctx, "task-2", "print(2)", "", "", "")
	require.NoError(t, err)
	_, err = s.CreateFlow(ctx, "flow-1", "f", "", `{"steps":[],"edges":[]}`)
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	flows, err := s.ListFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 1)
}
