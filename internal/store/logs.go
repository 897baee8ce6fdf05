// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pyforge/controlplane/internal/phase"
)

// UpsertLog writes one pod-level log snapshot, updating the existing row if
// present. Under the current schema the uniqueness key is
// (run_id, node_id, pod_name); under legacy-read mode (no run_id column)
// it is (task_id, node_id, pod_name), matching how the legacy backend
// correlated logs directly to a task.
func (s *Store) UpsertLog(ctx context.Context, runID int64, taskID string, nodeID, podName string, p phase.Phase, logs string) error {
	caps := s.capsSnapshot()
	now := s.now()

	if caps.TaskLogsHaveRunID {
		res, err := s.db.ExecContext(ctx,
			`UPDATE task_logs SET phase=$1, logs=$2, updated_at=$3 WHERE run_id=$4 AND node_id=$5 AND pod_name=$6`,
			p, logs, now, runID, nodeID, podName)
		if err != nil {
			return fmt.Errorf("store: update log: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO task_logs (run_id, task_id, node_id, pod_name, phase, logs, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			runID, taskID, nodeID, podName, p, logs, now)
		if err != nil {
			return fmt.Errorf("store: insert log: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE task_logs SET phase=$1, logs=$2, updated_at=$3 WHERE task_id=$4 AND node_id=$5 AND pod_name=$6`,
		p, logs, now, taskID, nodeID, podName)
	if err != nil {
		return fmt.Errorf("store: update legacy log: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_logs (task_id, node_id, pod_name, phase, logs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		taskID, nodeID, podName, p, logs, now)
	if err != nil {
		return fmt.Errorf("store: insert legacy log: %w", err)
	}
	return nil
}

// GetLogsForRun returns the stored logs for run. Under legacy-read mode
// logs are scoped by task_id plus a workflow-id substring match on
// pod_name, so that a specific run's logs are not cross-contaminated by a
// sibling run of the same task.
func (s *Store) GetLogsForRun(ctx context.Context, run *Run) ([]*LogRecord, error) {
	caps := s.capsSnapshot()

	var rows *sql.Rows
	var err error
	if caps.TaskLogsHaveRunID {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, run_id, task_id, node_id, pod_name, phase, logs, created_at, updated_at FROM task_logs WHERE run_id=$1`,
			run.ID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, run_id, task_id, node_id, pod_name, phase, logs, created_at, updated_at FROM task_logs WHERE task_id=$1 AND pod_name LIKE $2`,
			run.TaskID, "%"+run.WorkflowID+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("store: query logs for run %d: %w", run.ID, err)
	}
	defer rows.Close()

	var out []*LogRecord
	for rows.Next() {
		var l LogRecord
		var runID sql.NullInt64
		var taskID sql.NullString
		if err := rows.Scan(&l.ID, &runID, &taskID, &l.NodeID, &l.PodName, &l.Phase, &l.Logs, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.RunID = runID.Int64
		l.TaskID = taskID.String
		out = append(out, &l)
	}
	return out, rows.Err()
}

// RewriteTerminalLogPhases overwrites every non-terminal-phase log of run
// to terminalPhase — the fast-completion staleness fix described in
// §4.5's terminal-phase rewrite.
func (s *Store) RewriteTerminalLogPhases(ctx context.Context, run *Run, terminalPhase phase.Phase) error {
	caps := s.capsSnapshot()

	if caps.TaskLogsHaveRunID {
		_, err := s.db.ExecContext(ctx,
			`UPDATE task_logs SET phase=$1, updated_at=$2 WHERE run_id=$3 AND phase NOT IN ($4, $5, $6, $7)`,
			terminalPhase, s.now(), run.ID, phase.Succeeded, phase.Failed, phase.Error, phase.Cancelled)
		if err != nil {
			return fmt.Errorf("store: rewrite terminal log phases for run %d: %w", run.ID, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE task_logs SET phase=$1, updated_at=$2 WHERE task_id=$3 AND pod_name LIKE $4 AND phase NOT IN ($5, $6, $7, $8)`,
		terminalPhase, s.now(), run.TaskID, "%"+run.WorkflowID+"%", phase.Succeeded, phase.Failed, phase.Error, phase.Cancelled)
	if err != nil {
		return fmt.Errorf("store: rewrite legacy terminal log phases for run %d: %w", run.ID, err)
	}
	return nil
}
