// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/pyforge/controlplane/internal/phase"
)

// UpsertStepLog writes one pod-level log snapshot for a step run, keyed on
// (step_run_id, node_id, pod_name). Unlike task_logs there is no legacy
// generation to reconcile against — flow_step_logs was created in its
// current shape from the start.
func (s *Store) UpsertStepLog(ctx context.Context, stepRunID int64, nodeID, podName string, p phase.Phase, logs string) error {
	now := s.now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE flow_step_logs SET phase=$1, logs=$2, updated_at=$3 WHERE step_run_id=$4 AND node_id=$5 AND pod_name=$6`,
		p, logs, now, stepRunID, nodeID, podName)
	if err != nil {
		return fmt.Errorf("store: update step log: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flow_step_logs (step_run_id, node_id, pod_name, phase, logs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		stepRunID, nodeID, podName, p, logs, now)
	if err != nil {
		return fmt.Errorf("store: insert step log: %w", err)
	}
	return nil
}

// GetLogsForStepRun returns every stored log of a step run.
func (s *Store) GetLogsForStepRun(ctx context.Context, stepRunID int64) ([]*StepLogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, step_run_id, node_id, pod_name, phase, logs, created_at, updated_at FROM flow_step_logs WHERE step_run_id=$1`,
		stepRunID)
	if err != nil {
		return nil, fmt.Errorf("store: query logs for step run %d: %w", stepRunID, err)
	}
	defer rows.Close()

	var out []*StepLogRecord
	for rows.Next() {
		var l StepLogRecord
		if err := rows.Scan(&l.ID, &l.StepRunID, &l.NodeID, &l.PodName, &l.Phase, &l.Logs, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// RewriteTerminalStepLogPhases overwrites every non-terminal-phase log of a
// step run to terminalPhase, the StepRun analogue of RewriteTerminalLogPhases.
func (s *Store) RewriteTerminalStepLogPhases(ctx context.Context, stepRunID int64, terminalPhase phase.Phase) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE flow_step_logs SET phase=$1, updated_at=$2 WHERE step_run_id=$3 AND phase NOT IN ($4, $5, $6, $7)`,
		terminalPhase, s.now(), stepRunID, phase.Succeeded, phase.Failed, phase.Error, phase.Cancelled)
	if err != nil {
		return fmt.Errorf("store: rewrite terminal step log phases for step run %d: %w", stepRunID, err)
	}
	return nil
}
