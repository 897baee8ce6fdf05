// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pyforge/controlplane/internal/phase"
)

// CreateStepRuns inserts one StepRun per declared step of a flow run, all
// starting Pending with no workflow_node_id assigned yet — that gets filled
// in lazily as the engine's node names are reconciled against step ids.
func (s *Store) CreateStepRuns(ctx context.Context, flowRunID int64, stepIDs []string) ([]*StepRun, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin create-step-runs transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]*StepRun, 0, len(stepIDs))
	for _, stepID := range stepIDs {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO flow_step_runs (flow_run_id, step_id, phase) VALUES ($1, $2, $3) RETURNING id`,
			flowRunID, stepID, phase.Pending).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("store: insert step run %s: %w", stepID, err)
		}
		out = append(out, &StepRun{ID: id, FlowRunID: flowRunID, StepID: stepID, Phase: phase.Pending})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit create-step-runs: %w", err)
	}
	return out, nil
}

// SetStepRunWorkflowNodeID records the Argo node id a step run has been
// matched to. Safe to call repeatedly as the reconciliation strategy
// upgrades from a tentative to a confirmed match.
func (s *Store) SetStepRunWorkflowNodeID(ctx context.Context, stepRunID int64, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE flow_step_runs SET workflow_node_id=$1 WHERE id=$2`, nodeID, stepRunID)
	if err != nil {
		return fmt.Errorf("store: set step run %d node id: %w", stepRunID, err)
	}
	return nil
}

// UpdateStepRunPhase sets a step run's phase and optional timestamps,
// refusing to regress a terminal phase.
func (s *Store) UpdateStepRunPhase(ctx context.Context, stepRunID int64, newPhase phase.Phase, startedAt, finishedAt *string) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT phase FROM flow_step_runs WHERE id=$1`, stepRunID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read step run %d phase: %w", stepRunID, err)
	}
	if phase.Phase(current).Terminal() {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE flow_step_runs SET phase=$1, started_at=COALESCE($2, started_at), finished_at=COALESCE($3, finished_at) WHERE id=$4`,
		newPhase, startedAt, finishedAt, stepRunID)
	if err != nil {
		return fmt.Errorf("store: update step run %d phase: %w", stepRunID, err)
	}
	return nil
}

func scanStepRun(row interface {
	Scan(dest ...interface{}) error
}) (*StepRun, error) {
	var r StepRun
	var nodeID sql.NullString
	var started, finished sql.NullTime
	err := row.Scan(&r.ID, &r.FlowRunID, &r.StepID, &nodeID, &r.Phase, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.WorkflowNodeID = nodeID.String
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

const stepRunSelectColumns = "id, flow_run_id, step_id, workflow_node_id, phase, started_at, finished_at"

// GetStepRun fetches a step run by id.
func (s *Store) GetStepRun(ctx context.Context, stepRunID int64) (*StepRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stepRunSelectColumns+` FROM flow_step_runs WHERE id=$1`, stepRunID)
	return scanStepRun(row)
}

// GetStepRunByStepID fetches the step run for a given flow run and step id.
func (s *Store) GetStepRunByStepID(ctx context.Context, flowRunID int64, stepID string) (*StepRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stepRunSelectColumns+` FROM flow_step_runs WHERE flow_run_id=$1 AND step_id=$2`, flowRunID, stepID)
	return scanStepRun(row)
}

// ListStepRunsForFlowRun returns every step run belonging to a flow run.
func (s *Store) ListStepRunsForFlowRun(ctx context.Context, flowRunID int64) ([]*StepRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepRunSelectColumns+` FROM flow_step_runs WHERE flow_run_id=$1 ORDER BY id`, flowRunID)
	if err != nil {
		return nil, fmt.Errorf("store: list step runs for flow run %d: %w", flowRunID, err)
	}
	defer rows.Close()

	var out []*StepRun
	for rows.Next() {
		r, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
