// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pyforge/controlplane/internal/phase"
)

// CreateFlowRun reserves the next run for flowID inside one transaction,
// mirroring CreateRun's monotonic-numbering and at-most-one-active-run
// checks for the Flow feature's separate run table.
func (s *Store) CreateFlowRun(ctx context.Context, flowID string) (*FlowRun, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin create-flow-run transaction: %w", err)
	}
	defer tx.Rollback()

	if s.dialect == DialectPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT id FROM flows WHERE id=$1 FOR UPDATE`, flowID); err != nil {
			return nil, fmt.Errorf("store: lock flow %s: %w", flowID, err)
		}
	}

	var latestPhase sql.NullString
	var maxRunNumber sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT phase, run_number FROM flow_runs WHERE flow_id=$1 ORDER BY run_number DESC LIMIT 1`,
		flowID).Scan(&latestPhase, &maxRunNumber)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: read latest flow run for flow %s: %w", flowID, err)
	}

	if latestPhase.Valid && isActivePhase(phase.Phase(latestPhase.String)) {
		return nil, ErrConflict
	}

	nextRunNumber := int(maxRunNumber.Int64) + 1
	now := s.now()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO flow_runs (flow_id, run_number, phase, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		flowID, nextRunNumber, phase.Pending, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("store: insert flow run for flow %s: %w", flowID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit create-flow-run: %w", err)
	}

	return &FlowRun{
		ID:        id,
		FlowID:    flowID,
		RunNumber: nextRunNumber,
		Phase:     phase.Pending,
		CreatedAt: now,
	}, nil
}

// SetFlowRunWorkflowID assigns the Argo workflow name a flow run was
// submitted under, once the DAG manifest has been synthesized and created.
func (s *Store) SetFlowRunWorkflowID(ctx context.Context, flowRunID int64, workflowID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE flow_runs SET workflow_id=$1 WHERE id=$2`, workflowID, flowRunID)
	if err != nil {
		return fmt.Errorf("store: set flow run %d workflow id: %w", flowRunID, err)
	}
	return nil
}

// MarkFlowRunError transitions a reserved flow run straight to Error.
func (s *Store) MarkFlowRunError(ctx context.Context, flowRunID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE flow_runs SET phase=$1 WHERE id=$2`, phase.Error, flowRunID)
	if err != nil {
		return fmt.Errorf("store: mark flow run %d error: %w", flowRunID, err)
	}
	return nil
}

// UpdateFlowRunPhase sets a flow run's phase and optional timestamps,
// refusing to regress a terminal phase.
func (s *Store) UpdateFlowRunPhase(ctx context.Context, flowRunID int64, newPhase phase.Phase, startedAt, finishedAt *string) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT phase FROM flow_runs WHERE id=$1`, flowRunID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read flow run %d phase: %w", flowRunID, err)
	}
	if phase.Phase(current).Terminal() {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE flow_runs SET phase=$1, started_at=COALESCE($2, started_at), finished_at=COALESCE($3, finished_at) WHERE id=$4`,
		newPhase, startedAt, finishedAt, flowRunID)
	if err != nil {
		return fmt.Errorf("store: update flow run %d phase: %w", flowRunID, err)
	}
	return nil
}

func scanFlowRun(row *sql.Row) (*FlowRun, error) {
	var r FlowRun
	var workflowID sql.NullString
	var started, finished sql.NullTime
	err := row.Scan(&r.ID, &r.FlowID, &workflowID, &r.RunNumber, &r.Phase, &started, &finished, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.WorkflowID = workflowID.String
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

const flowRunSelectColumns = "id, flow_id, workflow_id, run_number, phase, started_at, finished_at, created_at"

// GetFlowRun fetches a flow run by id.
func (s *Store) GetFlowRun(ctx context.Context, flowRunID int64) (*FlowRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flowRunSelectColumns+` FROM flow_runs WHERE id=$1`, flowRunID)
	return scanFlowRun(row)
}

// GetLatestFlowRun returns the highest-run_number run for flowID.
func (s *Store) GetLatestFlowRun(ctx context.Context, flowID string) (*FlowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flowRunSelectColumns+` FROM flow_runs WHERE flow_id=$1 ORDER BY run_number DESC LIMIT 1`, flowID)
	return scanFlowRun(row)
}

// ListFlowRunsForFlow returns every run of flowID, most recent first.
func (s *Store) ListFlowRunsForFlow(ctx context.Context, flowID string) ([]*FlowRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flowRunSelectColumns+` FROM flow_runs WHERE flow_id=$1 ORDER BY run_number DESC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("store: list flow runs for flow %s: %w", flowID, err)
	}
	defer rows.Close()

	var out []*FlowRun
	for rows.Next() {
		var r FlowRun
		var workflowID sql.NullString
		var started, finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.FlowID, &workflowID, &r.RunNumber, &r.Phase, &started, &finished, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.WorkflowID = workflowID.String
		if started.Valid {
			t := started.Time
			r.StartedAt = &t
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
