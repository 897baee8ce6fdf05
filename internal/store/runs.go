// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pyforge/controlplane/internal/phase"
)

// CreateRun reserves the next run for taskID inside one transaction: it
// reads MAX(run_number), rejects if the latest run is still active
// (Pending/Running), and inserts the new row with run_number = max+1. The
// (task_id, run_number) unique constraint is the backstop against
// concurrent submits racing past the in-transaction check.
func (s *Store) CreateRun(ctx context.Context, taskID string) (*Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin create-run transaction: %w", err)
	}
	defer tx.Rollback()

	if s.dialect == DialectPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT id FROM tasks WHERE id=$1 FOR UPDATE`, taskID); err != nil {
			return nil, fmt.Errorf("store: lock task %s: %w", taskID, err)
		}
	}

	var latestPhase sql.NullString
	var maxRunNumber sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT phase, run_number FROM task_runs WHERE task_id=$1 ORDER BY run_number DESC LIMIT 1`,
		taskID).Scan(&latestPhase, &maxRunNumber)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: read latest run for task %s: %w", taskID, err)
	}

	if latestPhase.Valid && isActivePhase(phase.Phase(latestPhase.String)) {
		return nil, ErrConflict
	}

	nextRunNumber := int(maxRunNumber.Int64) + 1
	now := s.now()

	// Snapshot fields are filled in by SetRunSnapshot once the caller
	// resolves the task's current code; CreateRun only reserves the slot
	// so the numbering/conflict check stays inside one transaction.
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO task_runs (task_id, run_number, phase, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		taskID, nextRunNumber, phase.Pending, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("store: insert run for task %s: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit create-run: %w", err)
	}

	return &Run{
		ID:        id,
		TaskID:    taskID,
		RunNumber: nextRunNumber,
		Phase:     phase.Pending,
		CreatedAt: now,
	}, nil
}

func isActivePhase(p phase.Phase) bool {
	for _, a := range ActivePhases {
		if p == a {
			return true
		}
	}
	return false
}

// SetRunSnapshot records the task code/deps a run was submitted with, and
// assigns its workflow_id. Called once, immediately after a successful
// manifest synthesis + engine submit.
func (s *Store) SetRunSnapshot(ctx context.Context, runID int64, workflowID, pythonCode, pythonDeps, requirementsFile, systemDeps string) error {
	caps := s.capsSnapshot()

	var err error
	if caps.TaskRunsHaveCodeSnapshot {
		sysDeps := ""
		if caps.TaskRunsHaveSystemDeps {
			sysDeps = systemDeps
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE task_runs SET workflow_id=$1, python_code=$2, python_deps=$3, requirements_file=$4, system_deps=$5 WHERE id=$6`,
			workflowID, pythonCode, pythonDeps, requirementsFile, sysDeps, runID)
	} else {
		_, err = s.db.ExecContext(ctx, `UPDATE task_runs SET workflow_id=$1 WHERE id=$2`, workflowID, runID)
	}
	if err != nil {
		return fmt.Errorf("store: set run snapshot for run %d: %w", runID, err)
	}
	return nil
}

// MarkRunError transitions a reserved run straight to Error, used when
// manifest synthesis or engine submission fails after CreateRun reserved
// the slot.
func (s *Store) MarkRunError(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE task_runs SET phase=$1 WHERE id=$2`, phase.Error, runID)
	if err != nil {
		return fmt.Errorf("store: mark run %d error: %w", runID, err)
	}
	return nil
}

// UpdateRunPhase sets a run's phase and optional started/finished
// timestamps, refusing to regress a terminal phase.
func (s *Store) UpdateRunPhase(ctx context.Context, runID int64, newPhase phase.Phase, startedAt, finishedAt *string) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT phase FROM task_runs WHERE id=$1`, runID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read run %d phase: %w", runID, err)
	}
	if phase.Phase(current).Terminal() {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE task_runs SET phase=$1, started_at=COALESCE($2, started_at), finished_at=COALESCE($3, finished_at) WHERE id=$4`,
		newPhase, startedAt, finishedAt, runID)
	if err != nil {
		return fmt.Errorf("store: update run %d phase: %w", runID, err)
	}
	return nil
}

// CancelRun forces a run into Cancelled, the one phase transition Resolve
// never produces on its own. A run already in a terminal phase is left
// untouched.
func (s *Store) CancelRun(ctx context.Context, runID int64) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT phase FROM task_runs WHERE id=$1`, runID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read run %d phase: %w", runID, err)
	}
	if phase.Phase(current).Terminal() {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `UPDATE task_runs SET phase=$1, finished_at=COALESCE(finished_at, $2) WHERE id=$3`,
		phase.Cancelled, s.now(), runID)
	if err != nil {
		return fmt.Errorf("store: cancel run %d: %w", runID, err)
	}
	return nil
}

func (s *Store) scanRun(row *sql.Row, caps capabilities) (*Run, error) {
	var r Run
	var workflowID, pythonCode, pythonDeps, reqFile, systemDeps sql.NullString
	var started, finished sql.NullTime
	var err error

	if caps.TaskRunsHaveCodeSnapshot {
		err = row.Scan(&r.ID, &r.TaskID, &workflowID, &r.RunNumber, &r.Phase, &pythonCode, &pythonDeps, &reqFile, &systemDeps, &started, &finished, &r.CreatedAt)
	} else {
		err = row.Scan(&r.ID, &r.TaskID, &workflowID, &r.RunNumber, &r.Phase, &started, &finished, &r.CreatedAt)
	}
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.WorkflowID = workflowID.String
	r.PythonCode = pythonCode.String
	r.PythonDeps = pythonDeps.String
	r.RequirementsFile = reqFile.String
	r.SystemDeps = systemDeps.String
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}

	if !caps.TaskRunsHaveCodeSnapshot {
		// Legacy-read mode: fall back to the owning task's current code.
		// Re-reads of old runs therefore show current code, a documented
		// caveat rather than a defect.
		if task, err := s.GetTask(context.Background(), r.TaskID); err == nil {
			r.PythonCode = task.PythonCode
			r.PythonDeps = task.PythonDeps
			r.RequirementsFile = task.RequirementsFile
			r.SystemDeps = task.SystemDeps
		}
	}

	return &r, nil
}

func (s *Store) runSelectColumns(caps capabilities) string {
	if caps.TaskRunsHaveCodeSnapshot {
		return "id, task_id, workflow_id, run_number, phase, python_code, python_deps, requirements_file, system_deps, started_at, finished_at, created_at"
	}
	return "id, task_id, workflow_id, run_number, phase, started_at, finished_at, created_at"
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	caps := s.capsSnapshot()
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM task_runs WHERE id=$1`, s.runSelectColumns(caps)), runID)
	return s.scanRun(row, caps)
}

// GetLatestRun returns the highest-run_number run for taskID.
func (s *Store) GetLatestRun(ctx context.Context, taskID string) (*Run, error) {
	caps := s.capsSnapshot()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM task_runs WHERE task_id=$1 ORDER BY run_number DESC LIMIT 1`, s.runSelectColumns(caps)),
		taskID)
	return s.scanRun(row, caps)
}

// GetRunByNumber returns the run with the given run_number for taskID.
func (s *Store) GetRunByNumber(ctx context.Context, taskID string, runNumber int) (*Run, error) {
	caps := s.capsSnapshot()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM task_runs WHERE task_id=$1 AND run_number=$2`, s.runSelectColumns(caps)),
		taskID, runNumber)
	return s.scanRun(row, caps)
}

// ListRunsForTask returns every run of taskID, most recent first.
func (s *Store) ListRunsForTask(ctx context.Context, taskID string) ([]*Run, error) {
	caps := s.capsSnapshot()
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM task_runs WHERE task_id=$1 ORDER BY run_number DESC`, s.runSelectColumns(caps)),
		taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list runs for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := s.scanRunFromRows(rows, caps)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) scanRunFromRows(rows *sql.Rows, caps capabilities) (*Run, error) {
	var r Run
	var workflowID, pythonCode, pythonDeps, reqFile, systemDeps sql.NullString
	var started, finished sql.NullTime
	var err error

	if caps.TaskRunsHaveCodeSnapshot {
		err = rows.Scan(&r.ID, &r.TaskID, &workflowID, &r.RunNumber, &r.Phase, &pythonCode, &pythonDeps, &reqFile, &systemDeps, &started, &finished, &r.CreatedAt)
	} else {
		err = rows.Scan(&r.ID, &r.TaskID, &workflowID, &r.RunNumber, &r.Phase, &started, &finished, &r.CreatedAt)
	}
	if err != nil {
		return nil, err
	}

	r.WorkflowID = workflowID.String
	r.PythonCode = pythonCode.String
	r.PythonDeps = pythonDeps.String
	r.RequirementsFile = reqFile.String
	r.SystemDeps = systemDeps.String
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
