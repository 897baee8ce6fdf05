// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertTask creates a task row if id is new, or overwrites its code and
// dependency fields if it already exists — matching the "mutated on
// resubmit under same id" lifecycle.
func (s *Store) UpsertTask(ctx context.Context, id, pythonCode, pythonDeps, requirementsFile, systemDeps string) (*Task, error) {
	now := s.now()
	caps := s.capsSnapshot()

	existing, err := s.GetTask(ctx, id)
	switch {
	case err == ErrNotFound:
		if caps.TasksHaveSystemDeps {
			_, err = s.db.ExecContext(ctx,
				`INSERT INTO tasks (id, python_code, python_deps, requirements_file, system_deps, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
				id, pythonCode, pythonDeps, requirementsFile, systemDeps, now)
		} else {
			_, err = s.db.ExecContext(ctx,
				`INSERT INTO tasks (id, python_code, python_deps, requirements_file, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $5)`,
				id, pythonCode, pythonDeps, requirementsFile, now)
		}
		if err != nil {
			return nil, fmt.Errorf("store: insert task: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		_ = existing
		if caps.TasksHaveSystemDeps {
			_, err = s.db.ExecContext(ctx,
				`UPDATE tasks SET python_code=$1, python_deps=$2, requirements_file=$3, system_deps=$4, updated_at=$5 WHERE id=$6`,
				pythonCode, pythonDeps, requirementsFile, systemDeps, now, id)
		} else {
			_, err = s.db.ExecContext(ctx,
				`UPDATE tasks SET python_code=$1, python_deps=$2, requirements_file=$3, updated_at=$4 WHERE id=$5`,
				pythonCode, pythonDeps, requirementsFile, now, id)
		}
		if err != nil {
			return nil, fmt.Errorf("store: update task: %w", err)
		}
	}

	return s.GetTask(ctx, id)
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	caps := s.capsSnapshot()

	var t Task
	var systemDeps sql.NullString
	var err error
	if caps.TasksHaveSystemDeps {
		err = s.db.QueryRowContext(ctx,
			`SELECT id, python_code, python_deps, requirements_file, system_deps, created_at, updated_at FROM tasks WHERE id=$1`,
			id).Scan(&t.ID, &t.PythonCode, nullString(&t.PythonDeps), nullString(&t.RequirementsFile), &systemDeps, &t.CreatedAt, &t.UpdatedAt)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT id, python_code, python_deps, requirements_file, created_at, updated_at FROM tasks WHERE id=$1`,
			id).Scan(&t.ID, &t.PythonCode, nullString(&t.PythonDeps), nullString(&t.RequirementsFile), &t.CreatedAt, &t.UpdatedAt)
	}
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	t.SystemDeps = systemDeps.String
	return &t, nil
}

// ListTasks returns every task, ordered by creation time descending.
func (s *Store) ListTasks(ctx context.Context) ([]*Task, error) {
	caps := s.capsSnapshot()

	query := `SELECT id, python_code, python_deps, requirements_file, created_at, updated_at FROM tasks ORDER BY created_at DESC`
	if caps.TasksHaveSystemDeps {
		query = `SELECT id, python_code, python_deps, requirements_file, system_deps, created_at, updated_at FROM tasks ORDER BY created_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var t Task
		var systemDeps sql.NullString
		if caps.TasksHaveSystemDeps {
			if err := rows.Scan(&t.ID, &t.PythonCode, nullString(&t.PythonDeps), nullString(&t.RequirementsFile), &systemDeps, &t.CreatedAt, &t.UpdatedAt); err != nil {
				return nil, err
			}
		} else {
			if err := rows.Scan(&t.ID, &t.PythonCode, nullString(&t.PythonDeps), nullString(&t.RequirementsFile), &t.CreatedAt, &t.UpdatedAt); err != nil {
				return nil, err
			}
		}
		t.SystemDeps = systemDeps.String
		out = append(out, &t)
	}
	return out, rows.Err()
}

// PurgeTask deletes the task and, via ON DELETE CASCADE, every Run and
// LogRecord owned by it. The deletion is one keyed statement, not an
// object-graph walk.
func (s *Store) PurgeTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("store: purge task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString is a small scan-time bridge between sql.NullString semantics
// and the plain string fields this package's model types use: missing
// values resolve to "" rather than requiring callers to unwrap
// sql.NullString.
func nullString(dst *string) *scannedString {
	return &scannedString{dst: dst}
}

type scannedString struct {
	dst *string
}

func (s *scannedString) Scan(value interface{}) error {
	if value == nil {
		*s.dst = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s.dst = v
	case []byte:
		*s.dst = string(v)
	default:
		return fmt.Errorf("store: unsupported scan type %T", value)
	}
	return nil
}
