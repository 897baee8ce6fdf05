// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "context"

// createSchema creates every table this store needs, in a deliberately
// minimal ("legacy") shape for tasks/task_runs/task_logs — the evolution
// columns are added afterward by evolveSchema so both a brand-new database
// and a pre-existing legacy one go through the same idempotent path.
func (s *Store) createSchema(ctx context.Context) error {
	for _, stmt := range s.createTableStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createTableStatements() []string {
	autoincrement := "BIGSERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		autoincrement = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			python_code TEXT NOT NULL,
			python_deps TEXT,
			requirements_file TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_runs (
			id ` + autoincrement + `,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			workflow_id TEXT UNIQUE,
			run_number INTEGER NOT NULL,
			phase TEXT NOT NULL DEFAULT 'Pending',
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(task_id, run_number)
		)`,
		`CREATE TABLE IF NOT EXISTS task_logs (
			id ` + autoincrement + `,
			task_id TEXT REFERENCES tasks(id) ON DELETE CASCADE,
			node_id TEXT NOT NULL,
			pod_name TEXT NOT NULL,
			phase TEXT,
			logs TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_runs_task_id ON task_runs(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs(task_id)`,

		`CREATE TABLE IF NOT EXISTS flows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			definition TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flow_runs (
			id ` + autoincrement + `,
			flow_id TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
			workflow_id TEXT UNIQUE,
			run_number INTEGER NOT NULL,
			phase TEXT NOT NULL DEFAULT 'Pending',
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(flow_id, run_number)
		)`,
		`CREATE TABLE IF NOT EXISTS flow_step_runs (
			id ` + autoincrement + `,
			flow_run_id INTEGER NOT NULL REFERENCES flow_runs(id) ON DELETE CASCADE,
			step_id TEXT NOT NULL,
			workflow_node_id TEXT,
			phase TEXT NOT NULL DEFAULT 'Pending',
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			UNIQUE(flow_run_id, step_id)
		)`,
		`CREATE TABLE IF NOT EXISTS flow_step_logs (
			id ` + autoincrement + `,
			step_run_id INTEGER NOT NULL REFERENCES flow_step_runs(id) ON DELETE CASCADE,
			node_id TEXT NOT NULL,
			pod_name TEXT NOT NULL,
			phase TEXT,
			logs TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(step_run_id, node_id, pod_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_runs_flow_id ON flow_runs(flow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_step_runs_flow_run_id ON flow_step_runs(flow_run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_step_logs_step_run_id ON flow_step_logs(step_run_id)`,
	}
}

// evolution is one idempotent ALTER TABLE the store issues on startup.
type evolution struct {
	table  string
	column string
	ddl    string
}

func (s *Store) evolutions() []evolution {
	return []evolution{
		{"tasks", "system_deps", "TEXT"},
		{"task_runs", "python_code", "TEXT"},
		{"task_runs", "python_deps", "TEXT"},
		{"task_runs", "requirements_file", "TEXT"},
		{"task_runs", "system_deps", "TEXT"},
		{"task_logs", "run_id", "INTEGER REFERENCES task_runs(id) ON DELETE CASCADE"},
	}
}

// evolveSchema adds every missing evolution column. Postgres accepts
// "ADD COLUMN IF NOT EXISTS" directly; SQLite's ALTER TABLE grammar only
// supports IF NOT EXISTS on CREATE TABLE/INDEX; modernc.org/sqlite mirrors
// that and rejects it on ADD COLUMN, so the SQLite path checks hasColumn
// first and issues a plain ADD COLUMN only when it's actually missing. A
// failure is logged and otherwise ignored: the store falls back to
// legacy-read mode for that column rather than refusing to start.
func (s *Store) evolveSchema(ctx context.Context) {
	for _, e := range s.evolutions() {
		if s.dialect == DialectSQLite {
			present, err := s.hasColumn(ctx, e.table, e.column)
			if err != nil {
				s.logger.Warn("schema evolution check failed, continuing in legacy-read mode",
					"table", e.table, "column", e.column, "error", err)
				continue
			}
			if present {
				continue
			}
			stmt := "ALTER TABLE " + e.table + " ADD COLUMN " + e.column + " " + e.ddl
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.logger.Warn("schema evolution failed, continuing in legacy-read mode",
					"table", e.table, "column", e.column, "error", err)
			}
			continue
		}

		stmt := "ALTER TABLE " + e.table + " ADD COLUMN IF NOT EXISTS " + e.column + " " + e.ddl
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Warn("schema evolution failed, continuing in legacy-read mode",
				"table", e.table, "column", e.column, "error", err)
		}
	}
}
