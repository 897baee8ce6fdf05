// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the Store Adapter (C4): typed persistence for Tasks,
// Runs, LogRecords, Flows, FlowRuns, StepRuns, and StepLogRecords, built on
// database/sql. It tolerates two generations of the task_runs/task_logs
// schema by inspecting the catalog at startup and adding any missing
// columns with idempotent ALTER TABLE statements.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dialect names the SQL engine behind the store. Both are driven through
// database/sql: pgx/v5's stdlib driver in production, modernc.org/sqlite
// (pure Go, no CGO) in tests.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// capabilities records which evolution columns are present. It is
// computed once at startup, in Open, after evolveSchema has issued every
// ALTER TABLE.
type capabilities struct {
	TaskLogsHaveRunID        bool
	TaskRunsHaveCodeSnapshot bool
	TasksHaveSystemDeps      bool
	TaskRunsHaveSystemDeps   bool
}

// Store is the Store Adapter. All exported methods are safe for concurrent
// use; serialization of writes is left to the underlying database's
// transaction semantics.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	mu   sync.RWMutex
	caps capabilities
}

// Open wraps an already-connected *sql.DB, runs schema creation, evolves
// the schema, and computes the initial capability bitmap.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, dialect: dialect, logger: logger.With("component", "store")}

	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	s.evolveSchema(ctx)
	if err := s.refreshCapabilities(ctx); err != nil {
		return nil, fmt.Errorf("store: inspect catalog: %w", err)
	}

	return s, nil
}

func (s *Store) refreshCapabilities(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	s.caps.TaskLogsHaveRunID, err = s.hasColumn(ctx, "task_logs", "run_id")
	if err != nil {
		return err
	}
	s.caps.TaskRunsHaveCodeSnapshot, err = s.hasColumn(ctx, "task_runs", "python_code")
	if err != nil {
		return err
	}
	s.caps.TasksHaveSystemDeps, err = s.hasColumn(ctx, "tasks", "system_deps")
	if err != nil {
		return err
	}
	s.caps.TaskRunsHaveSystemDeps, err = s.hasColumn(ctx, "task_runs", "system_deps")
	if err != nil {
		return err
	}
	return nil
}

func (s *Store) capsSnapshot() capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	switch s.dialect {
	case DialectSQLite:
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return false, err
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name, colType string
			var notNull int
			var dfltValue sql.NullString
			var pk int
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
				return false, err
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	default:
		var found string
		err := s.db.QueryRowContext(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`,
			table, column).Scan(&found)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

func (s *Store) now() time.Time {
	return time.Now().UTC()
}
