// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateFlow inserts a new Flow in status "draft".
func (s *Store) CreateFlow(ctx context.Context, id, name, description, definition string) (*Flow, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flows (id, name, description, definition, status, created_at, updated_at) VALUES ($1, $2, $3, $4, 'draft', $5, $5)`,
		id, name, description, definition, now)
	if err != nil {
		return nil, fmt.Errorf("store: create flow %s: %w", id, err)
	}
	return s.GetFlow(ctx, id)
}

// UpdateFlow overwrites a flow's name/description/definition.
func (s *Store) UpdateFlow(ctx context.Context, id, name, description, definition string) (*Flow, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flows SET name=$1, description=$2, definition=$3, updated_at=$4 WHERE id=$5`,
		name, description, definition, s.now(), id)
	if err != nil {
		return nil, fmt.Errorf("store: update flow %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetFlow(ctx, id)
}

// GetFlow fetches a flow by id.
func (s *Store) GetFlow(ctx context.Context, id string) (*Flow, error) {
	var f Flow
	var description sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, definition, status, created_at, updated_at FROM flows WHERE id=$1`,
		id).Scan(&f.ID, &f.Name, &description, &f.Definition, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get flow %s: %w", id, err)
	}
	f.Description = description.String
	return &f, nil
}

// ListFlows returns every flow, most recently updated first.
func (s *Store) ListFlows(ctx context.Context) ([]*Flow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, definition, status, created_at, updated_at FROM flows ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list flows: %w", err)
	}
	defer rows.Close()

	var out []*Flow
	for rows.Next() {
		var f Flow
		var description sql.NullString
		if err := rows.Scan(&f.ID, &f.Name, &description, &f.Definition, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Description = description.String
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteFlow deletes a flow and, via ON DELETE CASCADE, every FlowRun,
// StepRun, and StepLogRecord owned by it.
func (s *Store) DeleteFlow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("store: delete flow %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
