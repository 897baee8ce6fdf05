// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "errors"

var (
	// ErrNotFound is returned when a lookup by id finds no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an operation would violate an
	// at-most-one-active-run style invariant.
	ErrConflict = errors.New("store: conflict")
)
