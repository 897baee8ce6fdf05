// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package service orchestrates the Store Adapter, the engine client, the
// Manifest Synthesizer, the Bootstrap Script Builder, the Log Pipeline and
// the Volume Helper Pod Manager into the operations the HTTP surface
// exposes. Handlers classify errors returned from here via errors.Is
// against the sentinels below, never by parsing message text.
package service

import "errors"

var (
	// ErrValidation covers malformed or disallowed request input: dependency
	// text too long or containing a denylisted metacharacter, a flow with a
	// cyclic graph or an edge naming an undeclared step, a file path outside
	// the result mount.
	ErrValidation = errors.New("service: validation failed")

	// ErrPrecondition covers a required precondition that wasn't met: a PVC
	// missing or not bound, or a referenced task/flow/run that doesn't exist.
	ErrPrecondition = errors.New("service: precondition failed")

	// ErrConflict covers starting a run against a task or flow that already
	// has one in flight.
	ErrConflict = errors.New("service: conflict")
)
