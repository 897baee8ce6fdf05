// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"context"
	"errors"
	"time"

	"github.com/pyforge/controlplane/internal/store"
)

// tickInterval is the push loop's fixed poll interval.
const tickInterval = time.Second

// StreamLatest runs the push algorithm for a task's latest run: an initial
// snapshot, periodic diff-based updates, and a final complete marker on
// terminal phase. emit is called synchronously for every frame; a returned
// error from emit (e.g. the remote reader disconnected) stops the loop
// without being treated as a pipeline failure.
func (p *Pipeline) StreamLatest(ctx context.Context, taskID string, emit func(Frame) error) error {
	run, err := p.store.GetLatestRun(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return emit(Frame{Type: "error", Result: &PullResult{Source: "error", Error: ErrNoRun.Error()}})
	}
	if err != nil {
		return emit(Frame{Type: "error", Result: &PullResult{Source: "error", Error: err.Error()}})
	}

	result, err := p.pull(ctx, run)
	if err != nil {
		return emit(Frame{Type: "error", Result: &PullResult{Source: "error", Error: err.Error()}})
	}
	if err := emit(Frame{Type: "snapshot", Result: result}); err != nil {
		return nil
	}

	lastHash := canonicalHash(result.Logs)
	lastPhase := result.Phase

	if result.Phase.Terminal() {
		return p.finalize(ctx, run, result, emit)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tickStart := time.Now()
			run, err = p.store.GetRun(ctx, run.ID)
			if err != nil {
				return emit(Frame{Type: "error", Result: &PullResult{Source: "error", Error: err.Error()}})
			}
			result, err = p.pull(ctx, run)
			if err != nil {
				return emit(Frame{Type: "error", Result: &PullResult{Source: "error", Error: err.Error()}})
			}

			hash := canonicalHash(result.Logs)
			if hash != lastHash || result.Phase != lastPhase {
				if err := emit(Frame{Type: "update", Result: result}); err != nil {
					return nil
				}
				lastHash = hash
				lastPhase = result.Phase
			}
			pushTickDuration.Observe(time.Since(tickStart).Seconds())

			if result.Phase.Terminal() {
				return p.finalize(ctx, run, result, emit)
			}
		}
	}
}

// finalize executes one last pull, persists it, and emits a final frame
// followed by a complete marker before the caller closes the stream.
func (p *Pipeline) finalize(ctx context.Context, run *store.Run, result *PullResult, emit func(Frame) error) error {
	final, err := p.pull(ctx, run)
	if err != nil {
		final = result
	}
	if err := emit(Frame{Type: "update", Result: final}); err != nil {
		return nil
	}
	_ = emit(Frame{Type: "complete", Result: final})
	return nil
}
