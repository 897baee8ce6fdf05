// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package logs is the Log Pipeline (C5): reconciles a Run's stored phase
// and log records against the workflow engine on demand (pull) and on a
// fixed tick (push), persisting what it learns back through the Store
// Adapter.
package logs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pyforge/controlplane/internal/engine"
	"github.com/pyforge/controlplane/internal/phase"
	"github.com/pyforge/controlplane/internal/store"
)

// tailLines bounds how much of a pod's log the engine log-fetch
// sub-algorithm reads per node.
const tailLines = 500

// transientMessages are engine log-fetch failures the sub-algorithm treats
// as "nothing to show yet" rather than an error worth recording.
var transientMessages = []string{
	"pod initializing",
	"waiting to start",
}

// Pipeline wires the Store Adapter to the workflow engine client.
type Pipeline struct {
	store  *store.Store
	engine *engine.Client
}

// New builds a Pipeline over an already-open store and engine client.
func New(s *store.Store, e *engine.Client) *Pipeline {
	return &Pipeline{store: s, engine: e}
}

// PullResult is the outcome of one pull-algorithm execution.
type PullResult struct {
	Phase  phase.Phase
	Logs   []*store.LogRecord
	Source string // "database", "kubernetes", or "error"
	Error  string
}

// GetLogs resolves the target run (latest of task if runNumber is nil) and
// runs the pull algorithm against it.
func (p *Pipeline) GetLogs(ctx context.Context, taskID string, runNumber *int) (*PullResult, error) {
	var run *store.Run
	var err error
	if runNumber == nil {
		run, err = p.store.GetLatestRun(ctx, taskID)
	} else {
		run, err = p.store.GetRunByNumber(ctx, taskID, *runNumber)
	}
	if err != nil {
		return nil, err
	}
	return p.pull(ctx, run)
}

// pull implements §4.5's pull algorithm against an already-resolved run,
// timing the call and recording it against the result's source.
func (p *Pipeline) pull(ctx context.Context, run *store.Run) (result *PullResult, err error) {
	start := time.Now()
	defer func() {
		source := "error"
		if result != nil {
			source = result.Source
		}
		pullDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()
	return p.pullInner(ctx, run)
}

func (p *Pipeline) pullInner(ctx context.Context, run *store.Run) (*PullResult, error) {
	resolved := run.Phase

	if run.WorkflowID != "" {
		status, err := p.engine.GetWorkflowStatus(ctx, p.engine.Namespace(), run.WorkflowID)
		if err != nil {
			// No workflow status available; fall through on whatever is
			// cached in the store. Only surface source=error if nothing
			// is cached at all, handled below once stored logs are read.
			return p.pullFromCacheOnly(ctx, run, err)
		}

		resolved = phase.Resolve(status.Phase)
		if resolved != run.Phase {
			startedAt, finishedAt := timestampPtr(status.StartedAt), timestampPtr(status.FinishedAt)
			if err := p.store.UpdateRunPhase(ctx, run.ID, resolved, startedAt, finishedAt); err != nil {
				return nil, fmt.Errorf("logs: update run %d phase: %w", run.ID, err)
			}
			run.Phase = resolved
		}

		stored, err := p.store.GetLogsForRun(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("logs: get logs for run %d: %w", run.ID, err)
		}

		if resolved.Terminal() && hasNonTerminalLog(stored, resolved) {
			if err := p.store.RewriteTerminalLogPhases(ctx, run, resolved); err != nil {
				return nil, fmt.Errorf("logs: rewrite terminal log phases for run %d: %w", run.ID, err)
			}
			stored, err = p.store.GetLogsForRun(ctx, run)
			if err != nil {
				return nil, fmt.Errorf("logs: reload logs for run %d: %w", run.ID, err)
			}
		}

		if len(stored) > 0 {
			return &PullResult{Phase: resolved, Logs: stored, Source: "database"}, nil
		}

		fetched, fetchErr := p.fetchFromEngine(ctx, run, status)
		if fetchErr != nil {
			return &PullResult{Phase: resolved, Logs: nil, Source: "error", Error: fetchErr.Error()}, nil
		}
		for _, rec := range fetched {
			if err := p.store.UpsertLog(ctx, run.ID, run.TaskID, rec.NodeID, rec.PodName, rec.Phase, rec.Logs); err != nil {
				return nil, fmt.Errorf("logs: persist fetched log for run %d: %w", run.ID, err)
			}
		}
		return &PullResult{Phase: resolved, Logs: fetched, Source: "kubernetes"}, nil
	}

	return p.pullFromCacheOnly(ctx, run, nil)
}

func (p *Pipeline) pullFromCacheOnly(ctx context.Context, run *store.Run, engineErr error) (*PullResult, error) {
	stored, err := p.store.GetLogsForRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("logs: get logs for run %d: %w", run.ID, err)
	}
	if len(stored) > 0 {
		return &PullResult{Phase: run.Phase, Logs: stored, Source: "database"}, nil
	}
	if engineErr != nil {
		return &PullResult{Phase: run.Phase, Logs: nil, Source: "error", Error: engineErr.Error()}, nil
	}
	return &PullResult{Phase: run.Phase, Logs: nil, Source: "database"}, nil
}

func hasNonTerminalLog(logs []*store.LogRecord, resolved phase.Phase) bool {
	for _, l := range logs {
		if l.Phase != resolved && !l.Phase.Terminal() {
			return true
		}
	}
	return false
}

func timestampPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// fetchFromEngine is the engine log-fetch sub-algorithm: for each pod-type
// node, resolve its pod and tail the main container's log, skipping
// transient and Pending-pod cases silently.
func (p *Pipeline) fetchFromEngine(ctx context.Context, run *store.Run, status *engine.WorkflowStatus) ([]*store.LogRecord, error) {
	namespace := p.engine.Namespace()

	var podList []string
	listPods := func() ([]string, error) {
		if podList != nil {
			return podList, nil
		}
		pods, err := p.engine.ListPodsForWorkflow(ctx, namespace, run.WorkflowID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(pods))
		for _, pod := range pods {
			names = append(names, pod.Name)
		}
		podList = names
		return names, nil
	}

	var records []*store.LogRecord
	var lastErr error

	for nodeID, node := range status.Phase.Nodes {
		if node.Type != phase.NodeTypePod {
			continue
		}
		if node.Phase == phase.Pending {
			continue
		}

		podName, err := p.resolvePodName(ctx, namespace, nodeID, node, listPods)
		if err != nil {
			lastErr = err
			continue
		}

		text, err := p.engine.TailLogs(ctx, namespace, podName, engine.MainContainerName, tailLines)
		if err != nil {
			if isTransient(err) {
				continue
			}
			records = append(records, &store.LogRecord{NodeID: nodeID, PodName: podName, Phase: node.Phase, Logs: err.Error()})
			continue
		}
		records = append(records, &store.LogRecord{NodeID: nodeID, PodName: podName, Phase: node.Phase, Logs: text})
	}

	if len(records) == 0 {
		if status.Message != "" {
			resolved := phase.Resolve(status.Phase)
			return []*store.LogRecord{{NodeID: "workflow", PodName: "", Phase: resolved, Logs: status.Message}}, nil
		}
		if lastErr != nil {
			return nil, lastErr
		}
	}

	return records, nil
}

// resolvePodName tries the node's displayName and its map key as literal
// pod names before falling back to a label-filtered pod list match.
func (p *Pipeline) resolvePodName(ctx context.Context, namespace, nodeID string, node phase.Node, listPods func() ([]string, error)) (string, error) {
	for _, candidate := range []string{node.DisplayName, nodeID} {
		if candidate == "" {
			continue
		}
		if _, err := p.engine.GetPod(ctx, namespace, candidate); err == nil {
			return candidate, nil
		}
	}

	names, err := listPods()
	if err != nil {
		return "", fmt.Errorf("logs: list pods for node %s: %w", nodeID, err)
	}
	for _, name := range names {
		if name == node.DisplayName || strings.Contains(name, nodeID) {
			return name, nil
		}
	}
	return "", fmt.Errorf("logs: no pod found for node %s", nodeID)
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, t := range transientMessages {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// Frame is one message of the push stream's duplex protocol.
type Frame struct {
	Type   string // "snapshot", "update", "complete", "error"
	Result *PullResult
}

// ErrNoRun is returned by StreamLatest when the task has no run yet.
var ErrNoRun = errors.New("logs: task has no run")

// canonicalHash returns a stable digest of a log-record set so the push
// loop can detect "nothing changed" without a deep comparison.
func canonicalHash(logs []*store.LogRecord) string {
	sorted := make([]*store.LogRecord, len(logs))
	copy(sorted, logs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].NodeID != sorted[j].NodeID {
			return sorted[i].NodeID < sorted[j].NodeID
		}
		return sorted[i].PodName < sorted[j].PodName
	})

	h := sha256.New()
	for _, l := range sorted {
		h.Write([]byte(l.NodeID))
		h.Write([]byte{0})
		h.Write([]byte(l.PodName))
		h.Write([]byte{0})
		h.Write([]byte(l.Phase))
		h.Write([]byte{0})
		h.Write([]byte(l.Logs))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
