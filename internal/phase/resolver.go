// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package phase derives a single authoritative run phase from a workflow
// engine status document, reconciling the engine's top-level phase with the
// phases of its pod-type nodes.
package phase

// Phase is one of the lifecycle states a Run, FlowRun, StepRun or node can
// occupy. Cancelled is never produced by Resolve; it is only ever assigned
// by an explicit cancel operation elsewhere in the system.
type Phase string

const (
	Pending   Phase = "Pending"
	Running   Phase = "Running"
	Succeeded Phase = "Succeeded"
	Failed    Phase = "Failed"
	Error     Phase = "Error"
	Cancelled Phase = "Cancelled"
)

// Terminal reports whether p is a phase that never changes once reached.
func (p Phase) Terminal() bool {
	switch p {
	case Succeeded, Failed, Error, Cancelled:
		return true
	default:
		return false
	}
}

// NodeType identifies the kind of node in a workflow engine's status
// document. Only Pod nodes are inspected by Resolve; other node types
// (steps, retries, DAG containers) are ignored.
type NodeType string

const (
	NodeTypePod NodeType = "Pod"
)

// Node is one entry of a workflow engine status document's node map. Only
// Type and Phase feed Resolve; DisplayName and TemplateName are carried
// through for the log pipeline's pod-name and step-id resolution, which
// read the same status document but don't participate in phase resolution.
type Node struct {
	Type         NodeType
	Phase        Phase
	DisplayName  string
	TemplateName string
}

// Status is the subset of a workflow engine's status document that the
// resolver needs: the top-level phase and the per-node phase map.
type Status struct {
	Phase Phase
	Nodes map[string]Node
}

// Resolve derives a single phase from status, per the following rules:
//
//  1. A nil or zero-value status resolves to Pending.
//  2. An empty top-level phase resolves to Pending.
//  3. A terminal top-level phase is returned unchanged.
//  4. A Running top-level phase is refined by inspecting pod nodes:
//     any Running pod wins; with no Running and no Pending pod but at
//     least one Succeeded pod, the run is still reported Running
//     (transitional — the engine hasn't rolled the top-level phase
//     forward yet); with only Pending pods, or no pod nodes at all, the
//     run is reported Pending; any other mix trusts the top-level phase.
//  5. A Pending top-level phase is promoted to Running if any pod node
//     is already Running, and left as Pending otherwise.
//
// Resolve never returns a phase that regresses a terminal one: callers
// that persist the result are expected to enforce that invariant across
// calls (the resolver itself is a pure function of a single status
// snapshot and has no memory of prior observations).
func Resolve(status *Status) Phase {
	if status == nil {
		return Pending
	}
	if status.Phase == "" {
		return Pending
	}
	if status.Phase.Terminal() {
		return status.Phase
	}

	switch status.Phase {
	case Running:
		return resolveRunning(status.Nodes)
	case Pending:
		if anyPodIn(status.Nodes, Running) {
			return Running
		}
		return Pending
	default:
		return status.Phase
	}
}

func resolveRunning(nodes map[string]Node) Phase {
	var podCount, runningCount, pendingCount, succeededCount int
	for _, n := range nodes {
		if n.Type != NodeTypePod {
			continue
		}
		podCount++
		switch n.Phase {
		case Running:
			runningCount++
		case Pending:
			pendingCount++
		case Succeeded:
			succeededCount++
		}
	}

	switch {
	case runningCount > 0:
		return Running
	case pendingCount == 0 && succeededCount > 0:
		return Running
	case podCount == 0 || podCount == pendingCount:
		return Pending
	default:
		return Running
	}
}

func anyPodIn(nodes map[string]Node, want Phase) bool {
	for _, n := range nodes {
		if n.Type == NodeTypePod && n.Phase == want {
			return true
		}
	}
	return false
}
