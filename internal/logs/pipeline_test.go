// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/phase"
	"github.com/pyforge/controlplane/internal/store"
)

func TestCanonicalHashStableUnderReordering(t *testing.T) {
	a := []*store.LogRecord{
		{NodeID: "n1", PodName: "p1", Phase: phase.Running, Logs: "a"},
		{NodeID: "n2", PodName: "p2", Phase: phase.Running, Logs: "b"},
	}
	b := []*store.LogRecord{
		{NodeID: "n2", PodName: "p2", Phase: phase.Running, Logs: "b"},
		{NodeID: "n1", PodName: "p1", Phase: phase.Running, Logs: "a"},
	}
	require.Equal(t, canonicalHash(a), canonicalHash(b))
}

func TestCanonicalHashChangesWithContent(t *testing.T) {
	a := []*store.LogRecord{{NodeID: "n1", PodName: "p1", Phase: phase.Running, Logs: "a"}}
	b := []*store.LogRecord{{NodeID: "n1", PodName: "p1", Phase: phase.Running, Logs: "a\nmore"}}
	require.NotEqual(t, canonicalHash(a), canonicalHash(b))
}

func TestIsTransientMatchesKnownMessages(t *testing.T) {
	require.True(t, isTransient(errTest("pod is still Waiting to Start")))
	require.True(t, isTransient(errTest("container Pod Initializing")))
	require.False(t, isTransient(errTest("permission denied")))
}

func TestMapStepPhaseCollapsesFailedAndError(t *testing.T) {
	require.Equal(t, phase.Failed, mapStepPhase(phase.Failed))
	require.Equal(t, phase.Failed, mapStepPhase(phase.Error))
	require.Equal(t, phase.Running, mapStepPhase(phase.Running))
}

func TestMatchNodeExactThenCompositeThenScan(t *testing.T) {
	nodes := map[string]phase.Node{
		"wf-1.step-a": {Phase: phase.Running, TemplateName: manifest.TemplateNameForStep("step-a")},
		"other-node":  {Phase: phase.Succeeded, DisplayName: "step-b"},
	}

	sr := &store.StepRun{StepID: "step-a"}
	key, node, ok := matchNode(nodes, "wf-1", sr)
	require.True(t, ok)
	require.Equal(t, "wf-1.step-a", key)
	require.Equal(t, phase.Running, node.Phase)

	sr2 := &store.StepRun{StepID: "step-b"}
	key2, node2, ok2 := matchNode(nodes, "wf-1", sr2)
	require.True(t, ok2)
	require.Equal(t, "other-node", key2)
	require.Equal(t, phase.Succeeded, node2.Phase)

	sr3 := &store.StepRun{StepID: "missing"}
	_, _, ok3 := matchNode(nodes, "wf-1", sr3)
	require.False(t, ok3)
}

func TestMatchNodePrefersStoredExactMatch(t *testing.T) {
	nodes := map[string]phase.Node{
		"confirmed-node": {Phase: phase.Running},
	}
	sr := &store.StepRun{StepID: "step-a", WorkflowNodeID: "confirmed-node"}
	key, _, ok := matchNode(nodes, "wf-1", sr)
	require.True(t, ok)
	require.Equal(t, "confirmed-node", key)
}

type errTest string

func (e errTest) Error() string { return string(e) }
