// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_EmptyStatus(t *testing.T) {
	assert.Equal(t, Pending, Resolve(nil))
	assert.Equal(t, Pending, Resolve(&Status{}))
}

func TestResolve_EmptyTopLevelPhase(t *testing.T) {
	assert.Equal(t, Pending, Resolve(&Status{Phase: "", Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Running},
	}}))
}

func TestResolve_TerminalPhaseReturnedAsIs(t *testing.T) {
	for _, p := range []Phase{Succeeded, Failed, Error, Cancelled} {
		assert.Equal(t, p, Resolve(&Status{Phase: p}))
	}
}

func TestResolve_Running_AnyPodRunningWins(t *testing.T) {
	got := Resolve(&Status{Phase: Running, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Succeeded},
		"pod-2": {Type: NodeTypePod, Phase: Running},
	}})
	assert.Equal(t, Running, got)
}

func TestResolve_Running_NoPodNodes(t *testing.T) {
	got := Resolve(&Status{Phase: Running, Nodes: map[string]Node{
		"dag-1": {Type: "DAG", Phase: Running},
	}})
	assert.Equal(t, Pending, got)
}

func TestResolve_Running_OnlySucceededPodsIsTransitionalRunning(t *testing.T) {
	got := Resolve(&Status{Phase: Running, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Succeeded},
		"pod-2": {Type: NodeTypePod, Phase: Succeeded},
	}})
	assert.Equal(t, Running, got)
}

func TestResolve_Running_OnlyPendingPodsStaysPending(t *testing.T) {
	got := Resolve(&Status{Phase: Running, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Pending},
	}})
	assert.Equal(t, Pending, got)
}

func TestResolve_Running_MixedPendingAndSucceededTrustsTopLevel(t *testing.T) {
	got := Resolve(&Status{Phase: Running, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Pending},
		"pod-2": {Type: NodeTypePod, Phase: Succeeded},
	}})
	assert.Equal(t, Running, got)
}

func TestResolve_Running_FailedPodTrustsTopLevel(t *testing.T) {
	got := Resolve(&Status{Phase: Running, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Failed},
	}})
	assert.Equal(t, Running, got)
}

func TestResolve_Pending_PromotedByRunningPod(t *testing.T) {
	got := Resolve(&Status{Phase: Pending, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Running},
	}})
	assert.Equal(t, Running, got)
}

func TestResolve_Pending_StaysPendingWithoutRunningPod(t *testing.T) {
	got := Resolve(&Status{Phase: Pending, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Pending},
	}})
	assert.Equal(t, Pending, got)
}

func TestResolve_IsIdempotent(t *testing.T) {
	status := &Status{Phase: Running, Nodes: map[string]Node{
		"pod-1": {Type: NodeTypePod, Phase: Succeeded},
	}}
	first := Resolve(status)
	second := Resolve(&Status{Phase: first, Nodes: status.Nodes})
	assert.Equal(t, first, second)
}

func TestPhase_Terminal(t *testing.T) {
	assert.True(t, Succeeded.Terminal())
	assert.True(t, Failed.Terminal())
	assert.True(t, Error.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Pending.Terminal())
	assert.False(t, Running.Terminal())
}
