// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynthesizer() *Synthesizer {
	return New("python:3.12-slim", "ghcr.io/pyforge/nix-runner:latest")
}

func TestSynthesizeTask_NoDeps_ProducesContainerTemplate(t *testing.T) {
	s := newTestSynthesizer()
	wf, err := s.SynthesizeTask(TaskSpec{Namespace: "ns", PythonCode: `print(1+1)`})
	require.NoError(t, err)

	require.Len(t, wf.Spec.Templates, 1)
	tmpl := wf.Spec.Templates[0]
	require.NotNil(t, tmpl.Container)
	assert.Nil(t, tmpl.Script)
	assert.Equal(t, "python:3.12-slim", tmpl.Container.Image)
	assert.Contains(t, tmpl.Container.Args, `python -c "$PYTHON_CODE"`)

	require.Len(t, wf.Spec.Volumes, 1)
	assert.Equal(t, ResultPVCName, wf.Spec.Volumes[0].PersistentVolumeClaim.ClaimName)
	assert.Equal(t, TaskNamePrefix, wf.Metadata.GenerateName)
}

func TestSynthesizeTask_WithDeps_ProducesScriptTemplate(t *testing.T) {
	s := newTestSynthesizer()
	wf, err := s.SynthesizeTask(TaskSpec{
		Namespace:  "ns",
		PythonCode: `print("hi")`,
		PythonDeps: "requests",
		UseCache:   true,
	})
	require.NoError(t, err)

	tmpl := wf.Spec.Templates[0]
	require.NotNil(t, tmpl.Script)
	assert.Equal(t, "python:3.12-slim", tmpl.Script.Image)
	assert.Contains(t, tmpl.Script.Source, "$PYTHON_DEPS")

	var names []string
	for _, v := range wf.Spec.Volumes {
		names = append(names, v.Name)
	}
	assert.Contains(t, names, uvCacheVolumeName)
}

func TestSynthesizeTask_SystemDeps_SelectsNixImage(t *testing.T) {
	s := newTestSynthesizer()
	wf, err := s.SynthesizeTask(TaskSpec{
		Namespace:  "ns",
		PythonCode: `print("hi")`,
		SystemDeps: "gcc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/pyforge/nix-runner:latest", wf.Spec.Templates[0].Script.Image)
	assert.Contains(t, wf.Spec.Templates[0].Script.Source, "nix-shell -p $SYSTEM_DEPS")
}

func TestSynthesizeTask_RejectsEmptyCode(t *testing.T) {
	s := newTestSynthesizer()
	_, err := s.SynthesizeTask(TaskSpec{Namespace: "ns"})
	require.Error(t, err)
}

func TestRequiredPVCs(t *testing.T) {
	assert.Equal(t, []string{ResultPVCName}, RequiredPVCs(false))
	assert.Equal(t, []string{ResultPVCName, UVCachePVCName, NixStorePVCName}, RequiredPVCs(true))
}

func TestSynthesizeFlow_LinearChain(t *testing.T) {
	s := newTestSynthesizer()
	wf, err := s.SynthesizeFlow(FlowSpec{
		Namespace: "ns",
		Steps: []Step{
			{ID: "a", Name: "A", PythonCode: "pass"},
			{ID: "b", Name: "B", PythonCode: "pass"},
		},
		Edges: []Edge{{Source: "a", Target: "b"}},
	})
	require.NoError(t, err)

	require.Len(t, wf.Spec.Templates, 3) // step-a, step-b, dag
	var dagTmpl *Template
	for i := range wf.Spec.Templates {
		if wf.Spec.Templates[i].Name == "dag" {
			dagTmpl = &wf.Spec.Templates[i]
		}
	}
	require.NotNil(t, dagTmpl)
	require.Len(t, dagTmpl.DAG.Tasks, 2)

	var taskB DAGTask
	for _, task := range dagTmpl.DAG.Tasks {
		if task.Name == "b" {
			taskB = task
		}
	}
	assert.Equal(t, []string{"a"}, taskB.Dependencies)
}

func TestSynthesizeFlow_RejectsCycle(t *testing.T) {
	s := newTestSynthesizer()
	_, err := s.SynthesizeFlow(FlowSpec{
		Namespace: "ns",
		Steps: []Step{
			{ID: "a", PythonCode: "pass"},
			{ID: "b", PythonCode: "pass"},
			{ID: "c", PythonCode: "pass"},
		},
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "a"},
		},
	})
	require.ErrorIs(t, err, ErrCyclic)
}

func TestSynthesizeFlow_RejectsUndeclaredStepReference(t *testing.T) {
	s := newTestSynthesizer()
	_, err := s.SynthesizeFlow(FlowSpec{
		Namespace: "ns",
		Steps:     []Step{{ID: "a", PythonCode: "pass"}},
		Edges:     []Edge{{Source: "a", Target: "ghost"}},
	})
	require.Error(t, err)
}

func TestSynthesizeFlow_StepTemplatesIncludeStepIDEnv(t *testing.T) {
	s := newTestSynthesizer()
	wf, err := s.SynthesizeFlow(FlowSpec{
		Namespace: "ns",
		Steps:     []Step{{ID: "a", Name: "Step A", PythonCode: "pass", PythonDeps: "requests"}},
	})
	require.NoError(t, err)

	tmpl := wf.Spec.Templates[0]
	require.Equal(t, "step-a", tmpl.Name)
	require.NotNil(t, tmpl.Script)

	var foundStepID bool
	for _, e := range tmpl.Script.Env {
		if e.Name == "STEP_ID" && e.Value == "a" {
			foundStepID = true
		}
	}
	assert.True(t, foundStepID)
	assert.Contains(t, tmpl.Script.Source, "def write_step_output")
}

func TestSynthesizeFlow_StepWithNoDepsStillGetsHelperInjected(t *testing.T) {
	s := newTestSynthesizer()
	wf, err := s.SynthesizeFlow(FlowSpec{
		Namespace: "ns",
		Steps:     []Step{{ID: "a", Name: "Step A", PythonCode: "pass"}},
	})
	require.NoError(t, err)

	tmpl := wf.Spec.Templates[0]
	require.Equal(t, "step-a", tmpl.Name)
	require.Nil(t, tmpl.Container)
	require.NotNil(t, tmpl.Script)
	assert.Contains(t, tmpl.Script.Source, "def write_step_output")
	assert.Contains(t, tmpl.Script.Source, "def read_step_output")
}

func TestDetectCycle_SelfLoop(t *testing.T) {
	err := detectCycle([]Step{{ID: "a"}}, []Edge{{Source: "a", Target: "a"}})
	require.ErrorIs(t, err, ErrCyclic)
}

func TestDetectCycle_DAGIsAcyclic(t *testing.T) {
	err := detectCycle(
		[]Step{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]Edge{{Source: "a", Target: "b"}, {Source: "a", Target: "c"}, {Source: "b", Target: "c"}},
	)
	require.NoError(t, err)
}
