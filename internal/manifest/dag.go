// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"

	"github.com/pyforge/controlplane/internal/bootstrap"
)

// Step is one node of a Flow definition.
type Step struct {
	ID               string
	Name             string
	PythonCode       string
	PythonDeps       string
	RequirementsFile string
	SystemDeps       string
}

// Edge is a directed dependency: Target runs only after Source completes.
type Edge struct {
	Source string
	Target string
}

// FlowSpec is the input to SynthesizeFlow.
type FlowSpec struct {
	Namespace string
	Steps     []Step
	Edges     []Edge
	UseCache  bool
}

// ErrCyclic is returned by SynthesizeFlow when the step graph contains a
// cycle.
var ErrCyclic = fmt.Errorf("manifest: cyclic flow")

// SynthesizeFlow builds a multi-template DAG workflow document (C3b). It
// validates that every edge endpoint names a declared step and that the
// induced graph is acyclic before synthesizing any template.
func (s *Synthesizer) SynthesizeFlow(spec FlowSpec) (*Workflow, error) {
	stepByID := make(map[string]Step, len(spec.Steps))
	for _, st := range spec.Steps {
		stepByID[st.ID] = st
	}

	for _, e := range spec.Edges {
		if _, ok := stepByID[e.Source]; !ok {
			return nil, fmt.Errorf("manifest: edge references undeclared step %q", e.Source)
		}
		if _, ok := stepByID[e.Target]; !ok {
			return nil, fmt.Errorf("manifest: edge references undeclared step %q", e.Target)
		}
	}

	if err := detectCycle(spec.Steps, spec.Edges); err != nil {
		return nil, err
	}

	wf := newWorkflow(FlowNamePrefix, spec.Namespace)
	wf.Spec.Entrypoint = "dag"

	anySystemDeps := false
	for _, st := range spec.Steps {
		if hasSystemDeps(st.SystemDeps) {
			anySystemDeps = true
			break
		}
	}
	wf.Spec.Volumes = volumesFor(spec.UseCache, anySystemDeps)

	dependenciesOf := make(map[string][]string, len(spec.Steps))
	for _, e := range spec.Edges {
		dependenciesOf[e.Target] = append(dependenciesOf[e.Target], e.Source)
	}

	templates := make([]Template, 0, len(spec.Steps)+1)
	dagTasks := make([]DAGTask, 0, len(spec.Steps))
	for _, st := range spec.Steps {
		dep := bootstrap.Spec{
			PythonDeps:       st.PythonDeps,
			RequirementsFile: st.RequirementsFile,
			SystemDeps:       st.SystemDeps,
			UseCache:         spec.UseCache,
		}
		extraEnv := []EnvVar{
			{Name: bootstrap.EnvStepID, Value: st.ID},
			{Name: "STEP_NAME", Value: st.Name},
		}
		templates = append(templates, s.buildTemplate(TemplateNameForStep(st.ID), dep, st.PythonCode, extraEnv))

		dagTasks = append(dagTasks, DAGTask{
			Name:         st.ID,
			Template:     TemplateNameForStep(st.ID),
			Dependencies: dependenciesOf[st.ID],
		})
	}

	templates = append(templates, Template{
		Name: "dag",
		DAG:  &DAGTemplate{Tasks: dagTasks},
	})
	wf.Spec.Templates = templates

	return wf, nil
}

// TemplateNameForStep derives the per-step template name a Flow step
// compiles to. Exported so the log pipeline's node-to-step reconciliation
// (spec's third matching strategy) can recognize a node's templateName
// without duplicating the naming rule.
func TemplateNameForStep(stepID string) string {
	return "step-" + stepID
}

// detectCycle runs a depth-first search with an explicit recursion stack
// over the graph induced by edges, returning ErrCyclic if any step is
// reachable from itself.
func detectCycle(steps []Step, edges []Edge) error {
	adjacency := make(map[string][]string, len(steps))
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return ErrCyclic
		}
		state[id] = visiting
		for _, next := range adjacency[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, st := range steps {
		if state[st.ID] == unvisited {
			if err := visit(st.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
