// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pyforge/controlplane/internal/bootstrap"
	"github.com/pyforge/controlplane/internal/controlplane/metrics"
	"github.com/pyforge/controlplane/internal/controlplane/models"
	"github.com/pyforge/controlplane/internal/engine"
	"github.com/pyforge/controlplane/internal/logs"
	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/phase"
	"github.com/pyforge/controlplane/internal/store"
)

// FlowService orchestrates flow CRUD, flow-run creation, and the per-step
// reconciliation the Log Pipeline drives for FlowRuns.
type FlowService struct {
	store       *store.Store
	engine      *engine.Client
	synthesizer *manifest.Synthesizer
	logs        *logs.Pipeline
}

// NewFlowService builds a FlowService over already-constructed collaborators.
func NewFlowService(s *store.Store, e *engine.Client, synth *manifest.Synthesizer, pipeline *logs.Pipeline) *FlowService {
	return &FlowService{store: s, engine: e, synthesizer: synth, logs: pipeline}
}

// CreateFlow validates and persists a new flow definition.
func (s *FlowService) CreateFlow(ctx context.Context, name, description string, def models.FlowDefinition) (*store.Flow, error) {
	if err := validateFlowDefinition(def); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("service: encode flow definition: %w", err)
	}

	id, err := newFlowID()
	if err != nil {
		return nil, fmt.Errorf("service: generate flow id: %w", err)
	}

	return s.store.CreateFlow(ctx, id, name, description, string(encoded))
}

// UpdateFlow validates and overwrites an existing flow's definition.
func (s *FlowService) UpdateFlow(ctx context.Context, id, name, description string, def models.FlowDefinition) (*store.Flow, error) {
	if err := validateFlowDefinition(def); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("service: encode flow definition: %w", err)
	}

	flow, err := s.store.UpdateFlow(ctx, id, name, description, string(encoded))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: flow %s not found", ErrPrecondition, id)
	}
	return flow, err
}

// ListFlows returns every flow.
func (s *FlowService) ListFlows(ctx context.Context) ([]*store.Flow, error) {
	return s.store.ListFlows(ctx)
}

// GetFlow fetches a single flow.
func (s *FlowService) GetFlow(ctx context.Context, id string) (*store.Flow, error) {
	flow, err := s.store.GetFlow(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: flow %s not found", ErrPrecondition, id)
	}
	return flow, err
}

// DeleteFlow removes a flow and, via cascade, every flow run, step run, and
// step log it owns.
func (s *FlowService) DeleteFlow(ctx context.Context, id string) error {
	err := s.store.DeleteFlow(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: flow %s not found", ErrPrecondition, id)
	}
	return err
}

// PreviewManifest decodes and validates a flow definition and synthesizes
// its workflow document without submitting it, for preview-flow-manifest.
func (s *FlowService) PreviewManifest(def models.FlowDefinition, useCache bool) (*manifest.Workflow, error) {
	if err := validateFlowDefinition(def); err != nil {
		return nil, err
	}
	doc, err := s.synthesizer.SynthesizeFlow(toFlowSpec(s.engine.Namespace(), def, useCache))
	if errors.Is(err, manifest.ErrCyclic) {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return doc, err
}

// RunFlow decodes a flow's stored definition, checks PVC preconditions,
// synthesizes and submits a workflow, creates the flow run and its step
// runs, and snapshots the assigned workflow id.
func (s *FlowService) RunFlow(ctx context.Context, flowID string, useCache bool) (*store.FlowRun, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: flow %s not found", ErrPrecondition, flowID)
		}
		return nil, err
	}

	var def models.FlowDefinition
	if err := json.Unmarshal([]byte(flow.Definition), &def); err != nil {
		return nil, fmt.Errorf("service: decode flow %s definition: %w", flowID, err)
	}
	if err := validateFlowDefinition(def); err != nil {
		return nil, err
	}

	if err := s.engine.CheckPVCsBound(ctx, s.engine.Namespace(), manifest.RequiredPVCs(useCache)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	flowRun, err := s.store.CreateFlowRun(ctx, flowID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.FlowRunsSubmitted.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("%w: flow %s already has an active run", ErrConflict, flowID)
		}
		return nil, err
	}

	stepIDs := make([]string, 0, len(def.Steps))
	for _, st := range def.Steps {
		stepIDs = append(stepIDs, st.ID)
	}
	if _, err := s.store.CreateStepRuns(ctx, flowRun.ID, stepIDs); err != nil {
		_ = s.store.MarkFlowRunError(ctx, flowRun.ID)
		metrics.FlowRunsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("service: create step runs for flow run %d: %w", flowRun.ID, err)
	}

	doc, err := s.synthesizer.SynthesizeFlow(toFlowSpec(s.engine.Namespace(), def, useCache))
	if err != nil {
		_ = s.store.MarkFlowRunError(ctx, flowRun.ID)
		if errors.Is(err, manifest.ErrCyclic) {
			metrics.FlowRunsSubmitted.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		metrics.FlowRunsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("service: synthesize manifest for flow run %d: %w", flowRun.ID, err)
	}

	workflowID, err := s.engine.CreateWorkflow(ctx, s.engine.Namespace(), doc)
	if err != nil {
		_ = s.store.MarkFlowRunError(ctx, flowRun.ID)
		metrics.FlowRunsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("service: submit workflow for flow run %d: %w", flowRun.ID, err)
	}

	if err := s.store.SetFlowRunWorkflowID(ctx, flowRun.ID, workflowID); err != nil {
		return nil, fmt.Errorf("service: snapshot flow run %d: %w", flowRun.ID, err)
	}

	metrics.FlowRunsSubmitted.WithLabelValues("started").Inc()
	return s.store.GetFlowRun(ctx, flowRun.ID)
}

// RunStep synthesizes and submits a single step's code as a standalone
// task-shaped workflow, independent of any flow run's DAG submission —
// useful for testing one step in isolation before wiring it into a flow.
// The owning step run's workflow_node_id is set to the new workflow's id.
// Reconciliation matches step runs only against the nodes of the flow run's
// own workflow, so the standalone workflow's phase is not read back into
// the step run.
func (s *FlowService) RunStep(ctx context.Context, flowRunID int64, stepID string, step models.FlowStepInput, useCache bool) (*store.StepRun, error) {
	stepRun, err := s.store.GetStepRunByStepID(ctx, flowRunID, stepID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: step %s not found in flow run %d", ErrPrecondition, stepID, flowRunID)
		}
		return nil, err
	}

	if err := s.engine.CheckPVCsBound(ctx, s.engine.Namespace(), manifest.RequiredPVCs(useCache)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	doc, err := s.synthesizer.SynthesizeTask(manifest.TaskSpec{
		Namespace:        s.engine.Namespace(),
		PythonCode:       step.PythonCode,
		PythonDeps:       step.PythonDeps,
		RequirementsFile: step.RequirementsFile,
		SystemDeps:       step.SystemDeps,
		UseCache:         useCache,
	})
	if err != nil {
		return nil, fmt.Errorf("service: synthesize manifest for step %s: %w", stepID, err)
	}

	workflowID, err := s.engine.CreateWorkflow(ctx, s.engine.Namespace(), doc)
	if err != nil {
		return nil, fmt.Errorf("service: submit workflow for step %s: %w", stepID, err)
	}

	if err := s.store.SetStepRunWorkflowNodeID(ctx, stepRun.ID, workflowID); err != nil {
		return nil, fmt.Errorf("service: snapshot step run %d: %w", stepRun.ID, err)
	}

	return s.store.GetStepRun(ctx, stepRun.ID)
}

// ListFlowRuns returns every run of a flow, most recent first.
func (s *FlowService) ListFlowRuns(ctx context.Context, flowID string) ([]*store.FlowRun, error) {
	return s.store.ListFlowRunsForFlow(ctx, flowID)
}

// GetFlowRun fetches a single flow run, reconciling its phase and its step
// runs' phases against the engine first.
func (s *FlowService) GetFlowRun(ctx context.Context, flowRunID int64) (*store.FlowRun, error) {
	flowRun, err := s.store.GetFlowRun(ctx, flowRunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: flow run %d not found", ErrPrecondition, flowRunID)
		}
		return nil, err
	}
	if err := s.reconcileFlowRun(ctx, flowRun); err != nil {
		return nil, fmt.Errorf("service: reconcile flow run %d: %w", flowRunID, err)
	}
	return s.store.GetFlowRun(ctx, flowRunID)
}

// GetFlowRunLogs reconciles step phases against the engine, then returns
// every step run's persisted log records grouped by step.
func (s *FlowService) GetFlowRunLogs(ctx context.Context, flowRunID int64) (*store.FlowRun, []*store.StepRun, map[int64][]*store.StepLogRecord, error) {
	flowRun, err := s.store.GetFlowRun(ctx, flowRunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: flow run %d not found", ErrPrecondition, flowRunID)
		}
		return nil, nil, nil, err
	}
	if err := s.reconcileFlowRun(ctx, flowRun); err != nil {
		return nil, nil, nil, fmt.Errorf("service: reconcile flow run %d: %w", flowRunID, err)
	}

	stepRuns, err := s.store.ListStepRunsForFlowRun(ctx, flowRunID)
	if err != nil {
		return nil, nil, nil, err
	}

	logsByStep := make(map[int64][]*store.StepLogRecord, len(stepRuns))
	for _, sr := range stepRuns {
		records, err := s.store.GetLogsForStepRun(ctx, sr.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		logsByStep[sr.ID] = records
	}

	return flowRun, stepRuns, logsByStep, nil
}

// reconcileFlowRun asks the engine for the flow run's workflow status,
// applies the Phase Resolver to update the flow run's own phase, and
// delegates to the Log Pipeline for per-step node-to-step reconciliation.
// A flow run with no workflow id yet (synthesis never reached submission)
// has nothing to reconcile against.
func (s *FlowService) reconcileFlowRun(ctx context.Context, flowRun *store.FlowRun) error {
	if flowRun.WorkflowID == "" {
		return nil
	}

	status, err := s.engine.GetWorkflowStatus(ctx, s.engine.Namespace(), flowRun.WorkflowID)
	if err != nil {
		return nil
	}

	resolved := phase.Resolve(status.Phase)
	if resolved != flowRun.Phase {
		startedAt, finishedAt := timestampPtr(status.StartedAt), timestampPtr(status.FinishedAt)
		if err := s.store.UpdateFlowRunPhase(ctx, flowRun.ID, resolved, startedAt, finishedAt); err != nil {
			return fmt.Errorf("update flow run phase: %w", err)
		}
		flowRun.Phase = resolved
	}

	return s.logs.ReconcileStepRuns(ctx, flowRun, status.Phase.Nodes)
}

func timestampPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetFlowRunManifest re-synthesizes a flow run's manifest from its owning
// flow's stored definition. The run's cache setting is not stored, so the
// document is always built with UseCache false and omits the cache volumes
// a cached submission carried.
func (s *FlowService) GetFlowRunManifest(ctx context.Context, flowRunID int64) (*manifest.Workflow, error) {
	flowRun, err := s.store.GetFlowRun(ctx, flowRunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: flow run %d not found", ErrPrecondition, flowRunID)
		}
		return nil, err
	}
	flow, err := s.store.GetFlow(ctx, flowRun.FlowID)
	if err != nil {
		return nil, err
	}

	var def models.FlowDefinition
	if err := json.Unmarshal([]byte(flow.Definition), &def); err != nil {
		return nil, fmt.Errorf("service: decode flow %s definition: %w", flow.ID, err)
	}
	return s.synthesizer.SynthesizeFlow(toFlowSpec(s.engine.Namespace(), def, false))
}

func toFlowSpec(namespace string, def models.FlowDefinition, useCache bool) manifest.FlowSpec {
	steps := make([]manifest.Step, 0, len(def.Steps))
	for _, st := range def.Steps {
		steps = append(steps, manifest.Step{
			ID:               st.ID,
			Name:             st.Name,
			PythonCode:       st.PythonCode,
			PythonDeps:       st.PythonDeps,
			RequirementsFile: st.RequirementsFile,
			SystemDeps:       st.SystemDeps,
		})
	}
	edges := make([]manifest.Edge, 0, len(def.Edges))
	for _, e := range def.Edges {
		edges = append(edges, manifest.Edge{Source: e.Source, Target: e.Target})
	}
	return manifest.FlowSpec{Namespace: namespace, Steps: steps, Edges: edges, UseCache: useCache}
}

func validateFlowDefinition(def models.FlowDefinition) error {
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: flow must declare at least one step", ErrValidation)
	}
	seen := make(map[string]bool, len(def.Steps))
	for _, st := range def.Steps {
		if st.ID == "" {
			return fmt.Errorf("%w: step id must not be empty", ErrValidation)
		}
		if seen[st.ID] {
			return fmt.Errorf("%w: duplicate step id %q", ErrValidation, st.ID)
		}
		seen[st.ID] = true
		if err := bootstrap.Validate(st.PythonDeps, st.RequirementsFile, st.SystemDeps); err != nil {
			return fmt.Errorf("%w: step %s: %v", ErrValidation, st.ID, err)
		}
	}
	for _, e := range def.Edges {
		if !seen[e.Source] {
			return fmt.Errorf("%w: edge references undeclared step %q", ErrValidation, e.Source)
		}
		if !seen[e.Target] {
			return fmt.Errorf("%w: edge references undeclared step %q", ErrValidation, e.Target)
		}
	}
	return nil
}

func newFlowID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "flow-" + hex.EncodeToString(buf), nil
}
