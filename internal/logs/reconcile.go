// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"context"
	"fmt"
	"strings"

	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/phase"
	"github.com/pyforge/controlplane/internal/store"
)

// ReconcileStepRuns maps engine node identifiers back to a FlowRun's step
// runs via the three strategies of §4.5's step-run phase reconciliation,
// tried in order: an exact match of the already-stored workflow_node_id,
// then "<workflow-id>.<step-id>", then a scan of every node's
// templateName/displayName/key suffix against the step id. On first match
// the stored node id is updated so later lookups are direct. Engine phases
// Failed/Error both map to the stored value Failed.
func (p *Pipeline) ReconcileStepRuns(ctx context.Context, flowRun *store.FlowRun, nodes map[string]phase.Node) error {
	stepRuns, err := p.store.ListStepRunsForFlowRun(ctx, flowRun.ID)
	if err != nil {
		return fmt.Errorf("logs: list step runs for flow run %d: %w", flowRun.ID, err)
	}

	for _, sr := range stepRuns {
		nodeID, node, ok := matchNode(nodes, flowRun.WorkflowID, sr)
		if !ok {
			continue
		}

		if sr.WorkflowNodeID != nodeID {
			if err := p.store.SetStepRunWorkflowNodeID(ctx, sr.ID, nodeID); err != nil {
				return fmt.Errorf("logs: set step run %d node id: %w", sr.ID, err)
			}
		}

		mapped := mapStepPhase(node.Phase)
		if mapped == "" || mapped == sr.Phase {
			continue
		}
		if err := p.store.UpdateStepRunPhase(ctx, sr.ID, mapped, nil, nil); err != nil {
			return fmt.Errorf("logs: update step run %d phase: %w", sr.ID, err)
		}
	}
	return nil
}

func matchNode(nodes map[string]phase.Node, workflowID string, sr *store.StepRun) (string, phase.Node, bool) {
	if sr.WorkflowNodeID != "" {
		if n, ok := nodes[sr.WorkflowNodeID]; ok {
			return sr.WorkflowNodeID, n, true
		}
	}

	compositeKey := workflowID + "." + sr.StepID
	if n, ok := nodes[compositeKey]; ok {
		return compositeKey, n, true
	}

	wantTemplate := manifest.TemplateNameForStep(sr.StepID)
	for key, n := range nodes {
		if n.TemplateName == wantTemplate || n.DisplayName == sr.StepID || strings.HasSuffix(key, "."+sr.StepID) {
			return key, n, true
		}
	}

	return "", phase.Node{}, false
}

func mapStepPhase(p phase.Phase) phase.Phase {
	switch p {
	case phase.Failed, phase.Error:
		return phase.Failed
	case phase.Pending, phase.Running, phase.Succeeded, phase.Cancelled:
		return p
	default:
		return ""
	}
}
