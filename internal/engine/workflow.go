// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/phase"
)

var workflowGVK = schema.GroupVersionKind{
	Group:   "argoproj.io",
	Version: "v1alpha1",
	Kind:    "Workflow",
}

var workflowListGVK = schema.GroupVersionKind{
	Group:   "argoproj.io",
	Version: "v1alpha1",
	Kind:    "WorkflowList",
}

func newWorkflowObject() *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(workflowGVK)
	return u
}

// CreateWorkflow submits doc to the engine and returns the concrete name the
// engine assigned from doc.Metadata.GenerateName. A name-generation failure
// (an empty name on a successful create) is surfaced as an internal error,
// since a workflow with no discoverable identity cannot be tracked.
func (c *Client) CreateWorkflow(ctx context.Context, namespace string, doc *manifest.Workflow) (string, error) {
	raw, err := toUnstructured(doc)
	if err != nil {
		return "", fmt.Errorf("engine: encode workflow document: %w", err)
	}
	raw.SetGroupVersionKind(workflowGVK)
	raw.SetNamespace(namespace)

	if err := c.ctrl.Create(ctx, raw); err != nil {
		return "", fmt.Errorf("engine: create workflow: %w", err)
	}

	name := raw.GetName()
	if name == "" {
		return "", fmt.Errorf("engine: workflow created with no assigned name")
	}
	return name, nil
}

// WorkflowStatus is a workflow's current status document reduced to the
// shape the Phase Resolver consumes, along with the raw
// `message` field (used when no pod logs are available) and start/finish
// timestamps as RFC3339 strings (empty if unset).
type WorkflowStatus struct {
	Phase      *phase.Status
	Message    string
	StartedAt  string
	FinishedAt string
}

// GetWorkflowStatus returns ErrNotFound-compatible apierrors.IsNotFound
// errors unchanged so callers can distinguish "gone" from other failures.
func (c *Client) GetWorkflowStatus(ctx context.Context, namespace, name string) (*WorkflowStatus, error) {
	obj := newWorkflowObject()
	if err := c.ctrl.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, obj); err != nil {
		return nil, err
	}
	return parseWorkflowStatus(obj)
}

// GetWorkflowNodes returns the raw `status.nodes` map of a workflow by
// name, unreduced, or nil when the workflow has no status or node map yet.
func (c *Client) GetWorkflowNodes(ctx context.Context, namespace, name string) (map[string]interface{}, error) {
	obj := newWorkflowObject()
	if err := c.ctrl.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, obj); err != nil {
		return nil, err
	}
	status, _, err := unstructured.NestedMap(obj.Object, "status")
	if err != nil || status == nil {
		return nil, nil
	}
	nodes, _, err := unstructured.NestedMap(status, "nodes")
	if err != nil {
		return nil, nil
	}
	return nodes, nil
}

// DeleteWorkflow deletes the named workflow custom resource. A not-found
// response is treated as success, per the spec's delete-tolerance policy.
func (c *Client) DeleteWorkflow(ctx context.Context, namespace, name string) error {
	obj := newWorkflowObject()
	obj.SetNamespace(namespace)
	obj.SetName(name)
	if err := c.ctrl.Delete(ctx, obj); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("engine: delete workflow %s: %w", name, err)
	}
	return nil
}

func toUnstructured(doc *manifest.Workflow) (*unstructured.Unstructured, error) {
	m, err := runtimeToMap(doc)
	if err != nil {
		return nil, err
	}
	return &unstructured.Unstructured{Object: m}, nil
}

func parseWorkflowStatus(obj *unstructured.Unstructured) (*WorkflowStatus, error) {
	statusMap, found, err := unstructured.NestedMap(obj.Object, "status")
	if err != nil {
		return nil, fmt.Errorf("engine: parse workflow status: %w", err)
	}
	out := &WorkflowStatus{Phase: &phase.Status{}}
	if !found || statusMap == nil {
		return out, nil
	}

	if p, ok := statusMap["phase"].(string); ok {
		out.Phase.Phase = phase.Phase(p)
	}
	if m, ok := statusMap["message"].(string); ok {
		out.Message = m
	}
	if s, ok := statusMap["startedAt"].(string); ok {
		out.StartedAt = s
	}
	if f, ok := statusMap["finishedAt"].(string); ok {
		out.FinishedAt = f
	}

	nodes, ok := statusMap["nodes"].(map[string]interface{})
	if !ok {
		return out, nil
	}
	out.Phase.Nodes = make(map[string]phase.Node, len(nodes))
	for id, raw := range nodes {
		nodeMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var n phase.Node
		if t, ok := nodeMap["type"].(string); ok {
			n.Type = phase.NodeType(t)
		}
		if p, ok := nodeMap["phase"].(string); ok {
			n.Phase = phase.Phase(p)
		}
		if d, ok := nodeMap["displayName"].(string); ok {
			n.DisplayName = d
		}
		if tn, ok := nodeMap["templateName"].(string); ok {
			n.TemplateName = tn
		}
		out.Phase.Nodes[id] = n
	}
	return out, nil
}
