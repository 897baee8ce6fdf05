// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/phase"
)

func newTestClient(t *testing.T, initObjs ...client.Object) *Client {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, metav1.AddMetaToScheme(scheme))
	scheme.AddKnownTypeWithName(workflowGVK, &unstructured.Unstructured{})
	scheme.AddKnownTypeWithName(workflowListGVK, &unstructured.UnstructuredList{})

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(initObjs...).Build()
	return &Client{ctrl: c, namespace: "workflows-ns"}
}

func testSynthesizer() *manifest.Synthesizer {
	return manifest.New("python:3.12-slim", "ghcr.io/pyforge/nix-runner:latest")
}

func TestCreateWorkflow_ReturnsGeneratedName(t *testing.T) {
	c := newTestClient(t)
	doc, err := testSynthesizer().SynthesizeTask(manifest.TaskSpec{Namespace: "workflows-ns", PythonCode: "print(1)"})
	require.NoError(t, err)

	name, err := c.CreateWorkflow(context.Background(), "workflows-ns", doc)
	require.NoError(t, err)
	assert.Contains(t, name, manifest.TaskNamePrefix)
}

func TestGetWorkflowStatus_EmptyStatusResolvesPending(t *testing.T) {
	obj := newWorkflowObject()
	obj.SetNamespace("workflows-ns")
	obj.SetName("python-job-abc123")

	c := newTestClient(t, obj)
	status, err := c.GetWorkflowStatus(context.Background(), "workflows-ns", "python-job-abc123")
	require.NoError(t, err)
	assert.Equal(t, phase.Pending, phase.Resolve(status.Phase))
}

func TestDeleteWorkflow_NotFoundIsSuccess(t *testing.T) {
	c := newTestClient(t)
	err := c.DeleteWorkflow(context.Background(), "workflows-ns", "does-not-exist")
	require.NoError(t, err)
}
