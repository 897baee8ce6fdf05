// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func podsClientWithFixtures(t *testing.T, pods ...*corev1.Pod) *Client {
	t.Helper()
	cs := fake.NewSimpleClientset()
	for _, p := range pods {
		_, err := cs.CoreV1().Pods(p.Namespace).Create(context.Background(), p, metav1.CreateOptions{})
		require.NoError(t, err)
	}
	return &Client{typed: cs, namespace: "workflows-ns"}
}

func TestListPodsForWorkflow_FiltersByOwnerLabel(t *testing.T) {
	podMatching := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Name:      "pod-a",
		Namespace: "workflows-ns",
		Labels:    map[string]string{WorkflowOwnerLabel: "python-job-abc"},
	}}
	podOther := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Name:      "pod-b",
		Namespace: "workflows-ns",
		Labels:    map[string]string{WorkflowOwnerLabel: "python-job-xyz"},
	}}

	c := podsClientWithFixtures(t, podMatching, podOther)
	pods, err := c.ListPodsForWorkflow(context.Background(), "workflows-ns", "python-job-abc")
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "pod-a", pods[0].Name)
}

func TestDeletePod_NotFoundIsSuccess(t *testing.T) {
	c := podsClientWithFixtures(t)
	err := c.DeletePod(context.Background(), "workflows-ns", "does-not-exist")
	require.NoError(t, err)
}

func TestGetPod_ReturnsCreatedPod(t *testing.T) {
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "pod-a", Namespace: "workflows-ns"}}
	c := podsClientWithFixtures(t, pod)
	got, err := c.GetPod(context.Background(), "workflows-ns", "pod-a")
	require.NoError(t, err)
	assert.Equal(t, "pod-a", got.Name)
}

func TestCheckPVCBound_MissingClaimFails(t *testing.T) {
	c := podsClientWithFixtures(t)
	err := c.CheckPVCBound(context.Background(), "workflows-ns", "task-results-pvc")
	require.Error(t, err)
}

func TestCheckPVCBound_BoundClaimSucceeds(t *testing.T) {
	cs := fake.NewSimpleClientset()
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "task-results-pvc", Namespace: "workflows-ns"},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimBound},
	}
	_, err := cs.CoreV1().PersistentVolumeClaims("workflows-ns").Create(context.Background(), pvc, metav1.CreateOptions{})
	require.NoError(t, err)

	c := &Client{typed: cs, namespace: "workflows-ns"}
	require.NoError(t, c.CheckPVCBound(context.Background(), "workflows-ns", "task-results-pvc"))
}

func TestCheckPVCBound_PendingClaimFails(t *testing.T) {
	cs := fake.NewSimpleClientset()
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "uv-cache-pvc", Namespace: "workflows-ns"},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimPending},
	}
	_, err := cs.CoreV1().PersistentVolumeClaims("workflows-ns").Create(context.Background(), pvc, metav1.CreateOptions{})
	require.NoError(t, err)

	c := &Client{typed: cs, namespace: "workflows-ns"}
	require.Error(t, c.CheckPVCBound(context.Background(), "workflows-ns", "uv-cache-pvc"))
}
