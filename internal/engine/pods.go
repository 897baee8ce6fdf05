// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// WorkflowOwnerLabel is the pod label the engine attaches to every pod it
// schedules for a given workflow.
const WorkflowOwnerLabel = "workflows.argoproj.io/workflow"

// MainContainerName is the container name whose logs the log pipeline
// tails.
const MainContainerName = "main"

// ListPodsForWorkflow returns every pod carrying the workflow-owner label
// for workflowID.
func (c *Client) ListPodsForWorkflow(ctx context.Context, namespace, workflowID string) ([]corev1.Pod, error) {
	list, err := c.typed.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", WorkflowOwnerLabel, workflowID),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: list pods for workflow %s: %w", workflowID, err)
	}
	return list.Items, nil
}

// TailLogs reads up to tailLines of the named container's log, most recent
// lines last.
func (c *Client) TailLogs(ctx context.Context, namespace, podName, container string, tailLines int64) (string, error) {
	req := c.typed.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: container,
		TailLines: &tailLines,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: open log stream for pod %s: %w", podName, err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", fmt.Errorf("engine: read log stream for pod %s: %w", podName, err)
	}
	return buf.String(), nil
}

// CreatePod creates pod in namespace and returns the created object.
func (c *Client) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	created, err := c.typed.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("engine: create pod %s: %w", pod.Name, err)
	}
	return created, nil
}

// GetPod fetches a pod by name.
func (c *Client) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	pod, err := c.typed.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return pod, nil
}

// DeletePod deletes a pod by name; not-found is treated as success.
func (c *Client) DeletePod(ctx context.Context, namespace, name string) error {
	err := c.typed.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("engine: delete pod %s: %w", name, err)
	}
	return nil
}

// ExecResult carries the captured output of a one-shot exec call.
type ExecResult struct {
	Stdout string
	Stderr string
}

// Exec runs command inside container of podName and captures stdout/stderr.
// It is the transport the helper pod manager uses to run base64-wrapped
// shell scripts without spawning a pod per operation.
func (c *Client) Exec(ctx context.Context, namespace, podName, container string, command []string) (*ExecResult, error) {
	req := c.typed.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(namespace).
		SubResource("exec")

	req.VersionedParams(&corev1.PodExecOptions{
		Container: container,
		Command:   command,
		Stdin:     false,
		Stdout:    true,
		Stderr:    true,
		TTY:       false,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("engine: build exec executor for pod %s: %w", podName, err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return result, fmt.Errorf("engine: exec in pod %s: %w", podName, err)
	}
	return result, nil
}
