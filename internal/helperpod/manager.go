// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package helperpod is the Volume Helper Pod Manager (C6): a long-lived
// singleton pod mounting the shared result volume, used to serve
// latency-optimized list/read/preview/copy/upload operations without
// spawning a pod per call.
package helperpod

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/pyforge/controlplane/internal/engine"
	"github.com/pyforge/controlplane/internal/manifest"
)

// PodName is the stable name the manager creates its singleton pod under.
// Stable across restarts and recreations, so operations never need to
// discover an identity before they can run.
const PodName = "pyforge-result-volume-helper"

const containerName = "helper"

// readyPollInterval and readyTimeout bound how long Start waits for the
// pod's container to report ready.
const (
	readyPollInterval = 2 * time.Second
	readyTimeout      = 60 * time.Second
)

// client is the subset of *engine.Client the manager depends on, narrowed
// to an interface so tests can substitute a fake.
type client interface {
	CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error)
	DeletePod(ctx context.Context, namespace, name string) error
	Exec(ctx context.Context, namespace, podName, container string, command []string) (*engine.ExecResult, error)
}

// Manager owns the singleton helper pod's lifecycle and every exec-backed
// operation run against it.
type Manager struct {
	engine      client
	namespace   string
	helperImage string

	mu    sync.Mutex
	ready bool
}

// New builds a Manager. helperImage should carry a shell; it never runs
// user code, only the fixed operations below.
func New(engineClient *engine.Client, helperImage string) *Manager {
	return &Manager{
		engine:      engineClient,
		namespace:   engineClient.Namespace(),
		helperImage: helperImage,
	}
}

// Start creates the singleton pod if absent and waits for it to become
// ready. Safe to call at every core startup: an existing pod from a prior
// process is reused rather than recreated.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.engine.GetPod(ctx, m.namespace, PodName); err != nil {
		if err := m.create(ctx); err != nil {
			return err
		}
	}

	ready, err := m.waitReady(ctx)
	if err != nil {
		return err
	}
	m.ready = ready
	if !ready {
		return fmt.Errorf("helperpod: pod %s did not become ready within %s", PodName, readyTimeout)
	}
	return nil
}

func (m *Manager) create(ctx context.Context) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   PodName,
			Labels: map[string]string{"app": "pyforge-helper-pod"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyAlways,
			Volumes: []corev1.Volume{
				{
					Name: "results",
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: manifest.ResultPVCName,
						},
					},
				},
			},
			Containers: []corev1.Container{
				{
					Name:    containerName,
					Image:   m.helperImage,
					Command: []string{"sh", "-c", "while true; do sleep 3600; done"},
					VolumeMounts: []corev1.VolumeMount{
						{Name: "results", MountPath: manifest.ResultMountPath},
					},
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("50m"),
							corev1.ResourceMemory: resource.MustParse("64Mi"),
						},
					},
				},
			},
		},
	}

	if _, err := m.engine.CreatePod(ctx, m.namespace, pod); err != nil {
		return fmt.Errorf("helperpod: create pod %s: %w", PodName, err)
	}
	return nil
}

func (m *Manager) waitReady(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(readyTimeout)
	for {
		pod, err := m.engine.GetPod(ctx, m.namespace, PodName)
		if err == nil && podContainerReady(pod) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

func podContainerReady(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == containerName {
			return cs.Ready
		}
	}
	return false
}

// recreate deletes and recreates the helper pod, then waits for it to
// become ready again — the failure-recovery path used once per failed
// operation.
func (m *Manager) recreate(ctx context.Context) error {
	if err := m.engine.DeletePod(ctx, m.namespace, PodName); err != nil {
		return fmt.Errorf("helperpod: delete pod %s for recreation: %w", PodName, err)
	}
	if err := m.create(ctx); err != nil {
		return err
	}
	ready, err := m.waitReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("helperpod: recreated pod %s did not become ready within %s", PodName, readyTimeout)
	}
	return nil
}

// execScript base64-encodes script to avoid shell-quoting pitfalls with
// large payloads, decodes and runs it in the helper pod, and retries
// exactly once (after a delete+recreate) on failure.
func (m *Manager) execScript(ctx context.Context, script string) (*engine.ExecResult, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	command := []string{"sh", "-c", fmt.Sprintf("echo %s | base64 -d | sh", encoded)}

	result, err := m.engine.Exec(ctx, m.namespace, PodName, containerName, command)
	if err == nil {
		return result, nil
	}

	m.mu.Lock()
	recreateErr := m.recreate(ctx)
	m.mu.Unlock()
	if recreateErr != nil {
		return nil, fmt.Errorf("helperpod: exec failed and recovery failed: %w (original: %v)", recreateErr, err)
	}

	result, err = m.engine.Exec(ctx, m.namespace, PodName, containerName, command)
	if err != nil {
		return nil, fmt.Errorf("helperpod: exec failed after recreate: %w", err)
	}
	return result, nil
}
