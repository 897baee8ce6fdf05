// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package helperpod

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/pyforge/controlplane/internal/engine"
)

type fakeClient struct {
	pods map[string]*corev1.Pod

	execScript  func(command []string) (*engine.ExecResult, error)
	execCalls   int
	createCalls int
	deleteCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{pods: map[string]*corev1.Pod{}}
}

func (f *fakeClient) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	f.createCalls++
	p := pod.DeepCopy()
	p.Status.ContainerStatuses = []corev1.ContainerStatus{{Name: containerName, Ready: true}}
	f.pods[pod.Name] = p
	return p, nil
}

func (f *fakeClient) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	p, ok := f.pods[name]
	if !ok {
		return nil, apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, name)
	}
	return p, nil
}

func (f *fakeClient) DeletePod(ctx context.Context, namespace, name string) error {
	f.deleteCalls++
	delete(f.pods, name)
	return nil
}

func (f *fakeClient) Exec(ctx context.Context, namespace, podName, container string, command []string) (*engine.ExecResult, error) {
	f.execCalls++
	if f.execScript != nil {
		return f.execScript(command)
	}
	return &engine.ExecResult{}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	mgr := &Manager{engine: fc, namespace: "pyforge", helperImage: "busybox:stable"}
	return mgr, fc
}

func TestStartCreatesPodWhenAbsent(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))
	require.Equal(t, 1, fc.createCalls)
	_, ok := fc.pods[PodName]
	require.True(t, ok)
}

func TestStartReusesExistingPod(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Start(context.Background()))
	require.Equal(t, 1, fc.createCalls)
}

func TestExecScriptRetriesOnceAfterRecreate(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))

	attempts := 0
	fc.execScript = func(command []string) (*engine.ExecResult, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("exec failed: broken pipe")
		}
		return &engine.ExecResult{Stdout: "ok"}, nil
	}

	result, err := mgr.execScript(context.Background(), "echo hi")
	require.NoError(t, err)
	require.Equal(t, "ok", result.Stdout)
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, fc.deleteCalls)
}

func TestExecScriptFailsWhenRetryAlsoFails(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))

	fc.execScript = func(command []string) (*engine.ExecResult, error) {
		return nil, errors.New("exec failed: connection refused")
	}

	_, err := mgr.execScript(context.Background(), "echo hi")
	require.Error(t, err)
}

func TestValidatePathRejectsOutsideResultMount(t *testing.T) {
	_, err := validatePath("/etc/passwd")
	require.Error(t, err)

	_, err = validatePath("/mnt/results/../../etc/passwd")
	require.Error(t, err)
}

func TestValidatePathAcceptsResultMountAndAlias(t *testing.T) {
	p, err := validatePath("/mnt/results/task-1/output.json")
	require.NoError(t, err)
	require.Equal(t, "/mnt/results/task-1/output.json", p)

	p, err = validatePath("/mnt/other-root/file.txt")
	require.NoError(t, err)
	require.Equal(t, "/mnt/other-root/file.txt", p)
}

func TestListParsesNDJSONEntries(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))

	fc.execScript = func(command []string) (*engine.ExecResult, error) {
		return &engine.ExecResult{Stdout: `{"id":"/mnt/results/a","name":"a","type":"file","size":10,"mtime":100}
{"id":"/mnt/results/b","name":"b","type":"folder","size":0,"mtime":200}
`}, nil
	}

	entries, err := mgr.List(context.Background(), "/mnt/results")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Name)
	require.Equal(t, "folder", entries[1].Type)
}

func TestReadDecodesTextContent(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))

	fc.execScript = func(command []string) (*engine.ExecResult, error) {
		return &engine.ExecResult{Stdout: base64.StdEncoding.EncodeToString([]byte("hello world"))}, nil
	}

	content, err := mgr.Read(context.Background(), "/mnt/results/a.txt")
	require.NoError(t, err)
	require.Equal(t, "text", content.Encoding)
	require.Equal(t, "hello world", string(content.Bytes))
}

func TestUploadReturnsNameFromScript(t *testing.T) {
	mgr, fc := newTestManager(t)
	require.NoError(t, mgr.Start(context.Background()))

	fc.execScript = func(command []string) (*engine.ExecResult, error) {
		return &engine.ExecResult{Stdout: "report_1.csv"}, nil
	}

	name, err := mgr.Upload(context.Background(), "/mnt/results", "report.csv", []byte("a,b,c"))
	require.NoError(t, err)
	require.Equal(t, "report_1.csv", name)
}
