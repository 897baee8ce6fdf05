// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine talks to the Kubernetes cluster that hosts the workflow
// engine: custom-resource CRUD against the workflows.argoproj.io API, plus
// the typed pod/PVC/exec surface used by the log pipeline and the helper
// pod manager.
package engine

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ClusterType selects how the in-cluster vs. external REST config is
// resolved, mirroring the cluster-type configuration knob.
type ClusterType string

const (
	ClusterTypeAuto     ClusterType = "auto"
	ClusterTypeKind     ClusterType = "kind"
	ClusterTypeEKS      ClusterType = "eks"
	ClusterTypeExternal ClusterType = "external"
)

// Client bundles the two Kubernetes access paths this package needs: an
// unstructured controller-runtime client for the workflow custom resource,
// and a typed clientset for pods, PVCs, logs, and exec.
type Client struct {
	ctrl       client.Client
	typed      kubernetes.Interface
	restConfig *rest.Config
	namespace  string
}

// Config configures the cluster connection.
type Config struct {
	Namespace      string
	ClusterType    ClusterType
	KubeconfigPath string
}

// NewClient builds a Client. When KubeconfigPath is empty it assumes an
// in-cluster configuration (ctrl.GetConfig falls back to in-cluster when no
// kubeconfig is found); otherwise it loads the given kubeconfig file, which
// is the out-of-cluster path exercised in development and against kind.
func NewClient(cfg Config) (*Client, error) {
	restConfig, err := resolveRESTConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve kube config: %w", err)
	}
	applyClusterTypeHostRewrite(restConfig, cfg.ClusterType)

	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("engine: register core/v1 scheme: %w", err)
	}

	ctrlClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("engine: build controller-runtime client: %w", err)
	}

	typed, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("engine: build typed clientset: %w", err)
	}

	return &Client{
		ctrl:       ctrlClient,
		typed:      typed,
		restConfig: restConfig,
		namespace:  cfg.Namespace,
	}, nil
}

func resolveRESTConfig(cfg Config) (*rest.Config, error) {
	if cfg.KubeconfigPath == "" {
		return ctrl.GetConfig()
	}
	return clientcmd.BuildConfigFromFlags("", cfg.KubeconfigPath)
}

// applyClusterTypeHostRewrite adjusts the API server host for local
// development clusters whose kubeconfig points at a loopback address that
// isn't reachable from inside the control plane's own container. kind
// clusters are the only case this core runs against locally; eks and
// external are reached directly, auto leaves the host untouched.
func applyClusterTypeHostRewrite(restConfig *rest.Config, clusterType ClusterType) {
	if clusterType != ClusterTypeKind {
		return
	}
	for _, loopback := range []string{"127.0.0.1", "localhost"} {
		if strings.Contains(restConfig.Host, loopback) {
			restConfig.Host = strings.NewReplacer(
				"127.0.0.1", "host.docker.internal",
				"localhost", "host.docker.internal",
			).Replace(restConfig.Host)
			return
		}
	}
}

// Namespace returns the workflow namespace this client operates against.
func (c *Client) Namespace() string {
	return c.namespace
}
