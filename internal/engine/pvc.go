// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CheckPVCBound returns nil if the named PVC exists and is Bound, and a
// descriptive error otherwise (missing, pending, or any other phase). The
// manifest synthesizer's preconditions are enforced by calling this for
// every name returned by manifest.RequiredPVCs before submission.
func (c *Client) CheckPVCBound(ctx context.Context, namespace, name string) error {
	pvc, err := c.typed.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("engine: required PVC %q does not exist in namespace %q", name, namespace)
	}
	if err != nil {
		return fmt.Errorf("engine: get PVC %q: %w", name, err)
	}
	if pvc.Status.Phase != corev1.ClaimBound {
		return fmt.Errorf("engine: PVC %q is not bound (phase=%s)", name, pvc.Status.Phase)
	}
	return nil
}

// CheckPVCsBound checks every name in names and returns the first error
// encountered, if any.
func (c *Client) CheckPVCsBound(ctx context.Context, namespace string, names []string) error {
	for _, name := range names {
		if err := c.CheckPVCBound(ctx, namespace, name); err != nil {
			return err
		}
	}
	return nil
}
