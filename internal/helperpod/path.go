// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package helperpod

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pyforge/controlplane/internal/manifest"
)

// ErrInvalidPath marks a rejected path, letting callers distinguish a
// caller-correctable input mistake from an exec or retry failure.
var ErrInvalidPath = errors.New("helperpod: invalid path")

// legacyResultMountAlias is the single parent-mount alias §4.6's path
// policy refers to: the parent directory of manifest.ResultMountPath.
// Paths under either root validate.
const legacyResultMountAlias = "/mnt"

// validatePath rejects any path that does not resolve under the result
// mount or its parent-mount alias, after cleaning "." and ".." segments.
func validatePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	clean := path.Clean(p)
	if !path.IsAbs(clean) {
		clean = path.Join(manifest.ResultMountPath, clean)
	}

	if clean == manifest.ResultMountPath || strings.HasPrefix(clean, manifest.ResultMountPath+"/") {
		return clean, nil
	}
	if clean == legacyResultMountAlias || strings.HasPrefix(clean, legacyResultMountAlias+"/") {
		return clean, nil
	}
	return "", fmt.Errorf("%w: %q lies outside the result mount", ErrInvalidPath, p)
}
