// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap builds the bash source embedded in a workflow template
// when a task carries Python or system dependencies. The script provisions
// an isolated virtual environment, installs dependencies, optionally layers
// a portable Nix shell for system packages, and finally runs the user's
// code.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
)

// Spec describes the dependency inputs for one workflow step's bootstrap
// script. PythonDeps and RequirementsFile are mutually exclusive in effect:
// when RequirementsFile is non-empty it wins and PythonDeps is ignored, the
// same silent precedence the original Python backend used.
type Spec struct {
	PythonDeps       string
	RequirementsFile string
	SystemDeps       string
	UseCache         bool
}

// HasDeps reports whether spec carries any dependency, which is exactly the
// condition the Manifest Synthesizer uses to decide between a script
// template (bootstrap script) and a bare container template.
func (s Spec) HasDeps() bool {
	return strings.TrimSpace(s.PythonDeps) != "" ||
		strings.TrimSpace(s.RequirementsFile) != "" ||
		strings.TrimSpace(s.SystemDeps) != ""
}

// Denylisted shell metacharacters. A dependency string containing any of
// these is rejected at the validation boundary before it ever reaches a
// bootstrap script, matching the original backend's ad hoc check.
var denylist = []string{";", "&&", "||", "`", "$("}

// maxFieldLength bounds each dependency field. The original backend had no
// such cap; it's added here because an unbounded string embedded in a
// generated manifest is an easy way to blow past the engine's object size
// limit.
const maxFieldLength = 8192

// ErrInvalidDependency is the sentinel every Validate rejection wraps, so
// callers can distinguish a dependency-spec validation failure from any
// other error without parsing message text.
var ErrInvalidDependency = errors.New("bootstrap: invalid dependency spec")

// Validate rejects dependency strings containing shell metacharacters that
// could escape the single-quoted / environment-variable context the
// bootstrap script confines them to, and strings long enough to risk
// exceeding the engine's manifest size limit.
func Validate(pythonDeps, requirementsFile, systemDeps string) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"python_deps", pythonDeps},
		{"requirements_file", requirementsFile},
		{"system_deps", systemDeps},
	} {
		if len(field.value) > maxFieldLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidDependency, field.name, maxFieldLength)
		}
		for _, tok := range denylist {
			if strings.Contains(field.value, tok) {
				return fmt.Errorf("%w: %s contains disallowed shell metacharacter %q", ErrInvalidDependency, field.name, tok)
			}
		}
	}
	if strings.TrimSpace(pythonDeps) != "" && strings.TrimSpace(requirementsFile) != "" {
		return fmt.Errorf("%w: python_deps and requirements_file are mutually exclusive", ErrInvalidDependency)
	}
	return nil
}

// EnvPythonCode, EnvPythonDeps, and so on are the environment variable
// names the synthesized workflow template sets; the bootstrap script reads
// them by reference and never receives dependency text as a literal
// positional argument.
const (
	EnvPythonCode       = "PYTHON_CODE"
	EnvPythonDeps       = "PYTHON_DEPS"
	EnvRequirementsFile = "REQUIREMENTS_FILE"
	EnvSystemDeps       = "SYSTEM_DEPS"
	EnvArgoWorkflowName = "ARGO_WORKFLOW_NAME"
	EnvStepID           = "STEP_ID"
)

// UVCacheDir is the mount point for the Python package cache volume.
const UVCacheDir = "/root/.cache/uv"

// NixStoreDir is the mount point for the shared Nix store cache volume.
const NixStoreDir = "/root/.nix-portable/nix/store"

// Build renders the bootstrap script for spec. The returned script always
// reads dependency text from environment variables set by the workflow
// template (see Env* constants); it never interpolates the caller-supplied
// strings directly into shell syntax.
func Build(spec Spec) string {
	return build(spec, nil)
}

// build renders the bootstrap script, invoking preExec (if non-nil) after
// dependency installation and before the final exec line. BuildStep uses
// this hook to inject the step helper module.
func build(spec Spec, preExec func(b *strings.Builder)) string {
	var b strings.Builder

	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n\n")

	if strings.TrimSpace(spec.SystemDeps) != "" {
		writeNixSection(&b, spec)
	}

	writeUVInstallSection(&b, spec)
	writeVenvSection(&b)
	writeDepsInstallSection(&b, spec)

	if preExec != nil {
		preExec(&b)
	}

	writeExecSection(&b, spec)

	return b.String()
}

func writeNixSection(b *strings.Builder, spec Spec) {
	b.WriteString("if ! command -v nix-portable >/dev/null 2>&1; then\n")
	b.WriteString("  echo \"nix-portable not found on PATH\" >&2\n")
	b.WriteString("  exit 1\n")
	b.WriteString("fi\n\n")

	if spec.UseCache {
		fmt.Fprintf(b, "export NP_STORE=\"%s\"\n", NixStoreDir)
		b.WriteString("mkdir -p \"$NP_STORE\"\n")
		b.WriteString("ln -sfn \"$NP_STORE\" /nix/store 2>/dev/null || true\n\n")

		b.WriteString("NIX_DB_DIR=\"$HOME/.nix-portable/nix/var/nix/db\"\n")
		b.WriteString("if [ ! -e \"$NIX_DB_DIR/db.sqlite\" ]; then\n")
		b.WriteString("  mkdir -p \"$NIX_DB_DIR\"\n")
		b.WriteString("  for candidate in \"$NP_STORE/../var/nix/db/db.sqlite\" \"$HOME/.cache/nix-portable/db.sqlite\"; do\n")
		b.WriteString("    if [ -e \"$candidate\" ]; then\n")
		b.WriteString("      ln -sfn \"$candidate\" \"$NIX_DB_DIR/db.sqlite\"\n")
		b.WriteString("      break\n")
		b.WriteString("    fi\n")
		b.WriteString("  done\n")
		b.WriteString("fi\n\n")

		b.WriteString("NIX_PKG_COUNT=$(find \"$NP_STORE\" -maxdepth 1 -mindepth 1 2>/dev/null | wc -l)\n")
		b.WriteString("echo \"[NIX CACHE] ${NIX_PKG_COUNT} packages present in store before install\"\n\n")
	}
}

func writeUVInstallSection(b *strings.Builder, spec Spec) {
	b.WriteString("if ! command -v uv >/dev/null 2>&1; then\n")
	b.WriteString("  pip install --quiet uv\n")
	b.WriteString("fi\n\n")

	if spec.UseCache {
		fmt.Fprintf(b, "export UV_CACHE_DIR=\"%s\"\n", UVCacheDir)
		b.WriteString("mkdir -p \"$UV_CACHE_DIR\"\n")
		b.WriteString("UV_CACHE_COUNT=$(find \"$UV_CACHE_DIR\" -maxdepth 2 -mindepth 2 2>/dev/null | wc -l)\n")
		b.WriteString("echo \"[UV CACHE] ${UV_CACHE_COUNT} entries present in cache before install\"\n\n")
	}
}

func writeVenvSection(b *strings.Builder) {
	fmt.Fprintf(b, "VENV_DIR=\"/tmp/venv-${%s}\"\n", EnvArgoWorkflowName)
	b.WriteString("uv venv \"$VENV_DIR\"\n")
	b.WriteString("source \"$VENV_DIR/bin/activate\"\n\n")
}

func writeDepsInstallSection(b *strings.Builder, spec Spec) {
	switch {
	case strings.TrimSpace(spec.RequirementsFile) != "":
		fmt.Fprintf(b, "printf '%%s' \"$%s\" > /tmp/requirements.txt\n", EnvRequirementsFile)
		b.WriteString("uv pip install -r /tmp/requirements.txt\n\n")
	case strings.TrimSpace(spec.PythonDeps) != "":
		fmt.Fprintf(b, "echo \"$%s\" | tr ',' ' ' | xargs -r uv pip install\n\n", EnvPythonDeps)
	}

	if spec.UseCache && (strings.TrimSpace(spec.RequirementsFile) != "" || strings.TrimSpace(spec.PythonDeps) != "") {
		b.WriteString("UV_CACHE_COUNT_AFTER=$(find \"$UV_CACHE_DIR\" -maxdepth 2 -mindepth 2 2>/dev/null | wc -l)\n")
		b.WriteString("echo \"[UV CACHE] ${UV_CACHE_COUNT_AFTER} entries present in cache after install\"\n\n")
	}
}

func writeExecSection(b *strings.Builder, spec Spec) {
	if strings.TrimSpace(spec.SystemDeps) != "" {
		fmt.Fprintf(b, "nix-portable nix-shell -p $%s --run 'python -c \"$%s\"'\n", EnvSystemDeps, EnvPythonCode)
		return
	}
	fmt.Fprintf(b, "python -c \"$%s\"\n", EnvPythonCode)
}
