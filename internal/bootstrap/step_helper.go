// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"fmt"
	"strings"
)

// StepHelperPath is the path the DAG step helper module is written to
// before the user's code runs; it is placed on PYTHONPATH rather than
// installed as a package.
const StepHelperPath = "/tmp/step_helpers.py"

// stepHelperSource is the content of StepHelperPath. It exposes
// read_step_output/write_step_output, reading the executing step's id from
// the STEP_ID environment variable and exchanging values as JSON files
// under one directory per step on the shared result volume.
const stepHelperSource = `import json
import os
from pathlib import Path

_MOUNT = os.environ.get("PYFORGE_RESULT_MOUNT", "/mnt/results")


def write_step_output(data, output_name="output"):
    step_id = os.environ["STEP_ID"]
    step_dir = Path(_MOUNT) / step_id
    step_dir.mkdir(parents=True, exist_ok=True)
    out_path = step_dir / f"{output_name}.json"
    out_path.write_text(json.dumps(data))


def read_step_output(step_id, output_name="output"):
    out_path = Path(_MOUNT) / step_id / f"{output_name}.json"
    if not out_path.exists():
        return None
    return json.loads(out_path.read_text())
`

// BuildStep renders the bootstrap script for one DAG step. It extends
// Build's output with the step helper module and a PYTHONPATH that puts it
// ahead of the user's code, so read_step_output/write_step_output are
// importable without installation.
func BuildStep(spec Spec) string {
	return build(spec, func(b *strings.Builder) {
		fmt.Fprintf(b, "cat > %s <<'PYFORGE_STEP_HELPER_EOF'\n%s\nPYFORGE_STEP_HELPER_EOF\n", StepHelperPath, stepHelperSource)
		b.WriteString("export PYTHONPATH=\"/tmp:${PYTHONPATH:-}\"\n\n")
	})
}
