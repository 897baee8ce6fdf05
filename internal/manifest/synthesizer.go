// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"strings"

	"github.com/pyforge/controlplane/internal/bootstrap"
)

// Synthesizer builds workflow documents. PythonImage and NixImage are the
// two base images the synthesizer chooses between; NixImage is selected
// whenever a task or step carries system dependencies.
type Synthesizer struct {
	PythonImage string
	NixImage    string
}

// New constructs a Synthesizer with the given base images.
func New(pythonImage, nixImage string) *Synthesizer {
	return &Synthesizer{PythonImage: pythonImage, NixImage: nixImage}
}

// TaskSpec is the input to SynthesizeTask.
type TaskSpec struct {
	Namespace        string
	PythonCode       string
	PythonDeps       string
	RequirementsFile string
	SystemDeps       string
	UseCache         bool
}

// RequiredPVCs returns the PVC names that must exist and be bound before a
// workflow built with the given cache setting can be submitted.
func RequiredPVCs(useCache bool) []string {
	if !useCache {
		return []string{ResultPVCName}
	}
	return []string{ResultPVCName, UVCachePVCName, NixStorePVCName}
}

// SynthesizeTask builds a single-template workflow document for one task
// run (C3a).
func (s *Synthesizer) SynthesizeTask(spec TaskSpec) (*Workflow, error) {
	if strings.TrimSpace(spec.PythonCode) == "" {
		return nil, fmt.Errorf("manifest: python_code is required")
	}

	wf := newWorkflow(TaskNamePrefix, spec.Namespace)
	wf.Spec.Volumes = volumesFor(spec.UseCache, hasSystemDeps(spec.SystemDeps))
	wf.Spec.Entrypoint = "main"

	depSpec := bootstrap.Spec{
		PythonDeps:       spec.PythonDeps,
		RequirementsFile: spec.RequirementsFile,
		SystemDeps:       spec.SystemDeps,
		UseCache:         spec.UseCache,
	}

	tmpl := s.buildTemplate("main", depSpec, spec.PythonCode, nil)
	wf.Spec.Templates = []Template{tmpl}

	return wf, nil
}

// buildTemplate renders one template (container or script) for a single
// piece of Python code plus its dependency spec. extraEnv is appended after
// the standard PYTHON_CODE/dependency variables (used by DAG steps to carry
// STEP_ID/STEP_NAME).
func (s *Synthesizer) buildTemplate(name string, dep bootstrap.Spec, pythonCode string, extraEnv []EnvVar) Template {
	env := []EnvVar{
		{Name: bootstrap.EnvArgoWorkflowName, Value: ArgoWorkflowNamePlaceholder},
		{Name: bootstrap.EnvPythonCode, Value: pythonCode},
	}
	if dep.PythonDeps != "" {
		env = append(env, EnvVar{Name: bootstrap.EnvPythonDeps, Value: dep.PythonDeps})
	}
	if dep.RequirementsFile != "" {
		env = append(env, EnvVar{Name: bootstrap.EnvRequirementsFile, Value: dep.RequirementsFile})
	}
	if dep.SystemDeps != "" {
		env = append(env, EnvVar{Name: bootstrap.EnvSystemDeps, Value: dep.SystemDeps})
	}
	env = append(env, extraEnv...)

	mounts := volumeMountsFor(dep.UseCache, hasSystemDeps(dep.SystemDeps))
	image := s.imageFor(dep.SystemDeps)

	// A DAG step always goes through the script+helper path, even with no
	// declared dependencies, since it may still need to call
	// read_step_output/write_step_output against a predecessor. Only a
	// plain task (extraEnv == nil) with no dependencies gets the bare
	// container template.
	if !dep.HasDeps() && extraEnv == nil {
		return Template{
			Name: name,
			Container: &Container{
				Image:        image,
				Command:      []string{"sh", "-c"},
				Args:         []string{fmt.Sprintf(`python -c "$%s"`, bootstrap.EnvPythonCode)},
				Env:          env,
				VolumeMounts: mounts,
			},
		}
	}

	var source string
	if extraEnv != nil {
		// DAG steps inject the inter-step data-exchange helper module.
		source = bootstrap.BuildStep(dep)
	} else {
		source = bootstrap.Build(dep)
	}

	return Template{
		Name: name,
		Script: &ScriptTemplate{
			Image:        image,
			Command:      []string{"bash"},
			Source:       source,
			Env:          env,
			VolumeMounts: mounts,
		},
	}
}

func (s *Synthesizer) imageFor(systemDeps string) string {
	if hasSystemDeps(systemDeps) {
		return s.NixImage
	}
	return s.PythonImage
}

func hasSystemDeps(systemDeps string) bool {
	return strings.TrimSpace(systemDeps) != ""
}

func volumesFor(useCache, systemDeps bool) []Volume {
	vols := []Volume{
		{Name: resultVolumeName, PersistentVolumeClaim: &PersistentVolumeClaimVolumeSource{ClaimName: ResultPVCName}},
	}
	if !useCache {
		return vols
	}
	vols = append(vols, Volume{Name: uvCacheVolumeName, PersistentVolumeClaim: &PersistentVolumeClaimVolumeSource{ClaimName: UVCachePVCName}})
	if systemDeps {
		vols = append(vols, Volume{Name: nixStoreVolumeName, PersistentVolumeClaim: &PersistentVolumeClaimVolumeSource{ClaimName: NixStorePVCName}})
	}
	return vols
}

func volumeMountsFor(useCache, systemDeps bool) []VolumeMount {
	mounts := []VolumeMount{
		{Name: resultVolumeName, MountPath: ResultMountPath},
	}
	if !useCache {
		return mounts
	}
	mounts = append(mounts, VolumeMount{Name: uvCacheVolumeName, MountPath: bootstrap.UVCacheDir})
	if systemDeps {
		mounts = append(mounts, VolumeMount{Name: nixStoreVolumeName, MountPath: bootstrap.NixStoreDir})
	}
	return mounts
}
