// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest synthesizes workflow-engine custom-resource documents
// for a single task or a DAG flow. The document is built as a typed data
// structure and serialized to JSON; nothing in this package assembles YAML
// by string concatenation.
package manifest

// GroupVersion and Kind identify the workflow custom resource this package
// targets.
const (
	GroupVersion = "argoproj.io/v1alpha1"
	Kind         = "Workflow"
)

// PVC names and mount paths are load-bearing constants shared with the
// engine's PVC-existence precondition check.
const (
	ResultPVCName   = "task-results-pvc"
	UVCachePVCName  = "uv-cache-pvc"
	NixStorePVCName = "nix-store-pvc"

	ResultMountPath = "/mnt/results"

	resultVolumeName   = "task-results"
	uvCacheVolumeName  = "uv-cache"
	nixStoreVolumeName = "nix-store"
)

// Name prefixes requested from the engine's name-generation. The engine
// returns the concrete generated name, which becomes the Run/FlowRun's
// workflow_id.
const (
	TaskNamePrefix = "python-job-"
	FlowNamePrefix = "flow-"
)

// ArgoWorkflowNamePlaceholder is substituted by the workflow engine itself
// at pod-render time; the synthesizer never resolves it.
const ArgoWorkflowNamePlaceholder = "{{workflow.name}}"

// ObjectMeta mirrors the subset of Kubernetes object metadata the
// synthesizer populates.
type ObjectMeta struct {
	GenerateName string            `json:"generateName,omitempty"`
	Name         string            `json:"name,omitempty"`
	Namespace    string            `json:"namespace,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// EnvVar is a plain name/value environment variable entry.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// PersistentVolumeClaimVolumeSource references an existing, bound PVC.
type PersistentVolumeClaimVolumeSource struct {
	ClaimName string `json:"claimName"`
}

// Volume is a workflow-pod-level volume definition.
type Volume struct {
	Name                  string                             `json:"name"`
	PersistentVolumeClaim *PersistentVolumeClaimVolumeSource `json:"persistentVolumeClaim,omitempty"`
}

// VolumeMount binds a named volume into a container at a path.
type VolumeMount struct {
	Name      string `json:"name"`
	MountPath string `json:"mountPath"`
}

// Container is a direct-execution template body (no bootstrap script).
type Container struct {
	Image        string        `json:"image"`
	Command      []string      `json:"command,omitempty"`
	Args         []string      `json:"args,omitempty"`
	Env          []EnvVar      `json:"env,omitempty"`
	VolumeMounts []VolumeMount `json:"volumeMounts,omitempty"`
}

// ScriptTemplate is a script-execution template body; Source is the
// bootstrap script emitted by the bootstrap package.
type ScriptTemplate struct {
	Image        string        `json:"image"`
	Command      []string      `json:"command,omitempty"`
	Source       string        `json:"source"`
	Env          []EnvVar      `json:"env,omitempty"`
	VolumeMounts []VolumeMount `json:"volumeMounts,omitempty"`
}

// DAGTask is one node of a DAG template.
type DAGTask struct {
	Name         string   `json:"name"`
	Template     string   `json:"template"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// DAGTemplate lists the tasks making up a DAG and their dependency edges.
type DAGTemplate struct {
	Tasks []DAGTask `json:"tasks"`
}

// Template is exactly one of Container, Script, or DAG.
type Template struct {
	Name      string          `json:"name"`
	Container *Container      `json:"container,omitempty"`
	Script    *ScriptTemplate `json:"script,omitempty"`
	DAG       *DAGTemplate    `json:"dag,omitempty"`
}

// WorkflowSpec is the workflow custom resource's spec.
type WorkflowSpec struct {
	Entrypoint string     `json:"entrypoint"`
	Volumes    []Volume   `json:"volumes,omitempty"`
	Templates  []Template `json:"templates"`
}

// Workflow is the full custom-resource document submitted to the engine.
type Workflow struct {
	APIVersion string       `json:"apiVersion"`
	Kind       string       `json:"kind"`
	Metadata   ObjectMeta   `json:"metadata"`
	Spec       WorkflowSpec `json:"spec"`
}

func newWorkflow(namePrefix, namespace string) *Workflow {
	return &Workflow{
		APIVersion: GroupVersion,
		Kind:       Kind,
		Metadata: ObjectMeta{
			GenerateName: namePrefix,
			Namespace:    namespace,
		},
	}
}
