// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "encoding/json"

// runtimeToMap converts any JSON-taggable struct into a
// map[string]interface{} suitable for unstructured.Unstructured.Object, by
// round-tripping through JSON rather than via reflection-based converters,
// since manifest.Workflow's JSON tags are the source of truth for the wire
// shape the engine expects.
func runtimeToMap(v interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return m, nil
}
