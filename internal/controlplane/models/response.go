// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package models holds the HTTP-facing response envelope and DTOs the
// handlers package serializes. Nothing here is persisted; every type maps
// one of the store/manifest/helperpod domain types onto a stable wire shape.
package models

// APIResponse wraps every HTTP response the core returns.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ListResponse is a flat, non-paginated list payload. The core's lists
// (tasks, runs, flows, step runs, files) are bounded by the owning
// resource and never grow large enough to need cursoring.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// SuccessResponse wraps a single value as a successful response.
func SuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{Success: true, Data: data}
}

// ListSuccessResponse wraps a slice as a successful list response.
func ListSuccessResponse[T any](items []T) APIResponse[ListResponse[T]] {
	if items == nil {
		items = []T{}
	}
	return APIResponse[ListResponse[T]]{
		Success: true,
		Data:    ListResponse[T]{Items: items, Count: len(items)},
	}
}

// ErrorResponse wraps a message and a stable code as a failed response.
func ErrorResponse(message, code string) APIResponse[any] {
	return APIResponse[any]{Success: false, Error: message, Code: code}
}

// Error codes surfaced in APIResponse.Code. Handlers pick one of these by
// classifying the error returned from the service layer; callers match on
// the code, never on Error's message text.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodePrecondition   = "PRECONDITION_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeInvalidRequest = "INVALID_REQUEST"
)
