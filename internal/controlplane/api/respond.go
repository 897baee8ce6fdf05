// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP boundary: a router and handler set translating
// spec §6's operations onto the service layer, and classifying service
// errors into models.APIResponse error codes via errors.Is, never by
// parsing message text.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pyforge/controlplane/internal/controlplane/models"
	"github.com/pyforge/controlplane/internal/controlplane/service"
	"github.com/pyforge/controlplane/internal/store"
)

func writeSuccess[T any](w http.ResponseWriter, statusCode int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(models.SuccessResponse(data))
}

func writeList[T any](w http.ResponseWriter, items []T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(models.ListSuccessResponse(items))
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse(message, code))
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message, models.CodeInvalidRequest)
}

// writeServiceError classifies an error returned from the service layer
// into the appropriate status code and models.Code, falling back to an
// internal error for anything unrecognized.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), models.CodeValidation)
	case errors.Is(err, service.ErrPrecondition):
		writeError(w, http.StatusPreconditionFailed, err.Error(), models.CodePrecondition)
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), models.CodeConflict)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), models.CodeNotFound)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", models.CodeInternal)
	}
}
