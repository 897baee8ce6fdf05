// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pyforge/controlplane/internal/controlplane/models"
)

const maxUploadBytes = 32 << 20 // 32MiB, generous for result-mount artifacts

// ListFiles handles list-files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := queryPath(r)

	entries, err := h.files.List(ctx, path)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]*models.FileEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = models.NewFileEntryResponse(e)
	}
	writeList(w, out)
}

// ReadFile handles read-file.
func (h *Handler) ReadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := queryPath(r)
	if path == "" {
		writeBadRequest(w, "path is required")
		return
	}

	content, err := h.files.Read(ctx, path)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, content)
}

// PreviewFile handles preview-file.
func (h *Handler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := queryPath(r)
	if path == "" {
		writeBadRequest(w, "path is required")
		return
	}
	dims := r.URL.Query().Get("dims")

	content, err := h.files.Preview(ctx, path, dims)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, content)
}

// CopyFile handles copy-file.
func (h *Handler) CopyFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CopyFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	defer r.Body.Close()

	if err := h.files.Copy(ctx, req.Source, req.Destination); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadFile handles upload-file: a multipart form with a "dir" field and
// a "file" part.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, "invalid multipart form")
		return
	}
	dir := r.FormValue("dir")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file part is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeBadRequest(w, "failed to read file part")
		return
	}

	name, err := h.files.Upload(ctx, dir, header.Filename, content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, models.UploadFileResponse{Name: name})
}

func queryPath(r *http.Request) string {
	return r.URL.Query().Get("path")
}
