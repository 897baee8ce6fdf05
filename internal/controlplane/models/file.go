// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package models

import "github.com/pyforge/controlplane/internal/helperpod"

// FileEntryResponse represents one directory listing row.
type FileEntryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
}

// NewFileEntryResponse converts a helperpod.Entry to its wire shape.
func NewFileEntryResponse(e helperpod.Entry) *FileEntryResponse {
	return &FileEntryResponse{ID: e.ID, Name: e.Name, Type: e.Type, Size: e.Size, Mtime: e.Mtime}
}

// FileContentResponse represents a read or preview result.
type FileContentResponse struct {
	Content   string `json:"content"`
	Encoding  string `json:"encoding"` // "text" or "base64"
	MediaType string `json:"mediaType,omitempty"`
}

// CopyFileRequest is the body of copy-file.
type CopyFileRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// UploadFileResponse is the result of upload-file.
type UploadFileResponse struct {
	Name string `json:"name"`
}
