// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pyforge/controlplane/internal/controlplane/models"
	"github.com/pyforge/controlplane/internal/helperpod"
)

// FileService exposes the Volume Helper Pod Manager's operations to the
// HTTP boundary, translating its path-validation failures into
// ErrValidation.
type FileService struct {
	helper *helperpod.Manager
}

// NewFileService builds a FileService over an already-started helper pod manager.
func NewFileService(helper *helperpod.Manager) *FileService {
	return &FileService{helper: helper}
}

// List returns the entries of a result-mount directory.
func (s *FileService) List(ctx context.Context, path string) ([]helperpod.Entry, error) {
	entries, err := s.helper.List(ctx, path)
	return entries, classifyPathError(err)
}

// Read returns a file's decoded content.
func (s *FileService) Read(ctx context.Context, path string) (*models.FileContentResponse, error) {
	content, err := s.helper.Read(ctx, path)
	if err != nil {
		return nil, classifyPathError(err)
	}
	return toContentResponse(content), nil
}

// Preview returns an image file's content tagged with the media type known
// from its extension; any other file comes back as Read returns it.
func (s *FileService) Preview(ctx context.Context, path, dims string) (*models.FileContentResponse, error) {
	content, err := s.helper.Preview(ctx, path, dims)
	if err != nil {
		return nil, classifyPathError(err)
	}
	return toContentResponse(content), nil
}

// Copy duplicates a file within the result mount.
func (s *FileService) Copy(ctx context.Context, source, destination string) error {
	return classifyPathError(s.helper.Copy(ctx, source, destination))
}

// Upload writes content under dir, resolving any filename collision.
func (s *FileService) Upload(ctx context.Context, dir, filename string, content []byte) (string, error) {
	name, err := s.helper.Upload(ctx, dir, filename, content)
	return name, classifyPathError(err)
}

func toContentResponse(c *helperpod.Content) *models.FileContentResponse {
	resp := &models.FileContentResponse{Encoding: c.Encoding, MediaType: c.MediaType}
	if c.Encoding == "text" {
		resp.Content = string(c.Bytes)
	} else {
		resp.Content = base64.StdEncoding.EncodeToString(c.Bytes)
	}
	return resp
}

// classifyPathError wraps the helper pod's path-validation failures as
// ErrValidation; every other failure (exec, retry exhaustion) is returned
// unwrapped since it isn't caller-correctable.
func classifyPathError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, helperpod.ErrInvalidPath) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}
