// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// RepoKind selects between model and dataset repositories.
type RepoKind string

const (
	RepoKindModel   RepoKind = "model"
	RepoKindDataset RepoKind = "dataset"
)

// Request describes one download attempt. It is immutable once the Worker is
// constructed and is what crosses the process boundary to the isolated runner.
type Request struct {
	Platform Platform `json:"platform"`
	RepoID   string   `json:"repoId"`
	SavePath string   `json:"savePath"`
	Token    string   `json:"token,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
	RepoKind RepoKind `json:"repoKind"`
}

// RepoName is the last path segment of the repository ID.
func (r Request) RepoName() string {
	parts := strings.Split(r.RepoID, "/")
	return parts[len(parts)-1]
}

// RepoDir is the deterministic target directory for this request,
// stable for the lifetime of one Worker.
func (r Request) RepoDir() string {
	return filepath.Join(r.SavePath, r.RepoName())
}

func (r Request) validate() error {
	if _, err := LookupPlatform(r.Platform); err != nil {
		return err
	}
	if !IsValidRepoID(r.RepoID) {
		return fmt.Errorf("%w: %q", ErrInvalidRepo, r.RepoID)
	}
	if r.SavePath == "" {
		return fmt.Errorf("missing save path")
	}
	switch r.RepoKind {
	case RepoKindModel, RepoKindDataset:
		return nil
	default:
		return fmt.Errorf("invalid repo kind %q (expected model or dataset)", r.RepoKind)
	}
}

// IsValidRepoID checks that the repository ID is either "owner/name" or a
// bare name, with no empty segments.
func IsValidRepoID(repoID string) bool {
	if repoID == "" {
		return false
	}
	parts := strings.Split(repoID, "/")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// ReadWorkerRequest decodes the request handed to the isolated runner on its
// standard input.
func ReadWorkerRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode worker request: %w", err)
	}
	if req.RepoKind == "" {
		req.RepoKind = RepoKindModel
	}
	if err := req.validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
