// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// msFileEntry is one entry in the ModelScope repo file listing.
type msFileEntry struct {
	Path string `json:"Path"`
	Name string `json:"Name"`
	Size int64  `json:"Size"`
	Type string `json:"Type"` // "blob" or "tree"
}

type msFilesResponse struct {
	Code int `json:"Code"`
	Data struct {
		Files []msFileEntry `json:"Files"`
	} `json:"Data"`
	Message string `json:"Message"`
}

// downloadModelScope syncs a ModelScope repository. Authentication is a
// best-effort login handshake first; a failed login is reported but the
// transfer still proceeds, matching the hub client behavior for public repos.
func downloadModelScope(ctx context.Context, req Request, out *LineWriter) error {
	cfg := platformConfigs[PlatformModelScope]
	endpoint := strings.TrimSuffix(req.Endpoint, "/")
	if endpoint == "" {
		endpoint = cfg.DefaultEndpoint
	}

	httpc := buildHTTPClient(false)

	if req.Token != "" {
		if err := modelScopeLogin(ctx, httpc, endpoint, req.Token); err != nil {
			out.Send(fmt.Sprintf("ModelScope authentication failed: %v", err))
		} else {
			out.Send("ModelScope authentication successful")
		}
	}

	kind := "models"
	kindLabel := "Model"
	if req.RepoKind == RepoKindDataset {
		kind = "datasets"
		kindLabel = "Dataset"
	}

	out.Send(fmt.Sprintf("Starting ModelScope download of %s", req.RepoID))
	out.Send(fmt.Sprintf("Downloading %s from %s to directory: %s", kindLabel, endpoint, req.RepoDir()))

	listURL := fmt.Sprintf("%s/api/v1/%s/%s/repo/files?Recursive=true", endpoint, kind, req.RepoID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return err
	}
	addAuth(httpReq, req.Token)

	resp, err := httpc.Do(httpReq)
	if err != nil {
		return &TransferError{Platform: PlatformModelScope, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &TransferError{Platform: PlatformModelScope,
			Err: fmt.Errorf("repository %s not found", req.RepoID)}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransferError{Platform: PlatformModelScope,
			Err: fmt.Errorf("listing failed with status %s", resp.Status)}
	}

	var listing msFilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return &TransferError{Platform: PlatformModelScope, Err: fmt.Errorf("decode repo listing: %w", err)}
	}
	if listing.Code != 200 && listing.Code != 0 {
		return &TransferError{Platform: PlatformModelScope,
			Err: fmt.Errorf("listing rejected: %s", listing.Message)}
	}

	var files []remoteFile
	for _, entry := range listing.Data.Files {
		rel := entry.Path
		if rel == "" {
			rel = entry.Name
		}
		if rel == "" || entry.Type == "tree" || isIgnored(rel) {
			continue
		}
		files = append(files, remoteFile{
			Rel:  rel,
			URL:  fmt.Sprintf("%s/api/v1/%s/%s/repo?FilePath=%s&Revision=master", endpoint, kind, req.RepoID, url.QueryEscape(rel)),
			Size: entry.Size,
		})
	}

	return syncFiles(ctx, PlatformModelScope, httpc, req.Token, files, req.RepoDir(), out)
}

// modelScopeLogin performs the token handshake the hub client does before
// transferring from private repositories.
func modelScopeLogin(ctx context.Context, httpc *http.Client, endpoint, token string) error {
	body, err := json.Marshal(map[string]string{"AccessToken": token})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/v1/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %s", resp.Status)
	}
	return nil
}
