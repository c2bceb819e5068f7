// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// hfSibling is one file entry in the HuggingFace repo listing.
type hfSibling struct {
	Rfilename string `json:"rfilename"`
	Size      int64  `json:"size,omitempty"`
}

type hfRepoInfo struct {
	Siblings []hfSibling `json:"siblings"`
}

// downloadHuggingFace syncs a HuggingFace Hub repository into the request's
// repo directory. Listing via /api/{models|datasets}/{repo}, content via the
// resolve endpoint, both honoring the endpoint override (mirrors included).
func downloadHuggingFace(ctx context.Context, req Request, out *LineWriter) error {
	cfg := platformConfigs[PlatformHuggingFace]
	endpoint := strings.TrimSuffix(req.Endpoint, "/")
	if endpoint == "" {
		endpoint = cfg.DefaultEndpoint
	}

	insecure := os.Getenv(hfDisableSSLEnv) == "1" || cfg.endpointIsMirror(endpoint)
	httpc := buildHTTPClient(insecure)

	apiKind, resolvePrefix := "models", ""
	if req.RepoKind == RepoKindDataset {
		apiKind, resolvePrefix = "datasets", "datasets/"
	}

	out.Send(fmt.Sprintf("Starting HuggingFace download of %s", req.RepoID))

	apiURL := fmt.Sprintf("%s/api/%s/%s", endpoint, apiKind, req.RepoID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	addAuth(httpReq, req.Token)

	resp, err := httpc.Do(httpReq)
	if err != nil {
		return &TransferError{Platform: PlatformHuggingFace, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return &TransferError{Platform: PlatformHuggingFace,
			Err: fmt.Errorf("repository %s requires authentication (status %s)", req.RepoID, resp.Status)}
	case http.StatusNotFound:
		return &TransferError{Platform: PlatformHuggingFace,
			Err: fmt.Errorf("repository %s not found", req.RepoID)}
	default:
		return &TransferError{Platform: PlatformHuggingFace,
			Err: fmt.Errorf("listing failed with status %s", resp.Status)}
	}

	var info hfRepoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return &TransferError{Platform: PlatformHuggingFace, Err: fmt.Errorf("decode repo listing: %w", err)}
	}

	var files []remoteFile
	for _, sib := range info.Siblings {
		if sib.Rfilename == "" || isIgnored(sib.Rfilename) {
			continue
		}
		files = append(files, remoteFile{
			Rel:  sib.Rfilename,
			URL:  hfResolveURL(endpoint, resolvePrefix, req.RepoID, sib.Rfilename),
			Size: sib.Size,
		})
	}

	return syncFiles(ctx, PlatformHuggingFace, httpc, req.Token, files, req.RepoDir(), out)
}

// hfResolveURL builds the content URL for one file at the main revision.
func hfResolveURL(endpoint, prefix, repoID, rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s%s/resolve/main/%s", endpoint, prefix, repoID, strings.Join(segs, "/"))
}
