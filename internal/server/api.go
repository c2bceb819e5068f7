// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"unidownloader/pkg/downloader"
)

// DownloadRequest is the request body for starting a download.
// Note: the output path is NOT configurable via API; the server always uses
// its configured OutputDir.
type DownloadRequest struct {
	Platform string `json:"platform"`
	Repo     string `json:"repo"`
	Dataset  bool   `json:"dataset,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Handlers ---

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	platforms := make([]string, 0, 2)
	for _, p := range downloader.SupportedPlatforms() {
		platforms = append(platforms, string(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"platforms": platforms,
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStartDownload starts a download, rejecting concurrent attempts.
func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	req.Repo = strings.TrimSpace(req.Repo)
	if req.Repo == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: repo", "")
		return
	}
	if req.Platform == "" {
		req.Platform = string(downloader.PlatformHuggingFace)
	}

	state, err := s.downloads.Start(req)
	switch {
	case errors.Is(err, ErrDownloadBusy):
		writeError(w, http.StatusConflict, "Download already in progress", state.Repo)
	case errors.Is(err, downloader.ErrUnsupportedPlatform):
		writeError(w, http.StatusBadRequest, "Unsupported platform", req.Platform)
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid download request", err.Error())
	default:
		writeJSON(w, http.StatusAccepted, state)
	}
}

// handleCancelDownload cancels the active download.
func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	if s.downloads.Cancel() {
		writeJSON(w, http.StatusOK, SuccessResponse{
			Success: true,
			Message: "Download cancelled",
		})
		return
	}
	writeError(w, http.StatusNotFound, "No download in progress", "")
}

// handleStatus returns the current download state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.downloads.Status())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
