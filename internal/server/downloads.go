// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"sync"
	"time"

	"unidownloader/pkg/downloader"
)

// DownloadStatus represents the state of the active download.
type DownloadStatus string

const (
	DownloadStatusIdle      DownloadStatus = "idle"
	DownloadStatusRunning   DownloadStatus = "running"
	DownloadStatusCompleted DownloadStatus = "completed"
	DownloadStatusFailed    DownloadStatus = "failed"
	DownloadStatusCancelled DownloadStatus = "cancelled"
)

// ErrDownloadBusy is returned when a download is already in progress.
var ErrDownloadBusy = errors.New("a download is already in progress")

// DownloadState is the JSON snapshot of the current (or last) download.
type DownloadState struct {
	Platform  string         `json:"platform,omitempty"`
	Repo      string         `json:"repo,omitempty"`
	RepoKind  string         `json:"repoKind,omitempty"`
	Dir       string         `json:"dir,omitempty"`
	Status    DownloadStatus `json:"status"`
	LastLine  string         `json:"lastLine,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt *time.Time     `json:"startedAt,omitempty"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
}

// DownloadManager drives at most one download worker at a time. The single
// slot mirrors the desktop flow the orchestrator was built for: one transfer,
// one child process, one stream of events.
type DownloadManager struct {
	mu     sync.Mutex
	config Config
	wsHub  *WSHub
	worker *downloader.Worker
	state  DownloadState
}

// NewDownloadManager creates a new download manager.
func NewDownloadManager(cfg Config, wsHub *WSHub) *DownloadManager {
	return &DownloadManager{
		config: cfg,
		wsHub:  wsHub,
		state:  DownloadState{Status: DownloadStatusIdle},
	}
}

// Start validates the request, builds a fresh worker and launches it.
// Returns ErrDownloadBusy while a previous attempt is still running.
func (m *DownloadManager) Start(req DownloadRequest) (DownloadState, error) {
	kind := downloader.RepoKindModel
	if req.Dataset {
		kind = downloader.RepoKindDataset
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.worker != nil && m.worker.Running() {
		return m.state, ErrDownloadBusy
	}

	// Output path is server-controlled, never taken from the request.
	w, err := downloader.NewWorker(
		downloader.Platform(req.Platform),
		req.Repo,
		m.config.OutputDir,
		m.config.Token,
		m.config.Endpoint,
		kind,
	)
	if err != nil {
		return m.state, err
	}

	// Previous worker (if any) is finished; release its scope and handlers.
	if m.worker != nil {
		m.worker.Close()
	}
	m.worker = w

	now := time.Now()
	m.state = DownloadState{
		Platform:  string(w.Request().Platform),
		Repo:      w.Request().RepoID,
		RepoKind:  string(w.Request().RepoKind),
		Dir:       w.RepoDir(),
		Status:    DownloadStatusRunning,
		StartedAt: &now,
	}

	w.Subscribe(downloader.Events{
		Finished: func() { m.onTerminal(w, DownloadStatusCompleted, "") },
		Error: func(message string) {
			status := DownloadStatusFailed
			if downloader.IsCancellation(message) {
				status = DownloadStatusCancelled
			}
			m.onTerminal(w, status, message)
		},
		Status: func(message string) {
			m.noteLine(w, message)
			m.wsHub.Broadcast("status", message)
		},
		Log: func(message string) {
			m.noteLine(w, message)
			m.wsHub.Broadcast("log", message)
		},
	})

	w.Start()
	m.wsHub.Broadcast("state", m.state)
	return m.state, nil
}

// Cancel cancels the active download. Returns false when nothing is running.
func (m *DownloadManager) Cancel() bool {
	m.mu.Lock()
	w := m.worker
	m.mu.Unlock()

	if w == nil || !w.Running() {
		return false
	}
	w.Cancel()
	return true
}

// Status returns a snapshot of the current download state.
func (m *DownloadManager) Status() DownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Shutdown cancels any active download and releases the worker.
func (m *DownloadManager) Shutdown() {
	m.mu.Lock()
	w := m.worker
	m.worker = nil
	m.mu.Unlock()

	if w == nil {
		return
	}
	w.Close()
	if done := w.Done(); done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}

// onTerminal records the terminal outcome for the worker that produced it.
// A stale worker's event (already replaced by a newer Start) is dropped.
func (m *DownloadManager) onTerminal(w *downloader.Worker, status DownloadStatus, message string) {
	m.mu.Lock()
	if m.worker != w {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	m.state.Status = status
	m.state.Error = message
	m.state.EndedAt = &now
	snapshot := m.state
	m.mu.Unlock()

	m.wsHub.Broadcast("state", snapshot)
	if status == DownloadStatusCompleted {
		m.wsHub.Broadcast("finished", snapshot.Repo)
	} else {
		m.wsHub.Broadcast("error", message)
	}
}

func (m *DownloadManager) noteLine(w *downloader.Worker, message string) {
	m.mu.Lock()
	if m.worker == w {
		m.state.LastLine = message
	}
	m.mu.Unlock()
}
