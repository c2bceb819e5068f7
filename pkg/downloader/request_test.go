// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsValidRepoID(t *testing.T) {
	cases := []struct {
		repoID string
		want   bool
	}{
		{"owner/name", true},
		{"bare-name", true},
		{"Qwen/Qwen2.5-0.5B", true},
		{"", false},
		{"owner/", false},
		{"/name", false},
		{"a/b/c", false},
		{"/", false},
	}

	for _, tc := range cases {
		t.Run(tc.repoID, func(t *testing.T) {
			if got := IsValidRepoID(tc.repoID); got != tc.want {
				t.Errorf("IsValidRepoID(%q) = %v, want %v", tc.repoID, got, tc.want)
			}
		})
	}
}

func TestRequest_RepoDir(t *testing.T) {
	t.Run("owner prefix is stripped", func(t *testing.T) {
		r := Request{RepoID: "facebook/opt-125m", SavePath: "/tmp/models"}
		if r.RepoName() != "opt-125m" {
			t.Errorf("Expected repo name opt-125m, got %s", r.RepoName())
		}
		want := filepath.Join("/tmp/models", "opt-125m")
		if r.RepoDir() != want {
			t.Errorf("Expected repo dir %s, got %s", want, r.RepoDir())
		}
	})

	t.Run("bare name is used as-is", func(t *testing.T) {
		r := Request{RepoID: "gpt2", SavePath: "out"}
		if r.RepoDir() != filepath.Join("out", "gpt2") {
			t.Errorf("Unexpected repo dir %s", r.RepoDir())
		}
	})
}

func TestReadWorkerRequest(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		in := `{"platform":"huggingface","repoId":"owner/name","savePath":"/tmp/m","repoKind":"dataset"}`
		req, err := ReadWorkerRequest(strings.NewReader(in))
		if err != nil {
			t.Fatalf("ReadWorkerRequest failed: %v", err)
		}
		if req.Platform != PlatformHuggingFace || req.RepoID != "owner/name" {
			t.Errorf("Unexpected request %+v", req)
		}
		if req.RepoKind != RepoKindDataset {
			t.Errorf("Expected dataset kind, got %s", req.RepoKind)
		}
	})

	t.Run("repo kind defaults to model", func(t *testing.T) {
		in := `{"platform":"modelscope","repoId":"owner/name","savePath":"/tmp/m"}`
		req, err := ReadWorkerRequest(strings.NewReader(in))
		if err != nil {
			t.Fatalf("ReadWorkerRequest failed: %v", err)
		}
		if req.RepoKind != RepoKindModel {
			t.Errorf("Expected model kind, got %s", req.RepoKind)
		}
	})

	t.Run("unsupported platform is rejected", func(t *testing.T) {
		in := `{"platform":"gitlab","repoId":"owner/name","savePath":"/tmp/m"}`
		_, err := ReadWorkerRequest(strings.NewReader(in))
		if !errors.Is(err, ErrUnsupportedPlatform) {
			t.Errorf("Expected ErrUnsupportedPlatform, got %v", err)
		}
	})

	t.Run("malformed repo ID is rejected", func(t *testing.T) {
		in := `{"platform":"huggingface","repoId":"a/b/c","savePath":"/tmp/m"}`
		_, err := ReadWorkerRequest(strings.NewReader(in))
		if !errors.Is(err, ErrInvalidRepo) {
			t.Errorf("Expected ErrInvalidRepo, got %v", err)
		}
	})

	t.Run("garbage input fails to decode", func(t *testing.T) {
		if _, err := ReadWorkerRequest(strings.NewReader("not json")); err == nil {
			t.Error("Expected decode error, got nil")
		}
	})
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation("huggingface download cancelled by user") {
		t.Error("Expected cancellation message to classify as cancellation")
	}
	if IsCancellation("huggingface download process failed: 404") {
		t.Error("Expected failure message not to classify as cancellation")
	}
}
