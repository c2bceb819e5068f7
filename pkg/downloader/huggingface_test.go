// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// newHFServer fakes the two HuggingFace Hub endpoints the adapter touches:
// the repo listing and the resolve endpoint.
func newHFServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/models/owner/tiny":
			var sb strings.Builder
			sb.WriteString(`{"siblings":[`)
			first := true
			for name, content := range files {
				if !first {
					sb.WriteString(",")
				}
				first = false
				sb.WriteString(`{"rfilename":"` + name + `","size":` + strconv.Itoa(len(content)) + `}`)
			}
			sb.WriteString(`]}`)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(sb.String()))

		case strings.HasPrefix(r.URL.Path, "/owner/tiny/resolve/main/"):
			rel := strings.TrimPrefix(r.URL.Path, "/owner/tiny/resolve/main/")
			content, ok := files[rel]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(content))

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadHuggingFace(t *testing.T) {
	resetHFEnv(t)

	t.Run("downloads listed files and applies the ignore list", func(t *testing.T) {
		files := map[string]string{
			"config.json":       `{"architectures":["TinyModel"]}`,
			"pytorch_model.bin": "binary blob",
			".gitattributes":    "* text",
		}
		srv := newHFServer(t, files)
		dir := t.TempDir()

		req := Request{
			Platform: PlatformHuggingFace,
			RepoID:   "owner/tiny",
			SavePath: dir,
			Endpoint: srv.URL,
			RepoKind: RepoKindModel,
		}
		var sb strings.Builder
		out := NewLineWriter(&sb)

		if err := downloadHuggingFace(context.Background(), req, out); err != nil {
			t.Fatalf("downloadHuggingFace failed: %v", err)
		}

		got, err := os.ReadFile(filepath.Join(req.RepoDir(), "config.json"))
		if err != nil {
			t.Fatalf("config.json missing: %v", err)
		}
		if string(got) != files["config.json"] {
			t.Errorf("config.json content mismatch: %q", got)
		}
		if _, err := os.Stat(filepath.Join(req.RepoDir(), "pytorch_model.bin")); !os.IsNotExist(err) {
			t.Error("Ignored .bin file should not be downloaded")
		}
		if _, err := os.Stat(filepath.Join(req.RepoDir(), ".gitattributes")); !os.IsNotExist(err) {
			t.Error("Hidden file should not be downloaded")
		}
	})

	t.Run("missing repository reports not found", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		req := Request{
			Platform: PlatformHuggingFace,
			RepoID:   "owner/missing",
			SavePath: t.TempDir(),
			Endpoint: srv.URL,
			RepoKind: RepoKindModel,
		}
		err := downloadHuggingFace(context.Background(), req, NewLineWriter(&strings.Builder{}))

		var terr *TransferError
		if !errors.As(err, &terr) {
			t.Fatalf("Expected TransferError, got %v", err)
		}
		if !strings.Contains(terr.Error(), "not found") {
			t.Errorf("Expected not-found detail, got %v", terr)
		}
	})

	t.Run("unauthorized repository reports authentication", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusUnauthorized)
		}))
		defer srv.Close()

		req := Request{
			Platform: PlatformHuggingFace,
			RepoID:   "owner/private",
			SavePath: t.TempDir(),
			Endpoint: srv.URL,
			RepoKind: RepoKindModel,
		}
		err := downloadHuggingFace(context.Background(), req, NewLineWriter(&strings.Builder{}))
		if err == nil || !strings.Contains(err.Error(), "requires authentication") {
			t.Errorf("Expected authentication error, got %v", err)
		}
	})

	t.Run("token is sent as bearer auth", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"siblings":[]}`))
		}))
		defer srv.Close()

		req := Request{
			Platform: PlatformHuggingFace,
			RepoID:   "owner/tiny",
			SavePath: t.TempDir(),
			Token:    "hf_secret",
			Endpoint: srv.URL,
			RepoKind: RepoKindModel,
		}
		if err := downloadHuggingFace(context.Background(), req, NewLineWriter(&strings.Builder{})); err != nil {
			t.Fatalf("downloadHuggingFace failed: %v", err)
		}
		if gotAuth != "Bearer hf_secret" {
			t.Errorf("Expected bearer token, got %q", gotAuth)
		}
	})
}
