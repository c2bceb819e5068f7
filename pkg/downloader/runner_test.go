// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunWorker(t *testing.T) {
	t.Run("unsupported platform exits non-zero with sentinel", func(t *testing.T) {
		resetHFEnv(t)
		var sb strings.Builder
		code := RunWorker(Request{Platform: "gitlab", RepoID: "a/b", SavePath: t.TempDir(), RepoKind: RepoKindModel}, &sb)

		if code != 1 {
			t.Errorf("Expected exit code 1, got %d", code)
		}
		out := lines(sb.String())
		if len(out) == 0 || out[len(out)-1] != doneSentinel {
			t.Errorf("Expected sentinel as last line, got %v", out)
		}
		if !strings.Contains(sb.String(), "unsupported platform") {
			t.Errorf("Expected unsupported platform diagnostic, got %q", sb.String())
		}
	})

	t.Run("successful huggingface run exits zero", func(t *testing.T) {
		resetHFEnv(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/api/models/owner/tiny":
				w.Write([]byte(`{"siblings":[{"rfilename":"config.json","size":2}]}`))
			case strings.HasSuffix(r.URL.Path, "/resolve/main/config.json"):
				w.Write([]byte("{}"))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		dir := t.TempDir()
		req := Request{
			Platform: PlatformHuggingFace,
			RepoID:   "owner/tiny",
			SavePath: dir,
			Endpoint: srv.URL,
			RepoKind: RepoKindModel,
		}

		var sb strings.Builder
		code := RunWorker(req, &sb)

		if code != 0 {
			t.Fatalf("Expected exit code 0, got %d (output: %s)", code, sb.String())
		}
		out := lines(sb.String())
		if out[len(out)-1] != doneSentinel {
			t.Errorf("Expected sentinel as last line, got %v", out)
		}
		if !strings.Contains(sb.String(), "download completed") {
			t.Errorf("Expected completion line, got %q", sb.String())
		}
		if _, err := os.Stat(filepath.Join(req.RepoDir(), "config.json")); err != nil {
			t.Errorf("Expected config.json downloaded: %v", err)
		}
		// The scope was applied inside this process; the endpoint variable
		// points at the test server.
		if got := os.Getenv("HF_ENDPOINT"); got != srv.URL {
			t.Errorf("Expected endpoint env %s, got %q", srv.URL, got)
		}
	})

	t.Run("transfer failure exits non-zero with diagnostic", func(t *testing.T) {
		resetHFEnv(t)
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		req := Request{
			Platform: PlatformHuggingFace,
			RepoID:   "owner/missing",
			SavePath: t.TempDir(),
			Endpoint: srv.URL,
			RepoKind: RepoKindModel,
		}

		var sb strings.Builder
		code := RunWorker(req, &sb)
		if code != 1 {
			t.Errorf("Expected exit code 1, got %d", code)
		}
		if !strings.Contains(sb.String(), "Error during huggingface download") {
			t.Errorf("Expected error diagnostic, got %q", sb.String())
		}
		if !strings.Contains(sb.String(), "not found") {
			t.Errorf("Expected child diagnostic to carry the cause, got %q", sb.String())
		}
	})
}
