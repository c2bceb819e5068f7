// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// DownloadFunc performs the actual repository sync for one platform. It runs
// inside the isolated child process, honors ctx for cancellation and reports
// all telemetry through out.
type DownloadFunc func(ctx context.Context, req Request, out *LineWriter) error

// downloadFuncs maps each platform to its adapter. A nil entry means the
// capability is not compiled in; the runner reports that instead of failing
// with a confusing transfer error.
var downloadFuncs = map[Platform]DownloadFunc{
	PlatformHuggingFace: downloadHuggingFace,
	PlatformModelScope:  downloadModelScope,
}

func downloadFuncFor(p Platform) DownloadFunc {
	return downloadFuncs[p]
}

// ignoreSuffixes are redundant serialization formats skipped on every
// platform, matching the hub clients' default ignore list.
var ignoreSuffixes = []string{".h5", ".ot", ".msgpack", ".bin", ".pkl", ".onnx"}

// isIgnored applies the uniform exclusion list: known suffixes plus hidden
// files and directories.
func isIgnored(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	lower := strings.ToLower(path.Base(rel))
	for _, suffix := range ignoreSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// maxTransferWorkers caps file fan-out at a small multiple of the available
// cores so file count never drives unbounded parallelism.
func maxTransferWorkers() int {
	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}
	n := cores + 2
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// buildHTTPClient mirrors the transport settings hub clients use. The header
// timeout follows the platform's download-timeout variable when set; there is
// no overall timeout because bodies can be tens of gigabytes.
func buildHTTPClient(insecure bool) *http.Client {
	headerTimeout := 30 * time.Second
	if v := os.Getenv(hfTimeoutEnv); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			headerTimeout = time.Duration(secs) * time.Second
		}
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: tr}
}

// addAuth adds bearer authentication when a token is present.
func addAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "unidownloader")
}
