// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// lockSuffix marks an in-progress partial transfer of one file. The hub
// client convention: one marker per in-flight file, next to the file itself.
const lockSuffix = ".lock"

// CleanLockFiles removes stale transfer lock markers under dir, keeping every
// downloaded chunk in place so a later attempt can resume. Best-effort: a
// failed removal is logged and the scan continues. A missing directory is a
// no-op, and a second pass over a clean tree is a no-op too.
func CleanLockFiles(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), lockSuffix) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			log.Printf("could not remove lock file %s: %v", path, rmErr)
		}
		return nil
	})
}
