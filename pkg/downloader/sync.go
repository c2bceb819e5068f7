// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// remoteFile is one file the adapter decided to transfer.
type remoteFile struct {
	Rel  string // relative path inside the repository
	URL  string // resolved download URL
	Size int64  // expected size, 0 when the listing does not carry one
}

// syncFiles mirrors files into destDir with a bounded worker pool. Resume is
// filesystem-driven: a destination whose size already matches is skipped, and
// a partial .part file continues from its current offset via a range request.
// Each in-flight file carries a .lock marker next to it; the janitor sweeps
// any marker a crashed attempt left behind.
func syncFiles(ctx context.Context, platform Platform, httpc *http.Client, token string, files []remoteFile, destDir string, out *LineWriter) error {
	if len(files) == 0 {
		out.Send("No downloadable files matched (all excluded or repository empty)")
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	workers := maxTransferWorkers()
	out.Send(fmt.Sprintf("Syncing %d files into %s (%d workers)", len(files), destDir, workers))

	lim := make(chan struct{}, workers)
	var wg sync.WaitGroup
	errCh := make(chan error, len(files))

LOOP:
	for _, f := range files {
		select {
		case <-ctx.Done():
			break LOOP
		default:
		}
		select {
		case lim <- struct{}{}:
		case <-ctx.Done():
			break LOOP
		}

		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-lim }()
			if err := fetchFile(ctx, httpc, token, f, destDir, out); err != nil {
				select {
				case errCh <- &TransferError{Platform: platform, Path: f.Rel, Err: err}:
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	if err := ctx.Err(); err != nil {
		return err
	}
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// fetchFile downloads one file to destDir, reusing prior bytes when possible.
func fetchFile(ctx context.Context, httpc *http.Client, token string, f remoteFile, destDir string, out *LineWriter) error {
	dst := filepath.Join(destDir, filepath.FromSlash(f.Rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	// Already complete from a previous attempt.
	if fi, err := os.Stat(dst); err == nil && f.Size > 0 && fi.Size() == f.Size {
		out.Send(fmt.Sprintf("skip (already complete): %s", f.Rel))
		return nil
	}

	lock := dst + lockSuffix
	if err := os.WriteFile(lock, nil, 0o644); err != nil {
		return err
	}
	defer os.Remove(lock)

	tmp := dst + ".part"
	var offset int64
	if fi, err := os.Stat(tmp); err == nil {
		offset = fi.Size()
	}
	if f.Size > 0 {
		// A part file that already holds every byte needs no request at all;
		// asking the server for bytes=<size>- would only earn a 416. One that
		// somehow grew past the expected size is corrupt, start over.
		if offset == f.Size {
			if err := os.Rename(tmp, dst); err != nil {
				return err
			}
			out.Send(fmt.Sprintf("done: %s", f.Rel))
			return nil
		}
		if offset > f.Size {
			offset = 0
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	addAuth(req, token)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		// Server honors the range; keep appending.
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// The listing carried no size and the part file turns out to hold the
		// whole object already; the server has nothing left to send.
		if err := os.Rename(tmp, dst); err != nil {
			return err
		}
		out.Send(fmt.Sprintf("done: %s", f.Rel))
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		offset = 0 // full body, start over
	default:
		return fmt.Errorf("bad status %s", resp.Status)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(tmp, flags, 0o644)
	if err != nil {
		return err
	}

	total := f.Size
	if total <= 0 && resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	out.Send(fmt.Sprintf("downloading: %s (%d bytes)", f.Rel, total))

	bar := pb.New64(total)
	bar.Set(pb.Bytes, true)
	bar.SetWriter(out)
	bar.SetRefreshRate(150 * time.Millisecond)
	bar.SetCurrent(offset)
	bar.Start()

	_, copyErr := io.Copy(file, bar.NewProxyReader(resp.Body))
	bar.Finish()

	if cerr := file.Close(); copyErr == nil {
		copyErr = cerr
	}
	if copyErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return copyErr
	}

	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	out.Send(fmt.Sprintf("done: %s", f.Rel))
	return nil
}
