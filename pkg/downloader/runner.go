// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// RunWorker is the entry point executed inside the freshly spawned child
// process (never a fork, so no parent UI state is inherited). It applies the
// environment scope to the child's own environment, dispatches to the
// platform adapter and reports over the output channel. The completion
// sentinel is always emitted, even when the adapter panicked, so the parent's
// reader loop is guaranteed to terminate. Returns the process exit code; a
// non-zero code is the authoritative failure signal.
func RunWorker(req Request, out io.Writer) (code int) {
	lw := NewLineWriter(out)
	defer lw.SendDone()
	defer lw.Flush()
	defer func() {
		if r := recover(); r != nil {
			lw.Send(fmt.Sprintf("Process wrapper error: %v", r))
			code = 1
		}
	}()

	cfg, err := LookupPlatform(req.Platform)
	if err != nil {
		lw.Send(fmt.Sprintf("Error: %v", err))
		return 1
	}

	// Graceful interruption: SIGTERM/SIGINT cancel the adapter's context and
	// announce the interruption before the process exits non-zero.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			lw.Send("Download interrupted by signal")
			cancel()
		case <-done:
		}
	}()

	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = cfg.DefaultEndpoint
	}
	scope := NewEnvScope(req.Platform, cfg, req.Token, endpoint)
	scope.Apply()

	fn := downloadFuncFor(req.Platform)
	if fn == nil {
		capErr := &CapabilityError{Platform: req.Platform, Reason: "no download adapter registered"}
		lw.Send(fmt.Sprintf("Error: %v", capErr))
		return 1
	}

	if err := fn(ctx, req, lw); err != nil {
		if ctx.Err() != nil {
			lw.Send(fmt.Sprintf("%s download cancelled", req.Platform))
			return 1
		}
		var capErr *CapabilityError
		if errors.As(err, &capErr) {
			lw.Send(fmt.Sprintf("Error: %v", capErr))
			return 1
		}
		lw.Send(fmt.Sprintf("Error during %s download: %v", req.Platform, err))
		return 1
	}

	lw.Send(fmt.Sprintf("%s download completed: %s", req.Platform, req.RepoDir()))
	return 0
}
