// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	// pollInterval bounds every blocking wait in the worker so cancellation
	// is observed with low latency.
	pollInterval = 100 * time.Millisecond

	// readerJoinTimeout bounds how long teardown waits for the output reader.
	readerJoinTimeout = 1 * time.Second

	// terminateWait is how long a signalled child gets before it is killed.
	terminateWait = 3 * time.Second

	killSettle = 100 * time.Millisecond
)

// WorkerCommand is the hidden CLI command name the orchestrator re-executes
// itself with to run the isolated child process.
const WorkerCommand = "worker"

// Worker orchestrates one download attempt: it owns the run goroutine, the
// isolated child process, the output-reader goroutine and the cleanup of
// locks, environment and channel handles on every exit path. One Worker
// drives one request; at most one attempt is active at a time.
type Worker struct {
	req     Request
	cfg     PlatformConfig
	scope   *EnvScope
	emitter *Emitter

	cancelled atomic.Bool
	running   atomic.Bool

	mu           sync.Mutex
	attempt      uint64
	terminalSent bool
	lastError    string
	cmd          *exec.Cmd
	pipeR        *os.File
	pipeW        *os.File
	readerDone   chan struct{}
	runDone      chan struct{}

	// spawn builds the child command; replaceable in tests.
	spawn func(req Request) (*exec.Cmd, error)
}

// NewWorker validates the request and builds an idle Worker. Unknown
// platforms and malformed repository IDs are rejected here, before any
// goroutine or process exists.
func NewWorker(platform Platform, repoID, savePath, token, endpoint string, kind RepoKind) (*Worker, error) {
	cfg, err := LookupPlatform(platform)
	if err != nil {
		return nil, err
	}
	if !IsValidRepoID(repoID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepo, repoID)
	}
	if savePath == "" {
		return nil, fmt.Errorf("missing save path")
	}
	if endpoint == "" {
		endpoint = cfg.DefaultEndpoint
	}
	if kind == "" {
		kind = RepoKindModel
	}
	if kind != RepoKindModel && kind != RepoKindDataset {
		return nil, fmt.Errorf("invalid repo kind %q (expected model or dataset)", kind)
	}

	w := &Worker{
		req: Request{
			Platform: platform,
			RepoID:   repoID,
			SavePath: savePath,
			Token:    token,
			Endpoint: endpoint,
			RepoKind: kind,
		},
		cfg: cfg,
	}
	w.scope = NewEnvScope(platform, cfg, token, endpoint)
	w.emitter = NewEmitter(nil)
	w.spawn = spawnWorkerProcess
	return w, nil
}

// Subscribe installs the UI collaborator's event handlers.
func (w *Worker) Subscribe(h Events) { w.emitter.Subscribe(h) }

// Request returns the immutable request this worker drives.
func (w *Worker) Request() Request { return w.req }

// RepoDir is the deterministic target directory for this attempt.
func (w *Worker) RepoDir() string { return w.req.RepoDir() }

// Running reports whether an attempt is in flight.
func (w *Worker) Running() bool { return w.running.Load() }

// Done returns a channel closed when the current attempt's run goroutine has
// fully exited, or nil if no attempt was started. Window-close flows cancel
// and then wait (bounded) on this before letting the process exit.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runDone
}

// Start launches the attempt. Not re-entrant: a second Start while running is
// a no-op. A fresh attempt always begins with a cleared cancellation flag and
// a new attempt number; teardown work belonging to an earlier attempt checks
// that number and cannot touch this one.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	w.cancelled.Store(false)
	w.mu.Lock()
	w.attempt++
	gen := w.attempt
	w.terminalSent = false
	w.lastError = ""
	w.runDone = make(chan struct{})
	runDone := w.runDone
	w.emitter.revive()
	w.mu.Unlock()
	go w.run(runDone, gen)
}

// Cancel requests cancellation of the running attempt. Safe to call when
// idle (no-op), safe to call concurrently with the run goroutine's own
// teardown, and bounded: terminate, wait up to terminateWait, then kill.
func (w *Worker) Cancel() {
	if !w.running.Load() {
		return
	}
	w.cancelled.Store(true)

	w.mu.Lock()
	gen := w.attempt
	cmd := w.cmd
	readerDone := w.readerDone
	w.mu.Unlock()

	if readerDone != nil {
		select {
		case <-readerDone:
		case <-time.After(readerJoinTimeout):
		}
	}

	if cmd != nil && cmd.Process != nil {
		terminate(cmd.Process)
		deadline := time.Now().Add(terminateWait)
		for processAlive(cmd.Process) && time.Now().Before(deadline) {
			time.Sleep(pollInterval)
		}
		if processAlive(cmd.Process) {
			_ = cmd.Process.Kill()
			time.Sleep(killSettle)
		}
	}

	w.fail(gen, fmt.Sprintf("%s %s", w.req.Platform, cancelledSuffix))
	w.cleanup(gen)
	// The run goroutine observes the flag and performs its own orderly exit;
	// it is never joined from here, since Cancel may run on its call path.
}

// Close tears the worker down permanently: cancels any running attempt and
// drops the endpoint variable that Restore deliberately preserves.
func (w *Worker) Close() {
	w.Cancel()
	w.emitter.Invalidate()
	w.scope.Teardown()
}

// run is the worker goroutine body. Every code path executes cleanup and then
// resets the running flag, in that order: a restart admitted mid-teardown
// would otherwise have its pipes and process handle nilled out from under it.
// No panic escapes.
func (w *Worker) run(runDone chan struct{}, gen uint64) {
	defer close(runDone)
	defer func() {
		if r := recover(); r != nil {
			w.fail(gen, fmt.Sprintf("%s download worker panic: %v", w.req.Platform, r))
		}
		w.cleanup(gen)
		w.running.Store(false)
	}()

	repoDir := w.req.RepoDir()
	CleanLockFiles(repoDir)

	w.emitter.Status(fmt.Sprintf("Downloading %s %s repository to %s...", w.req.Platform, w.req.RepoKind, repoDir))
	w.emitter.Log(fmt.Sprintf("Starting %s download of %s to %s", w.req.Platform, w.req.RepoID, repoDir))

	if w.cancelled.Load() {
		w.fail(gen, fmt.Sprintf("%s %s", w.req.Platform, cancelledSuffix))
		return
	}

	cmd, err := w.spawn(w.req)
	if err != nil {
		w.fail(gen, fmt.Sprintf("failed to prepare download process: %v", err))
		return
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		w.fail(gen, fmt.Sprintf("failed to open output channel: %v", err))
		return
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		w.fail(gen, fmt.Sprintf("failed to spawn download process: %v", err))
		return
	}
	// The child holds the write end now; dropping ours guarantees the reader
	// sees EOF when the child dies without sending the sentinel.
	pw.Close()

	readerDone := make(chan struct{})
	w.mu.Lock()
	w.cmd = cmd
	w.pipeR = pr
	w.pipeW = nil
	w.readerDone = readerDone
	w.mu.Unlock()

	go func() {
		defer close(readerDone)
		forwardLines(pr, func(line string) {
			w.noteOutput(line)
			w.emitter.Log(line)
		})
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	ticker := time.NewTicker(pollInterval)
	signalled := false
WAIT:
	for {
		select {
		case waitErr = <-waitCh:
			break WAIT
		case <-ticker.C:
			if w.cancelled.Load() && !signalled {
				signalled = true
				terminate(cmd.Process)
			}
		}
	}
	ticker.Stop()

	// The terminal event must come after the reader has stopped, so the UI
	// never sees a log line for this attempt after finished/error.
	select {
	case <-readerDone:
	case <-time.After(readerJoinTimeout):
	}

	switch {
	case w.cancelled.Load():
		w.fail(gen, fmt.Sprintf("%s %s", w.req.Platform, cancelledSuffix))
	case waitErr == nil:
		CleanLockFiles(repoDir)
		w.emitter.Log(fmt.Sprintf("%s %s downloaded successfully to: %s", w.req.Platform, w.req.RepoKind, repoDir))
		w.finish(gen)
	default:
		// State may be inconsistent, but stale locks would block the resume.
		CleanLockFiles(repoDir)
		msg := fmt.Sprintf("%s download process failed", w.req.Platform)
		if detail := w.lastOutputError(); detail != "" {
			msg += ": " + detail
		}
		w.fail(gen, msg)
	}
}

// noteOutput remembers the most recent error-looking line from the channel so
// the terminal error event can carry the child's diagnostic, not just an exit
// code.
func (w *Worker) noteOutput(line string) {
	if strings.Contains(line, "Error") || strings.Contains(line, "error:") {
		w.mu.Lock()
		w.lastError = line
		w.mu.Unlock()
	}
}

func (w *Worker) lastOutputError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// finish emits the finished event, at most once per attempt. A call carrying
// an earlier attempt number is stale and dropped.
func (w *Worker) finish(gen uint64) {
	w.mu.Lock()
	if gen != w.attempt || w.terminalSent {
		w.mu.Unlock()
		return
	}
	w.terminalSent = true
	w.mu.Unlock()
	w.emitter.Finished()
}

// fail emits the error event, at most once per attempt. A call carrying an
// earlier attempt number is stale and dropped.
func (w *Worker) fail(gen uint64, message string) {
	w.mu.Lock()
	if gen != w.attempt || w.terminalSent {
		w.mu.Unlock()
		return
	}
	w.terminalSent = true
	w.mu.Unlock()
	w.emitter.Log(fmt.Sprintf("%s Error: %s", w.req.Platform, message))
	w.emitter.Error(message)
}

// cleanup releases every per-attempt resource: environment (endpoint
// preserved), channel handles, process/goroutine references and stray lock
// files. Idempotent and order-independent; sub-step failures are aggregated
// into a single warning instead of aborting the remaining steps. A call
// carrying an earlier attempt number is stale and must not touch the state of
// a newer attempt that has since started.
func (w *Worker) cleanup(gen uint64) {
	var problems []string

	w.mu.Lock()
	if gen != w.attempt {
		w.mu.Unlock()
		return
	}
	w.scope.Restore()

	if w.pipeR != nil {
		if err := w.pipeR.Close(); err != nil {
			problems = append(problems, fmt.Sprintf("pipe close failed: %v", err))
		}
		w.pipeR = nil
	}
	if w.pipeW != nil {
		if err := w.pipeW.Close(); err != nil {
			problems = append(problems, fmt.Sprintf("pipe close failed: %v", err))
		}
		w.pipeW = nil
	}

	w.cmd = nil
	w.readerDone = nil
	w.mu.Unlock()

	CleanLockFiles(w.req.RepoDir())

	if len(problems) > 0 {
		w.emitter.Log(fmt.Sprintf("Warning: some %s cleanup operations failed: %s",
			w.req.Platform, strings.Join(problems, "; ")))
	}

	// Invalidation is gated the same way: a stale cleanup racing a restart
	// must not silence the new attempt's emitter.
	w.mu.Lock()
	if gen == w.attempt {
		w.emitter.Invalidate()
	}
	w.mu.Unlock()
}

// spawnWorkerProcess re-executes the current binary with the hidden worker
// command, handing it the request as JSON on stdin. Spawning (not forking)
// is the isolation boundary: the child inherits no UI state or threads.
func spawnWorkerProcess(req Request) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(exe, WorkerCommand)
	cmd.Stdin = bytes.NewReader(payload)
	return cmd, nil
}

// terminate asks the child to exit gracefully. On platforms where TERM
// delivery is unsupported the signal call errors, and we fall back to a hard
// kill rather than leaving the child running.
func terminate(p *os.Process) {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		_ = p.Kill()
	}
}

// processAlive probes liveness without consuming the exit status, which
// belongs to the run goroutine's Wait.
func processAlive(p *os.Process) bool {
	return p.Signal(syscall.Signal(0)) == nil
}
