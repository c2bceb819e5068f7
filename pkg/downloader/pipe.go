// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// doneSentinel is the reserved completion message. The isolated runner always
// emits it last; the parent's reader loop terminates on it without forwarding
// it as a log line.
const doneSentinel = "DOWNLOAD_COMPLETE"

// LineWriter adapts a byte stream into the output channel's line protocol.
// It buffers partial writes and only forwards whole lines, and it coalesces
// carriage-return progress bursts (the way progress bars redraw) so that only
// the latest state per burst crosses the process boundary.
//
// Delivery is best-effort telemetry: once the underlying pipe breaks, writes
// are swallowed silently. The authoritative success signal is the child
// process exit code, never the pipe contents.
type LineWriter struct {
	mu           sync.Mutex
	w            io.Writer
	buf          string
	lastProgress string
	closed       bool
}

// NewLineWriter wraps w, typically the child's standard output.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// Send forwards one complete line.
func (lw *LineWriter) Send(line string) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.send(line)
}

// send assumes lw.mu is held.
func (lw *LineWriter) send(line string) {
	if lw.closed || lw.w == nil {
		return
	}
	if _, err := io.WriteString(lw.w, line+"\n"); err != nil {
		lw.closed = true
	}
}

// Write implements io.Writer for progress bars and redirected diagnostics.
func (lw *LineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.closed {
		return len(p), nil
	}

	text := string(p)
	switch {
	case strings.ContainsRune(text, '\r'):
		// Progress redraw: keep only the state after the last carriage return.
		parts := strings.Split(text, "\r")
		lw.buf = parts[len(parts)-1]
		if strings.TrimSpace(lw.buf) != "" && lw.buf != lw.lastProgress {
			lw.send(lw.buf)
			lw.lastProgress = lw.buf
		}
	case strings.ContainsRune(text, '\n'):
		lw.buf += text
		lines := strings.Split(lw.buf, "\n")
		lw.buf = lines[len(lines)-1]
		for _, line := range lines[:len(lines)-1] {
			if strings.TrimSpace(line) != "" && line != lw.lastProgress {
				lw.send(line)
			}
		}
	default:
		lw.buf += text
	}
	return len(p), nil
}

// Flush forwards any buffered partial line.
func (lw *LineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if strings.TrimSpace(lw.buf) != "" && lw.buf != lw.lastProgress {
		lw.send(lw.buf)
	}
	lw.buf = ""
}

// SendDone emits the completion sentinel.
func (lw *LineWriter) SendDone() {
	lw.Send(doneSentinel)
}

// Close drops the underlying writer. Later writes are discarded.
func (lw *LineWriter) Close() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.closed = true
	lw.w = nil
}

// forwardLines drains the reader side of the output channel, invoking emit for
// every line until the sentinel, EOF or a read error. Single producer, single
// consumer: lines arrive in the order the child emitted them.
func forwardLines(r io.Reader, emit func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == doneSentinel {
			return
		}
		emit(line)
	}
}
