// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import "sync"

// Events holds the UI collaborator's handlers. Any handler may be nil.
// Handlers are invoked from the worker goroutines, never from the caller's
// goroutine; consumers marshal onto their own execution context.
type Events struct {
	Finished func()
	Error    func(message string)
	Status   func(message string)
	Log      func(message string)
}

// Emitter is a mutex-guarded facade in front of the Worker's observable
// events. Once invalidated it silently drops every emission, so events that
// arrive after the owning view has gone away cannot crash anything.
type Emitter struct {
	mu       sync.Mutex
	valid    bool
	alive    func() bool
	handlers Events
}

// NewEmitter creates a valid emitter. alive, when non-nil, is an extra
// liveness gate checked before every dispatch.
func NewEmitter(alive func() bool) *Emitter {
	return &Emitter{valid: true, alive: alive}
}

// Subscribe replaces the handler set.
func (e *Emitter) Subscribe(h Events) {
	e.mu.Lock()
	e.handlers = h
	e.mu.Unlock()
}

// Invalidate stops all further emissions.
func (e *Emitter) Invalidate() {
	e.mu.Lock()
	e.valid = false
	e.mu.Unlock()
}

// revive re-arms the emitter for a fresh attempt on the same Worker.
func (e *Emitter) revive() {
	e.mu.Lock()
	e.valid = true
	e.mu.Unlock()
}

// snapshot returns the handlers if dispatch is currently allowed.
func (e *Emitter) snapshot() (Events, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.valid {
		return Events{}, false
	}
	if e.alive != nil && !e.alive() {
		return Events{}, false
	}
	return e.handlers, true
}

// Finished signals successful completion.
func (e *Emitter) Finished() {
	if h, ok := e.snapshot(); ok && h.Finished != nil {
		h.Finished()
	}
}

// Error signals a failed or cancelled attempt.
func (e *Emitter) Error(message string) {
	if h, ok := e.snapshot(); ok && h.Error != nil {
		h.Error(message)
	}
}

// Status carries a human-readable state line.
func (e *Emitter) Status(message string) {
	if h, ok := e.snapshot(); ok && h.Status != nil {
		h.Status(message)
	}
}

// Log carries one line of download output.
func (e *Emitter) Log(message string) {
	if h, ok := e.snapshot(); ok && h.Log != nil {
		h.Log(message)
	}
}
