// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the package.
var (
	// ErrUnsupportedPlatform is returned when a platform identifier is not
	// one of the statically known platforms. It is fatal to Worker construction.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrInvalidRepo is returned when the repository ID is malformed.
	ErrInvalidRepo = errors.New("invalid repository ID: expected owner/name or bare name")

	// ErrAlreadyRunning is returned when a download is requested while one
	// is already active.
	ErrAlreadyRunning = errors.New("a download is already running")
)

// CapabilityError reports that the client capability required for a platform
// is not available in this build, as opposed to a transfer that was attempted
// and failed.
type CapabilityError struct {
	Platform Platform
	Reason   string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s support unavailable: %s", e.Platform, e.Reason)
}

// TransferError wraps an adapter-level failure (network, auth, not-found, SSL)
// with the platform and file context it happened in.
type TransferError struct {
	Platform Platform
	Path     string
	Err      error
}

func (e *TransferError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s transfer failed for %s: %v", e.Platform, e.Path, e.Err)
	}
	return fmt.Sprintf("%s transfer failed: %v", e.Platform, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// cancelledSuffix is the marker UI collaborators classify on to tell user
// cancellation apart from a genuine failure.
const cancelledSuffix = "download cancelled by user"

// IsCancellation reports whether an error event message describes a user
// cancellation rather than a transfer failure.
func IsCancellation(message string) bool {
	return strings.Contains(message, cancelledSuffix)
}
