// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package downloader runs resumable, cancellable model-hub downloads in an
// isolated child process and streams their output back to a UI collaborator.
package downloader

import (
	"fmt"
	"net/url"
	"strings"
)

// Platform identifies a supported model hub.
type Platform string

const (
	PlatformHuggingFace Platform = "huggingface"
	PlatformModelScope  Platform = "modelscope"
)

// PlatformConfig is the static per-platform configuration: environment
// variable names, endpoints and SSL policy. Pure data, safe to share.
type PlatformConfig struct {
	TokenEnv        string
	EndpointEnv     string
	DefaultEndpoint string
	MirrorEndpoint  string
	SSLVerify       bool
}

// Auxiliary environment variables for the HuggingFace hub client. Their names
// are part of the external contract with the hub SDK, not ours to rename.
const (
	hfDisableSSLEnv = "HF_HUB_DISABLE_SSL_VERIFICATION"
	hfTransferEnv   = "HF_HUB_ENABLE_HF_TRANSFER"
	hfTimeoutEnv    = "HF_HUB_DOWNLOAD_TIMEOUT"
	hfConcurrentEnv = "HF_HUB_ENABLE_CONCURRENT_DOWNLOAD"
)

var platformConfigs = map[Platform]PlatformConfig{
	PlatformHuggingFace: {
		TokenEnv:        "HF_TOKEN",
		EndpointEnv:     "HF_ENDPOINT",
		DefaultEndpoint: "https://huggingface.co",
		MirrorEndpoint:  "https://hf-mirror.com",
		SSLVerify:       true,
	},
	PlatformModelScope: {
		TokenEnv:        "MODELSCOPE_API_TOKEN",
		EndpointEnv:     "MODELSCOPE_ENDPOINT",
		DefaultEndpoint: "https://modelscope.cn",
		MirrorEndpoint:  "",
		SSLVerify:       true,
	},
}

// SupportedPlatforms returns the statically known platform identifiers.
func SupportedPlatforms() []Platform {
	return []Platform{PlatformHuggingFace, PlatformModelScope}
}

// LookupPlatform returns the configuration for a platform identifier.
// Unknown identifiers fail with ErrUnsupportedPlatform.
func LookupPlatform(p Platform) (PlatformConfig, error) {
	cfg, ok := platformConfigs[p]
	if !ok {
		return PlatformConfig{}, fmt.Errorf("%w: %q (supported: huggingface, modelscope)", ErrUnsupportedPlatform, p)
	}
	return cfg, nil
}

// endpointIsMirror reports whether the endpoint points at the platform's known
// mirror host. This is the documented substring policy inherited from the hub
// client contract; it is a heuristic, so it lives in exactly one place.
func (c PlatformConfig) endpointIsMirror(endpoint string) bool {
	mirror := c.MirrorEndpoint
	if u, err := url.Parse(c.MirrorEndpoint); err == nil && u.Host != "" {
		mirror = u.Host
	}
	return mirror != "" && strings.Contains(endpoint, mirror)
}
