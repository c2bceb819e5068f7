// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"os"
)

// EnvScope owns the process-wide environment variables one download attempt
// needs: auth token, endpoint and the platform's auxiliary toggles.
//
// Apply runs inside the short-lived child process, so the hub client SDK
// contract (configuration via environment) never leaks into the long-lived
// parent. Restore runs in whichever process needs its environment back:
// token and SSL toggles are cleared, but the endpoint variable keeps the
// value it had when Restore started, so a cancel-then-retry flow within the
// same session reuses the configured endpoint. Teardown drops the endpoint
// as well and is reserved for permanent shutdown.
type EnvScope struct {
	platform Platform
	cfg      PlatformConfig
	token    string
	endpoint string
}

// NewEnvScope builds a scope for one request. endpoint must already be
// resolved (request override or platform default).
func NewEnvScope(platform Platform, cfg PlatformConfig, token, endpoint string) *EnvScope {
	return &EnvScope{platform: platform, cfg: cfg, token: token, endpoint: endpoint}
}

// Apply writes the scope into the current process environment.
func (s *EnvScope) Apply() {
	if s.token != "" {
		os.Setenv(s.cfg.TokenEnv, s.token)
	}
	if s.endpoint != "" {
		os.Setenv(s.cfg.EndpointEnv, s.endpoint)
	}
	if s.platform == PlatformHuggingFace {
		if s.cfg.endpointIsMirror(s.endpoint) {
			os.Setenv(hfDisableSSLEnv, "1")
		} else {
			os.Unsetenv(hfDisableSSLEnv)
		}
		os.Setenv(hfTransferEnv, "0")
		os.Setenv(hfTimeoutEnv, "300")
		os.Setenv(hfConcurrentEnv, "1")
	}
}

// InsecureSkipVerify reports whether TLS verification should be disabled for
// this scope's endpoint.
func (s *EnvScope) InsecureSkipVerify() bool {
	return s.platform == PlatformHuggingFace && s.cfg.endpointIsMirror(s.endpoint)
}

// Restore clears the token and auxiliary variables while preserving the
// endpoint value observed on entry. Idempotent.
func (s *EnvScope) Restore() {
	endpoint, hadEndpoint := os.LookupEnv(s.cfg.EndpointEnv)

	os.Unsetenv(s.cfg.TokenEnv)
	os.Unsetenv(s.cfg.EndpointEnv)
	if s.platform == PlatformHuggingFace {
		os.Unsetenv(hfDisableSSLEnv)
		os.Unsetenv(hfTransferEnv)
		os.Unsetenv(hfTimeoutEnv)
		os.Unsetenv(hfConcurrentEnv)
	}

	if hadEndpoint {
		os.Setenv(s.cfg.EndpointEnv, endpoint)
	}
}

// Teardown is Restore without the endpoint exemption, for permanent shutdown.
func (s *EnvScope) Teardown() {
	s.Restore()
	os.Unsetenv(s.cfg.EndpointEnv)
}
