// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"errors"
	"testing"
)

func TestLookupPlatform(t *testing.T) {
	t.Run("huggingface", func(t *testing.T) {
		cfg, err := LookupPlatform(PlatformHuggingFace)
		if err != nil {
			t.Fatalf("LookupPlatform failed: %v", err)
		}
		if cfg.TokenEnv != "HF_TOKEN" {
			t.Errorf("Expected token env HF_TOKEN, got %s", cfg.TokenEnv)
		}
		if cfg.DefaultEndpoint != "https://huggingface.co" {
			t.Errorf("Unexpected default endpoint %s", cfg.DefaultEndpoint)
		}
	})

	t.Run("modelscope", func(t *testing.T) {
		cfg, err := LookupPlatform(PlatformModelScope)
		if err != nil {
			t.Fatalf("LookupPlatform failed: %v", err)
		}
		if cfg.TokenEnv != "MODELSCOPE_API_TOKEN" {
			t.Errorf("Expected token env MODELSCOPE_API_TOKEN, got %s", cfg.TokenEnv)
		}
		if cfg.EndpointEnv != "MODELSCOPE_ENDPOINT" {
			t.Errorf("Unexpected endpoint env %s", cfg.EndpointEnv)
		}
	})

	t.Run("unknown platform is rejected", func(t *testing.T) {
		_, err := LookupPlatform("gitlab")
		if !errors.Is(err, ErrUnsupportedPlatform) {
			t.Errorf("Expected ErrUnsupportedPlatform, got %v", err)
		}
	})

	t.Run("empty platform is rejected", func(t *testing.T) {
		_, err := LookupPlatform("")
		if !errors.Is(err, ErrUnsupportedPlatform) {
			t.Errorf("Expected ErrUnsupportedPlatform, got %v", err)
		}
	})
}

func TestSupportedPlatforms(t *testing.T) {
	platforms := SupportedPlatforms()
	if len(platforms) != 2 {
		t.Fatalf("Expected 2 platforms, got %d", len(platforms))
	}
	for _, p := range platforms {
		if _, err := LookupPlatform(p); err != nil {
			t.Errorf("Supported platform %q failed lookup: %v", p, err)
		}
	}
}

func TestEndpointIsMirror(t *testing.T) {
	hf := platformConfigs[PlatformHuggingFace]
	ms := platformConfigs[PlatformModelScope]

	cases := []struct {
		name     string
		cfg      PlatformConfig
		endpoint string
		want     bool
	}{
		{"hf mirror endpoint", hf, "https://hf-mirror.com", true},
		{"hf mirror with path", hf, "https://hf-mirror.com/", true},
		{"hf official endpoint", hf, "https://huggingface.co", false},
		{"hf empty endpoint", hf, "", false},
		{"modelscope has no mirror", ms, "https://modelscope.cn", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.endpointIsMirror(tc.endpoint); got != tc.want {
				t.Errorf("endpointIsMirror(%q) = %v, want %v", tc.endpoint, got, tc.want)
			}
		})
	}
}
