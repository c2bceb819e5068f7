// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// applyConfigDefaults layers config-file values under flags that were not set
// on the command line. Looks for an explicit --config path first, then
// ~/.config/unidownloader.{json,yaml,yml}.
func applyConfigDefaults(cmd *cobra.Command, ro *RootOpts, output, platform, endpoint *string) error {
	path := ro.Config
	if path == "" {
		home, _ := os.UserHomeDir()
		for _, candidate := range []string{
			filepath.Join(home, ".config", "unidownloader.json"),
			filepath.Join(home, ".config", "unidownloader.yaml"),
			filepath.Join(home, ".config", "unidownloader.yml"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setStr := func(flagName string, dst *string) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			*dst = fmt.Sprint(v)
		}
	}

	setStr("output", output)
	setStr("platform", platform)
	setStr("endpoint", endpoint)

	if !cmd.Flags().Changed("token") && ro.Token == "" {
		if v, ok := cfg["token"]; ok && v != nil {
			ro.Token = fmt.Sprint(v)
		}
	}

	return nil
}
