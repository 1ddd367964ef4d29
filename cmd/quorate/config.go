// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the CLI's file locations. Loaded from a single YAML
// file named by --config or QUORATE_CONFIG; no discovery, no hidden
// overrides.
type Config struct {
	// IdentityPath is the sealed identity bundle written by keygen
	// and read by every subcommand that signs.
	IdentityPath string `yaml:"identity_path"`

	// StorePath is the SQLite share store used by the shares
	// subcommand.
	StorePath string `yaml:"store_path"`
}

// defaultConfig returns the paths used when no config file names
// others.
func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	root := filepath.Join(home, ".local", "share", "quorate")
	return &Config{
		IdentityPath: filepath.Join(root, "identity.age"),
		StorePath:    filepath.Join(root, "shares.db"),
	}
}

// loadConfig merges the named file (or QUORATE_CONFIG, or nothing)
// over the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv("QUORATE_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
