// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads the analysis configuration (spec.md §3, §6) from a
// YAML document, following the project's established YAML-configuration
// convention (struct with `yaml` tags, loaded/saved through
// gopkg.in/yaml.v3) rather than a bespoke key=value parser.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/analyzer/pkg/clock"
)

// Category is the analysis target kind.
type Category string

const (
	CategoryFile Category = "file"
	CategoryURL  Category = "url"
)

// AnalysisConfig is the immutable-after-load configuration for one
// analysis run (spec.md §3). It is parsed once at prepare time and never
// mutated afterward; every component that needs a configuration value
// reads it directly off this struct.
type AnalysisConfig struct {
	// Category is the target kind: "file" or "url".
	Category Category `yaml:"category"`

	// Target is the path (for file) or URL (for url) being analyzed.
	Target string `yaml:"target"`

	// FileName is the sample's original file name, used to resolve the
	// in-guest target path (spec.md §4.7 prepare phase) and to drive
	// automatic package selection. Only meaningful for CategoryFile.
	FileName string `yaml:"file_name,omitempty"`

	// FileType is a short type label (e.g. "pe32", "document") consulted
	// by automatic package selection when Package is empty (spec.md §4.6).
	FileType string `yaml:"file_type,omitempty"`

	// Package is the analysis package name. Empty selects automatic
	// package selection based on the target's file type (spec.md §4.6).
	Package string `yaml:"package,omitempty"`

	// MonitorLibrary is the default DLL/library path injected into newly
	// announced processes (spec.md §4.5).
	MonitorLibrary string `yaml:"monitor_library"`

	// TimeoutSeconds bounds the analysis run. Must be positive.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Clock is the wall-clock time to set inside the guest before
	// launching the target, formatted as clock.Layout
	// ("20060102T15:04:05", no zone offset). Empty leaves the guest
	// clock untouched.
	Clock string `yaml:"clock,omitempty"`

	// EnforceTimeout forces the full timeout to elapse even if the
	// tracked process set becomes empty early.
	EnforceTimeout bool `yaml:"enforce_timeout"`

	// TerminateProcesses requests that tracked processes be terminated
	// at finalization rather than left running.
	TerminateProcesses bool `yaml:"terminate_processes"`

	// Options is a free-form string map passed through to the selected
	// package and to auxiliary modules.
	Options map[string]string `yaml:"options,omitempty"`

	// ProtectedNames lists executable basenames (case-insensitive) that
	// the injection policy must never inject into (spec.md §4.5).
	ProtectedNames []string `yaml:"protected_names,omitempty"`

	// Auxiliaries names which auxiliary modules to start alongside the
	// package (spec.md §4.6). Unknown names are not checked at load time;
	// the launch phase logs and skips them.
	Auxiliaries []string `yaml:"auxiliaries,omitempty"`
}

// Load reads and validates an AnalysisConfig from path.
func Load(path string) (*AnalysisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg AnalysisConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating or truncating the file.
func Save(cfg *AnalysisConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the invariants spec.md §3 assumes hold for the lifetime
// of the run.
func (c *AnalysisConfig) Validate() error {
	switch c.Category {
	case CategoryFile, CategoryURL:
	default:
		return fmt.Errorf("category must be %q or %q, got %q", CategoryFile, CategoryURL, c.Category)
	}
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.Category == CategoryFile && strings.TrimSpace(c.FileName) == "" {
		return fmt.Errorf("file_name is required when category is %q", CategoryFile)
	}
	if c.Clock != "" {
		if _, err := time.Parse(clock.Layout, c.Clock); err != nil {
			return fmt.Errorf("clock must match layout %q: %w", clock.Layout, err)
		}
	}
	return nil
}

// GetOption returns an option value and whether it was present, mirroring
// the package/auxiliary options lookup used throughout spec.md §4.6.
func (c *AnalysisConfig) GetOption(key string) (string, bool) {
	v, ok := c.Options[key]
	return v, ok
}

// TargetPath resolves the in-guest path the package should launch (spec.md
// §4.7 prepare phase): for a file category, the configured file name
// joined onto tempDir; for url, the target string verbatim.
func (c *AnalysisConfig) TargetPath(tempDir string) string {
	if c.Category == CategoryURL {
		return c.Target
	}
	return filepath.Join(tempDir, c.FileName)
}
