// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
category: file
target: C:\users\public\sample.exe
file_name: sample.exe
monitor_library: monitor.dll
timeout_seconds: 120
enforce_timeout: true
terminate_processes: true
protected_names:
  - explorer.exe
  - svchost.exe
auxiliaries:
  - script-triage
options:
  arguments: "-silent"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_ParsesAllFields(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CategoryFile, cfg.Category)
	assert.Equal(t, `C:\users\public\sample.exe`, cfg.Target)
	assert.Equal(t, "monitor.dll", cfg.MonitorLibrary)
	assert.Equal(t, 120, cfg.TimeoutSeconds)
	assert.True(t, cfg.EnforceTimeout)
	assert.True(t, cfg.TerminateProcesses)
	assert.ElementsMatch(t, []string{"explorer.exe", "svchost.exe"}, cfg.ProtectedNames)
	assert.Equal(t, []string{"script-triage"}, cfg.Auxiliaries)
	val, ok := cfg.GetOption("arguments")
	assert.True(t, ok)
	assert.Equal(t, "-silent", val)
}

func TestLoad_RejectsMissingTarget(t *testing.T) {
	path := writeConfig(t, "category: file\ntimeout_seconds: 10\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadCategory(t *testing.T) {
	path := writeConfig(t, "category: disk\ntarget: x\ntimeout_seconds: 10\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveTimeout(t *testing.T) {
	path := writeConfig(t, "category: url\ntarget: http://example.test\ntimeout_seconds: 0\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsFileCategoryWithoutFileName(t *testing.T) {
	path := writeConfig(t, "category: file\ntarget: C:\\sample.exe\ntimeout_seconds: 10\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_AllowsURLCategoryWithoutFileName(t *testing.T) {
	path := writeConfig(t, "category: url\ntarget: http://example.test\ntimeout_seconds: 10\n")
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoad_RejectsMalformedClock(t *testing.T) {
	path := writeConfig(t, "category: url\ntarget: http://example.test\ntimeout_seconds: 10\nclock: 2026-03-05T09:00:00Z\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_AcceptsClockInDocumentedLayout(t *testing.T) {
	path := writeConfig(t, "category: url\ntarget: http://example.test\ntimeout_seconds: 10\nclock: \"20260305T09:00:00\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "20260305T09:00:00", cfg.Clock)
}

func TestSave_RoundTrips(t *testing.T) {
	cfg := &AnalysisConfig{
		Category:       CategoryURL,
		Target:         "http://example.test",
		TimeoutSeconds: 60,
		Options:        map[string]string{"k": "v"},
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Target, loaded.Target)
	assert.Equal(t, cfg.Options, loaded.Options)
}
