// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package auxiliary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/analyzer/pkg/registry"
)

const suspiciousScript = `
var shell = new ActiveXObject("WScript.Shell");
eval(unescape("%65%76%61%6c"));
`

func TestScriptTriage_FlagsSuspiciousCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dropper.js")
	require.NoError(t, os.WriteFile(path, []byte(suspiciousScript), 0o600))

	files := registry.NewFileRegistry(nil, "files", nil, nil)
	files.Add(path)

	triage := NewScriptTriageWithRegistry(files, nil)
	require.NoError(t, triage.Start(context.Background()))
	require.NoError(t, triage.Stop(context.Background()))
	require.NoError(t, triage.Finish(context.Background()))

	names := make([]string, 0)
	for _, f := range triage.Findings() {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "ActiveXObject")
	assert.Contains(t, names, "eval")
	assert.Contains(t, names, "unescape")
}

func TestScriptTriage_IgnoresNonJSFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "benign.txt")
	require.NoError(t, os.WriteFile(path, []byte(suspiciousScript), 0o600))

	files := registry.NewFileRegistry(nil, "files", nil, nil)
	files.Add(path)

	triage := NewScriptTriageWithRegistry(files, nil)
	require.NoError(t, triage.Stop(context.Background()))
	assert.Empty(t, triage.Findings())
}

func TestScriptTriage_CleanScriptHasNoFindings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clean.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log('hello');"), 0o600))

	files := registry.NewFileRegistry(nil, "files", nil, nil)
	files.Add(path)

	triage := NewScriptTriageWithRegistry(files, nil)
	require.NoError(t, triage.Stop(context.Background()))
	assert.Empty(t, triage.Findings())
}
