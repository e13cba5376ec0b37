// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPackage struct{ started bool }

func (s *stubPackage) Start(context.Context, string) ([]int, error) { s.started = true; return nil, nil }
func (s *stubPackage) Check(context.Context) bool                   { return true }
func (s *stubPackage) Finish(context.Context)                       {}
func (s *stubPackage) PackageFiles() []Artifact                     { return nil }
func (s *stubPackage) SetPIDs([]int)                                {}

func TestFactory_RegisterAndNew(t *testing.T) {
	f := NewFactory()
	stub := &stubPackage{}
	f.Register("stub", func(map[string]string) (Package, error) { return stub, nil })

	pkg, err := f.New("STUB", nil)
	require.NoError(t, err)
	_, err = pkg.Start(context.Background(), "target")
	require.NoError(t, err)
	assert.True(t, stub.started)
}

func TestFactory_UnknownNameErrors(t *testing.T) {
	f := NewFactory()
	_, err := f.New("nope", nil)
	assert.Error(t, err)
}

func TestFactory_DuplicateRegisterPanics(t *testing.T) {
	f := NewFactory()
	f.Register("dup", func(map[string]string) (Package, error) { return nil, nil })
	assert.Panics(t, func() {
		f.Register("dup", func(map[string]string) (Package, error) { return nil, nil })
	})
}

func TestChoosePackage(t *testing.T) {
	tests := []struct {
		fileType, fileName, want string
	}{
		{"PE32 executable", "sample.exe", "exe"},
		{"data", "sample.dll", "dll"},
		{"data", "invoice.docx", "doc"},
		{"data", "dropper.js", "js"},
		{"data", "report.pdf", "pdf"},
		{"data", "unknown.bin", "generic"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChoosePackage(tt.fileType, tt.fileName))
	}
}
