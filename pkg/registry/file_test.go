// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/analyzer/pkg/metrics"
)

type recordingUploader struct {
	calls []struct{ local, remote string }
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, local, remote string) error {
	if u.err != nil {
		return u.err
	}
	u.calls = append(u.calls, struct{ local, remote string }{local, remote})
	return nil
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileRegistry_AddIsCaseInsensitiveAndDeduped(t *testing.T) {
	f := NewFileRegistry(nil, "files", nil, nil)
	f.Add(`C:\Temp\Drop.bin`)
	f.Add(`c:\temp\drop.bin`)
	assert.Equal(t, []string{`c:\temp\drop.bin`}, f.Snapshot())
}

func TestFileRegistry_DumpMissingFileWarnsAndSkips(t *testing.T) {
	uploader := &recordingUploader{}
	f := NewFileRegistry(uploader, "files", nil, nil)
	f.Dump(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	assert.Empty(t, uploader.calls)
}

func TestFileRegistry_DumpUploadsOnceByDigest(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "drop.bin", "same content")

	uploader := &recordingUploader{}
	f := NewFileRegistry(uploader, "files", nil, nil)

	f.Dump(context.Background(), path)
	f.Dump(context.Background(), path)

	require.Len(t, uploader.calls, 1)
	assert.Contains(t, uploader.calls[0].remote, "drop.bin")
}

func TestFileRegistry_DumpDoesNotRecordDigestOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "drop.bin", "content")

	uploader := &recordingUploader{err: assert.AnError}
	f := NewFileRegistry(uploader, "files", nil, nil)

	f.Dump(context.Background(), path)
	assert.Empty(t, f.dumped)
}

func TestFileRegistry_MoveThenDumpAllUploadsUnderNewPath(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.bin")
	newPath := writeTempFile(t, dir, "new.bin", "moved content")

	uploader := &recordingUploader{}
	f := NewFileRegistry(uploader, "files", nil, nil)

	f.Add(oldPath)
	f.Move(oldPath, newPath)
	f.DumpAll(context.Background())

	require.Len(t, uploader.calls, 1)
	assert.Contains(t, uploader.calls[0].remote, "new.bin")
}

func TestFileRegistry_MoveNoOpWhenOldNotTracked(t *testing.T) {
	f := NewFileRegistry(nil, "files", nil, nil)
	f.Move("untracked.bin", "renamed.bin")
	assert.Empty(t, f.Snapshot())
}

func TestFileRegistry_DeleteDumpsThenRemoves(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "drop.bin", "content")

	uploader := &recordingUploader{}
	f := NewFileRegistry(uploader, "files", nil, nil)
	f.Add(path)

	f.Delete(context.Background(), path)

	require.Len(t, uploader.calls, 1)
	assert.Empty(t, f.Snapshot())
}

func TestFileRegistry_DumpIncrementsFilesDumpedMetricOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "drop.bin", "content")

	m := metrics.New()
	uploader := &recordingUploader{}
	f := NewFileRegistry(uploader, "files", nil, m)

	f.Dump(context.Background(), path)
	assert.Equal(t, 1, m.Snapshot().FilesDumped)
}

func TestFileRegistry_DumpDoesNotIncrementMetricOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "drop.bin", "content")

	m := metrics.New()
	uploader := &recordingUploader{err: assert.AnError}
	f := NewFileRegistry(uploader, "files", nil, m)

	f.Dump(context.Background(), path)
	assert.Equal(t, 0, m.Snapshot().FilesDumped)
}

// TestFileRegistry_NoDigestUploadedTwice exercises the spec.md §8 property
// across a mixed sequence of add/delete/dump_all.
func TestFileRegistry_NoDigestUploadedTwice(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "drop.bin", "identical bytes")

	uploader := &recordingUploader{}
	f := NewFileRegistry(uploader, "files", nil, nil)

	f.Add(path)
	f.Dump(context.Background(), path)
	f.Add(path)
	f.DumpAll(context.Background())
	f.Delete(context.Background(), path)

	assert.Len(t, uploader.calls, 1)
}
