// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kraklabs/analyzer/pkg/metrics"
)

// Uploader is the host upload channel seam (spec.md §6, "Host upload
// channel"). Implementations live in pkg/upload.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteRelPath string) error
}

// FileRegistry tracks dropped files in insertion order and the set of
// content digests already uploaded, so a file is never uploaded twice
// (spec.md §4.2).
type FileRegistry struct {
	mu     sync.Mutex
	paths  []string // lowercased, insertion order, unique
	dumped map[string]struct{}

	uploader Uploader
	remoteNS string // e.g. "files" or "package_files"
	logger   *slog.Logger
	metrics  *metrics.Registry
}

// NewFileRegistry builds a FileRegistry that uploads through uploader,
// namespacing remote paths under remoteNS/ (spec.md §6: "files/" for
// dropped files, "package_files/" for package artifacts). m may be nil,
// in which case Dump's success is not counted (e.g. in tests that don't
// care about metrics).
func NewFileRegistry(uploader Uploader, remoteNS string, logger *slog.Logger, m *metrics.Registry) *FileRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRegistry{
		dumped:   make(map[string]struct{}),
		uploader: uploader,
		remoteNS: remoteNS,
		logger:   logger,
		metrics:  m,
	}
}

func (f *FileRegistry) indexLocked(path string) int {
	for i, p := range f.paths {
		if p == path {
			return i
		}
	}
	return -1
}

// Add inserts path (lowercased) if not already present.
func (f *FileRegistry) Add(path string) {
	lower := strings.ToLower(path)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexLocked(lower) >= 0 {
		return
	}
	f.paths = append(f.paths, lower)
	f.logger.Info("file registry: added", "path", lower)
}

// Move renames an already-tracked path in place, preserving its index.
// No-op if old is not tracked.
func (f *FileRegistry) Move(oldPath, newPath string) {
	oldLower := strings.ToLower(oldPath)
	newLower := strings.ToLower(newPath)

	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.indexLocked(oldLower); idx >= 0 {
		f.paths[idx] = newLower
	}
}

// Dump uploads path if it currently exists on disk and its digest has not
// already been uploaded. Returns silently (with a warning log) if the
// file does not exist — the monitor may notify after a transient
// create/delete. I/O or transport failures are logged and the digest is
// not recorded, so a later retry (e.g. at finalization) may succeed.
func (f *FileRegistry) Dump(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		f.logger.Warn("file registry: dump skipped, file missing", "path", path)
		return
	}

	digest, err := hashFile(path)
	if err != nil {
		f.logger.Error("file registry: hash failed", "path", path, "err", err)
		return
	}

	f.mu.Lock()
	if _, already := f.dumped[digest]; already {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	remoteName := fmt.Sprintf("%s_%s", digest[:16], filepath.Base(path))
	remotePath := filepath.Join(f.remoteNS, remoteName)

	if f.uploader == nil {
		return
	}
	if err := f.uploader.Upload(ctx, path, remotePath); err != nil {
		f.logger.Error("file registry: upload failed", "path", path, "err", err)
		if f.metrics != nil {
			f.metrics.UploadFailures.Inc()
		}
		return
	}

	f.mu.Lock()
	f.dumped[digest] = struct{}{}
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.FilesDumped.Inc()
	}
}

// Delete dumps path immediately (so its content is not lost) then removes
// it from the tracked list.
func (f *FileRegistry) Delete(ctx context.Context, path string) {
	f.Dump(ctx, path)

	lower := strings.ToLower(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.indexLocked(lower); idx >= 0 {
		f.paths = append(f.paths[:idx], f.paths[idx+1:]...)
	}
}

// DumpAll dumps every tracked file, in insertion order, best-effort — one
// failure never aborts the rest.
func (f *FileRegistry) DumpAll(ctx context.Context) {
	f.mu.Lock()
	snapshot := make([]string, len(f.paths))
	copy(snapshot, f.paths)
	f.mu.Unlock()

	for _, path := range snapshot {
		f.Dump(ctx, path)
	}
}

// Snapshot returns the tracked paths in insertion order.
func (f *FileRegistry) Snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.paths))
	copy(out, f.paths)
	return out
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
