// Copyright 2026 the analyzer authors
// SPDX-License-Identifier: Apache-2.0

package contract

import (
	"os"
	"strconv"
)

const (
	// BufferChunk is the read chunk size, mirroring the 4 KiB send/receive
	// buffers spec.md §4.3 specifies for each pipe instance.
	BufferChunk = 4096

	// DefaultMaxMessageBytes is the baseline ceiling on one assembled
	// command message (after concatenating "more data" continuations).
	DefaultMaxMessageBytes = 64 << 10 // 64 KiB

	// MaxPathBytes bounds FILE_NEW/FILE_DEL/FILE_MOVE path arguments.
	MaxPathBytes = 4096
)

// MaxMessageBytes returns the effective ceiling on an assembled IPC
// message. Controlled via ANALYZER_MAX_MESSAGE_BYTES; falls back to
// DefaultMaxMessageBytes.
func MaxMessageBytes() int {
	if v := os.Getenv("ANALYZER_MAX_MESSAGE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxMessageBytes
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidatePath performs basic sanity checks on a path argument received
// over the IPC channel.
func ValidatePath(path string) *ValidationResult {
	if path == "" {
		return &ValidationResult{OK: false, Message: "path is empty"}
	}
	if len(path) > MaxPathBytes {
		return &ValidationResult{OK: false, Message: "path exceeds maximum length"}
	}
	return &ValidationResult{OK: true}
}
