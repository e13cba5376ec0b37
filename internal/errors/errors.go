// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the analyzer's structured error type.
//
// AnalyzerError carries a Category (which phase of the lifecycle produced
// it), a human-readable Message/Cause/Fix triad for logs, a Fatal flag that
// decides whether the supervisor aborts to finalization, and an optional
// wrapped error for errors.Is/As compatibility.
package errors

import (
	"fmt"
)

// Category classifies the origin of an error for logging and for the
// final host report.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryPipe      Category = "pipe"
	CategoryInjection Category = "injection"
	CategoryPackage   Category = "package"
	CategoryAuxiliary Category = "auxiliary"
	CategoryUpload    Category = "upload"
	CategoryInternal  Category = "internal"
)

// AnalyzerError is the error type threaded through the supervisor.
type AnalyzerError struct {
	Category Category
	Message  string
	Cause    string
	Fix      string
	// Fatal errors abort the lifecycle straight to finalization with
	// success=false. Non-fatal errors are logged and execution continues.
	Fatal bool
	Err   error
}

func (e *AnalyzerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

// New builds a non-fatal AnalyzerError.
func New(cat Category, msg, cause string, err error) *AnalyzerError {
	return &AnalyzerError{Category: cat, Message: msg, Cause: cause, Err: err}
}

// NewFatal builds a fatal AnalyzerError — one that must abort the lifecycle.
func NewFatal(cat Category, msg, cause, fix string, err error) *AnalyzerError {
	return &AnalyzerError{Category: cat, Message: msg, Cause: cause, Fix: fix, Fatal: true, Err: err}
}

// KeyboardInterrupt is the specific error string the host report expects
// when the process is aborted by the user (spec.md §7, "User abort").
const KeyboardInterrupt = "Keyboard Interrupt"
