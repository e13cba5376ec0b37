// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package ui provides color-coded console diagnostics for the analyzer's
// prepare/launch phases. Output goes to stderr so it never interferes with
// the IPC protocol or the host RPC channel. Colors are automatically
// disabled when stderr is not a TTY or when NO_COLOR is set.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// Init configures global color output. It disables colors when explicitly
// asked to, when NO_COLOR is set, or when stderr is not a terminal (piped
// guest-agent logs, headless CI runs).
func Init(noColor bool) {
	color.NoColor = noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stderr.Fd())
}

// Success prints a green success message with a checkmark prefix.
func Success(msg string) {
	_, _ = Green.Fprintln(os.Stderr, "✓ "+msg)
}

// Warning prints a yellow warning message with a warning symbol prefix.
func Warning(msg string) {
	_, _ = Yellow.Fprintln(os.Stderr, "⚠ "+msg)
}

// Errorf prints a formatted red error message with an X prefix.
func Errorf(format string, args ...any) {
	_, _ = Red.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// Info prints a cyan informational message with an info symbol prefix.
func Info(msg string) {
	_, _ = Cyan.Fprintln(os.Stderr, "ℹ "+msg)
}

// Infof prints a formatted cyan informational message.
func Infof(format string, args ...any) {
	_, _ = Cyan.Fprintf(os.Stderr, "ℹ "+format+"\n", args...)
}

// Header prints a bold header with an underline separator.
func Header(text string) {
	_, _ = Bold.Fprintln(os.Stderr, text)
	fmt.Fprintln(os.Stderr, strings.Repeat("=", len(text)))
}

// Label returns a bold-formatted label string for inline use.
func Label(text string) string {
	return Bold.Sprint(text)
}
