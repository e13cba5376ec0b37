// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// ExePackage is the default illustrative package: it launches a native
// executable with optional command-line arguments and tracks its pid.
// Real analysis packages (doc, pdf, js, dll, ...) would each get their own
// Constructor registered under their own name; this one stands in for
// that set.
type ExePackage struct {
	args string

	mu      sync.Mutex
	cmd     *exec.Cmd
	lastPID []int
}

// NewExePackage is a Constructor for the "exe" package. Recognized
// options: "arguments" (appended verbatim to the command line).
func NewExePackage(options map[string]string) (Package, error) {
	return &ExePackage{args: options["arguments"]}, nil
}

// Start launches target and returns its pid.
func (p *ExePackage) Start(ctx context.Context, target string) ([]int, error) {
	var cmd *exec.Cmd
	if p.args != "" {
		cmd = exec.CommandContext(ctx, target, p.args)
	} else {
		cmd = exec.CommandContext(ctx, target)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", target, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	return []int{cmd.Process.Pid}, nil
}

// Check reports whether the tracked process is still believed alive.
// ExePackage defers liveness entirely to the supervisor's own polling, so
// it always requests continuation.
func (p *ExePackage) Check(_ context.Context) bool {
	return true
}

// Finish releases the process handle. Killing the tree, if requested, is
// the supervisor's job (terminate_processes, spec.md §4.7).
func (p *ExePackage) Finish(_ context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Release()
	}
}

// PackageFiles returns no artifacts; ExePackage drops nothing of its own.
func (p *ExePackage) PackageFiles() []Artifact {
	return nil
}

// SetPIDs records the latest live-pid snapshot.
func (p *ExePackage) SetPIDs(pids []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPID = append(p.lastPID[:0], pids...)
}
