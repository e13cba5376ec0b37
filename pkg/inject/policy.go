// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package inject implements the injection policy (spec.md §4.5): the
// rules that decide whether, and how, to inject the monitor into a newly
// announced process.
package inject

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kraklabs/analyzer/pkg/metrics"
	"github.com/kraklabs/analyzer/pkg/registry"
)

// Injector performs the actual (platform-specific, out-of-scope) monitor
// injection. apc selects asynchronous-procedure-call injection, used when
// a thread id accompanied the announcement (PROCESS2); otherwise
// remote-thread injection is implied.
type Injector interface {
	Inject(pid int, tid *int, dllPath string, apc bool) error
}

// ProcessInspector resolves OS-level facts about an announced pid.
type ProcessInspector interface {
	ExecutableBasename(pid int) (string, error)
}

// Policy implements the two-phase guard from spec.md §9: the decision
// window (check-and-insert) runs under a lock; the slow injection call
// runs unlocked, so it never blocks liveness polling or peer handlers.
type Policy struct {
	mu     sync.Mutex
	locked atomic.Bool

	registry  *registry.ProcessRegistry
	injector  Injector
	inspector ProcessInspector
	logger    *slog.Logger
	metrics   *metrics.Registry

	supervisorPID, supervisorPPID int
	defaultDLL                    string
	protectedNames                map[string]struct{}
}

// Config configures a new Policy.
type Config struct {
	Registry       *registry.ProcessRegistry
	Injector       Injector
	Inspector      ProcessInspector
	Logger         *slog.Logger
	Metrics        *metrics.Registry
	SupervisorPID  int
	SupervisorPPID int
	DefaultDLL     string
	ProtectedNames []string
}

// New builds a Policy from cfg.
func New(cfg Config) *Policy {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	protected := make(map[string]struct{}, len(cfg.ProtectedNames))
	for _, name := range cfg.ProtectedNames {
		protected[strings.ToLower(name)] = struct{}{}
	}
	return &Policy{
		registry:       cfg.Registry,
		injector:       cfg.Injector,
		inspector:      cfg.Inspector,
		logger:         logger,
		metrics:        cfg.Metrics,
		supervisorPID:  cfg.SupervisorPID,
		supervisorPPID: cfg.SupervisorPPID,
		defaultDLL:     cfg.DefaultDLL,
		protectedNames: protected,
	}
}

// IsLocked reports whether the decision window is currently held. The
// supervisor's monitor loop polls this and defers its liveness check
// while true, rather than observing the registry mid-update (spec.md
// §4.7, §5).
func (p *Policy) IsLocked() bool {
	return p.locked.Load()
}

// Handle runs the injection policy for (pid, tid). tid is nil for a
// PROCESS announcement, non-nil for PROCESS2 (enabling APC injection).
func (p *Policy) Handle(pid int, tid *int) {
	proceed, dll := p.decide(pid, tid)
	if !proceed {
		p.incSkipped()
		return
	}

	p.incAttempted()
	apc := tid != nil
	if err := p.injector.Inject(pid, tid, dll, apc); err != nil {
		// Injection failure is logged but the pid stays tracked; the
		// liveness poll will evict it once the target exits.
		p.logger.Error("injection failed", "pid", pid, "err", err)
		p.incFailed()
		return
	}
	p.logger.Info("injected monitor", "pid", pid, "apc", apc)
}

func (p *Policy) incAttempted() {
	if p.metrics != nil {
		p.metrics.InjectionAttempted.Inc()
	}
}

func (p *Policy) incSkipped() {
	if p.metrics != nil {
		p.metrics.InjectionSkipped.Inc()
	}
}

func (p *Policy) incFailed() {
	if p.metrics != nil {
		p.metrics.InjectionFailed.Inc()
	}
}

// decide is phase one: acquire, mutate the invariant-bearing registry
// state, drop. It returns whether the caller should proceed to the slow,
// unlocked injection call, and which DLL to use.
func (p *Policy) decide(pid int, tid *int) (proceed bool, dll string) {
	p.mu.Lock()
	p.locked.Store(true)
	defer func() {
		p.locked.Store(false)
		p.mu.Unlock()
	}()

	if pid == p.supervisorPID || pid == p.supervisorPPID {
		p.logger.Warn("refusing to inject into the analyzer's own process", "pid", pid)
		return false, ""
	}

	if p.registry.Contains(pid) {
		p.logger.Warn("already monitoring process, ignoring request", "pid", pid)
		return false, ""
	}

	basename, err := p.inspector.ExecutableBasename(pid)
	if err != nil {
		p.logger.Warn("could not resolve process executable, skipping", "pid", pid, "err", err)
		return false, ""
	}

	if _, protected := p.protectedNames[strings.ToLower(basename)]; protected {
		// Skip silently: no insert, no inject (spec.md §4.5 step 3).
		return false, ""
	}

	p.registry.Add(pid)
	return true, p.defaultDLL
}
