// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package auxiliary implements the auxiliary-module capability (spec.md
// §4.6): best-effort helpers started alongside the analysis package.
// Missing capabilities are tolerated silently, matching the original
// module-enumeration behavior where an auxiliary need not implement every
// hook.
package auxiliary

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Auxiliary is the capability set an auxiliary module implements. All
// three hooks are best-effort: callers log and continue past any error.
type Auxiliary interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Finish(ctx context.Context) error
}

// Constructor builds an Auxiliary from the configured options map.
type Constructor func(options map[string]string) (Auxiliary, error)

// Factory is the explicit name → constructor registry auxiliaries are
// discovered through, replacing the original reflective submodule
// enumeration (spec.md §4.6, §9).
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory builds an empty Factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Register adds name → constructor.
func (f *Factory) Register(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[strings.ToLower(name)] = ctor
}

// Names returns every registered auxiliary name, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named auxiliary. Unknown names are an error; the caller
// (the supervisor's launch phase) is expected to log and skip rather than
// abort the run, since auxiliaries are all best-effort.
func (f *Factory) New(name string, options map[string]string) (Auxiliary, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[strings.ToLower(name)]
	f.mu.RUnlock()
	if !ok {
		return nil, &UnknownAuxiliaryError{Name: name}
	}
	return ctor(options)
}

// UnknownAuxiliaryError reports a configured auxiliary name with no
// registered constructor.
type UnknownAuxiliaryError struct {
	Name string
}

func (e *UnknownAuxiliaryError) Error() string {
	return "unknown auxiliary module: " + e.Name
}

// StartAll starts every named auxiliary, catching and logging per-module
// errors rather than aborting (spec.md §4.7 "launch": "discover
// auxiliaries, start each one catching and logging per-module errors").
// It returns two slices: discovered holds every auxiliary that
// constructed successfully, whether or not Start also succeeded; started
// holds the subset whose Start call also succeeded. Shutdown step 4
// (stop) only applies to started; shutdown step 6 (finish) applies to
// every discovered instance, per spec.md §4.7's "finish() on each
// discovered auxiliary" wording.
func StartAll(ctx context.Context, factory *Factory, names []string, options map[string]string, logger *slog.Logger) (started, discovered []Auxiliary) {
	discovered = make([]Auxiliary, 0, len(names))
	started = make([]Auxiliary, 0, len(names))
	for _, name := range names {
		aux, err := factory.New(name, options)
		if err != nil {
			logger.Warn("auxiliary: could not construct", "name", name, "err", err)
			continue
		}
		discovered = append(discovered, aux)
		if err := aux.Start(ctx); err != nil {
			logger.Warn("auxiliary: start failed", "name", name, "err", err)
			continue
		}
		started = append(started, aux)
	}
	return started, discovered
}

// StopAll stops every started auxiliary, best-effort.
func StopAll(ctx context.Context, auxiliaries []Auxiliary, logger *slog.Logger) {
	for _, aux := range auxiliaries {
		if err := aux.Stop(ctx); err != nil {
			logger.Warn("auxiliary: stop failed", "err", err)
		}
	}
}

// FinishAll runs Finish on every auxiliary it is given, best-effort. The
// supervisor passes every discovered auxiliary, including those whose
// Start failed.
func FinishAll(ctx context.Context, auxiliaries []Auxiliary, logger *slog.Logger) {
	for _, aux := range auxiliaries {
		if err := aux.Finish(ctx); err != nil {
			logger.Warn("auxiliary: finish failed", "err", err)
		}
	}
}
