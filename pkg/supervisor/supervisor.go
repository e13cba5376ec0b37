// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync/atomic"
	"time"

	ierrors "github.com/kraklabs/analyzer/internal/errors"
	"github.com/kraklabs/analyzer/internal/output"
	"github.com/kraklabs/analyzer/pkg/auxiliary"
	"github.com/kraklabs/analyzer/pkg/clock"
	"github.com/kraklabs/analyzer/pkg/config"
	"github.com/kraklabs/analyzer/pkg/hostrpc"
	"github.com/kraklabs/analyzer/pkg/inject"
	"github.com/kraklabs/analyzer/pkg/ipc"
	"github.com/kraklabs/analyzer/pkg/metrics"
	"github.com/kraklabs/analyzer/pkg/registry"
	"github.com/kraklabs/analyzer/pkg/sample"
)

// LivenessChecker reports whether a tracked pid is still alive, backing
// the monitor loop's liveness poll (spec.md §4.7).
type LivenessChecker interface {
	IsAlive(pid int) bool
}

// ProcessTerminator kills a tracked pid at finalization when
// terminate_processes is set (spec.md §4.7 step 5).
type ProcessTerminator interface {
	Terminate(pid int) error
}

// Options configures a Supervisor. Every collaborator is an explicit
// field rather than a process-wide singleton (spec.md §9, "global
// mutable state"), so the whole session is an ordinary value the caller
// assembles and owns.
type Options struct {
	Config     *config.AnalysisConfig
	ResultsDir string
	TempDir    string
	SocketPath string

	PackageFactory *sample.Factory
	AuxFactory     *auxiliary.Factory
	Clock          clock.Setter
	HostClient     *hostrpc.Client
	Uploader       registry.Uploader
	Metrics        *metrics.Registry
	Injector       inject.Injector
	Inspector      inject.ProcessInspector
	Liveness       LivenessChecker
	Terminator     ProcessTerminator

	SupervisorPID  int
	SupervisorPPID int

	// TickInterval overrides the monitor loop's poll period (default 1s).
	// Only meant to be shortened in tests.
	TickInterval time.Duration

	Logger *slog.Logger
}

// Supervisor drives one analysis run through the lifecycle state machine.
type Supervisor struct {
	cfg        *config.AnalysisConfig
	resultsDir string
	tempDir    string
	socketPath string

	packageFactory *sample.Factory
	auxFactory     *auxiliary.Factory
	clockSetter    clock.Setter
	hostClient     *hostrpc.Client
	uploader       registry.Uploader
	metrics        *metrics.Registry
	liveness       LivenessChecker
	terminator     ProcessTerminator
	tick           time.Duration
	logger         *slog.Logger

	supervisorPID, supervisorPPID int

	processes *registry.ProcessRegistry
	files     *registry.FileRegistry
	policy    *inject.Policy

	listener  net.Listener
	ipcServer *ipc.Server

	pkg            sample.Package
	startedAux     []auxiliary.Auxiliary
	discoveredAux  []auxiliary.Auxiliary
	pollingEnabled bool
	target         string
	abortErr       string

	state atomic.Int32
}

// New assembles a Supervisor from opts. It does not start anything; call
// Run to drive the lifecycle.
func New(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	files := registry.NewFileRegistry(opts.Uploader, "files", logger, opts.Metrics)
	processes := registry.NewProcessRegistry()

	s := &Supervisor{
		cfg:            opts.Config,
		resultsDir:     opts.ResultsDir,
		tempDir:        opts.TempDir,
		socketPath:     opts.SocketPath,
		packageFactory: opts.PackageFactory,
		auxFactory:     opts.AuxFactory,
		clockSetter:    opts.Clock,
		hostClient:     opts.HostClient,
		uploader:       opts.Uploader,
		metrics:        opts.Metrics,
		liveness:       opts.Liveness,
		terminator:     opts.Terminator,
		tick:           tick,
		logger:         logger,
		processes:      processes,
		files:          files,
		supervisorPID:  opts.SupervisorPID,
		supervisorPPID: opts.SupervisorPPID,
	}

	s.policy = inject.New(inject.Config{
		Registry:       processes,
		Injector:       opts.Injector,
		Inspector:      opts.Inspector,
		Logger:         logger,
		Metrics:        opts.Metrics,
		SupervisorPID:  opts.SupervisorPID,
		SupervisorPPID: opts.SupervisorPPID,
		DefaultDLL:     opts.Config.MonitorLibrary,
		ProtectedNames: opts.Config.ProtectedNames,
	})
	s.state.Store(int32(StateInit))
	return s
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Files exposes the file registry so a caller can register auxiliaries
// (e.g. script triage) that need direct access to it before calling Run —
// the generic auxiliary.Constructor signature has no seam for this, so
// callers close over the registry returned here instead.
func (s *Supervisor) Files() *registry.FileRegistry {
	return s.files
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Info("supervisor: state transition", "state", st.String())
}

// Run drives the full lifecycle: prepare, launch, monitor, shutdown,
// completion. The host RPC report is posted on every exit path, including
// a recovered panic (spec.md §7, §4.7 "completion").
func (s *Supervisor) Run(ctx context.Context) (success bool, reportErr string) {
	defer func() {
		if r := recover(); r != nil {
			reportErr = fmt.Sprintf("unhandled panic: %v\n%s", r, debug.Stack())
			success = false
			s.logger.Error("supervisor: recovered panic", "recover", r)
		}

		s.shutdown(context.Background())

		if err := s.completion(context.Background(), success, reportErr); err != nil {
			s.logger.Error("supervisor: completion report failed", "err", err)
		}
	}()

	if err := s.prepare(ctx); err != nil {
		return false, err.Error()
	}
	if err := s.launch(ctx); err != nil {
		return false, err.Error()
	}
	s.monitorLoop(ctx)

	if s.abortErr != "" {
		return false, s.abortErr
	}
	return true, ""
}

// prepare creates the result folder, adjusts the guest clock, resolves
// the target path, and starts the pipe server pool (spec.md §4.7
// "prepare"). Failing to create the results directory or to stand up the
// IPC endpoint are the fatal prepare-time errors (spec.md §7).
func (s *Supervisor) prepare(ctx context.Context) error {
	if err := os.MkdirAll(s.resultsDir, 0o755); err != nil {
		return ierrors.NewFatal(ierrors.CategoryInternal, "create results directory", s.resultsDir, "", err)
	}

	if s.cfg.Clock != "" {
		t, err := time.Parse(clock.Layout, s.cfg.Clock)
		if err != nil {
			s.logger.Warn("supervisor: invalid clock value, leaving guest clock untouched", "clock", s.cfg.Clock, "err", err)
		} else if err := s.clockSetter.SetGuestClock(ctx, t); err != nil {
			s.logger.Warn("supervisor: could not set guest clock", "err", err)
		}
	}

	os.Remove(s.socketPath)
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return ierrors.NewFatal(ierrors.CategoryPipe, "create pipe endpoint", s.socketPath, "check that the socket path is writable", err)
	}
	s.listener = listener

	handler := &ipc.Handler{
		Processes:      s.processes,
		Files:          s.files,
		Policy:         s.policy,
		SupervisorPID:  s.supervisorPID,
		SupervisorPPID: s.supervisorPPID,
		Metrics:        s.metrics,
		Logger:         s.logger,
	}
	s.ipcServer = ipc.NewServer(listener, handler, s.logger)
	go func() {
		if err := s.ipcServer.Serve(context.Background()); err != nil {
			s.logger.Warn("supervisor: pipe server stopped", "err", err)
		}
	}()

	s.target = s.cfg.TargetPath(s.tempDir)
	s.setState(StatePrepared)
	return nil
}

// launch loads the chosen package, starts auxiliaries, and starts the
// sample (spec.md §4.7 "launch").
func (s *Supervisor) launch(ctx context.Context) error {
	pkgName := s.cfg.Package
	if pkgName == "" {
		if s.cfg.Category == config.CategoryURL {
			pkgName = "ie"
		} else {
			pkgName = sample.ChoosePackage(s.cfg.FileType, s.cfg.FileName)
		}
	}

	pkg, err := s.packageFactory.New(pkgName, s.cfg.Options)
	if err != nil {
		return ierrors.NewFatal(ierrors.CategoryPackage, "load analysis package", pkgName, "check the configured package name", err)
	}
	s.pkg = pkg

	s.startedAux, s.discoveredAux = auxiliary.StartAll(ctx, s.auxFactory, s.cfg.Auxiliaries, s.cfg.Options, s.logger)

	pids, err := pkg.Start(ctx, s.target)
	if err != nil {
		return ierrors.NewFatal(ierrors.CategoryPackage, "package start failed", s.target, "", err)
	}

	if len(pids) > 0 {
		s.processes.AddMany(pids)
		s.pollingEnabled = true
	} else {
		s.pollingEnabled = false
	}
	if s.cfg.EnforceTimeout {
		s.pollingEnabled = false
	}

	s.setState(StateRunning)
	return nil
}

// monitorLoop runs the 1 Hz supervisor tick until a transition condition
// fires (spec.md §4.7 "monitor loop").
func (s *Supervisor) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	seconds := 0
	for {
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); cause != nil {
				s.abortErr = cause.Error()
			}
			s.setState(StateDrainRequested)
			return
		case <-ticker.C:
		}

		seconds++
		if seconds >= s.cfg.TimeoutSeconds {
			s.logger.Info("supervisor: timeout reached", "seconds", seconds)
			s.setState(StateDrainRequested)
			return
		}

		if s.policy.IsLocked() {
			// The injection lock is held; do not observe registry state
			// mid-update (spec.md §4.7 "monitor loop", §5).
			continue
		}

		if s.pollingEnabled {
			for _, pid := range s.processes.Snapshot() {
				if !s.liveness.IsAlive(pid) {
					_ = s.processes.Remove(pid)
				}
			}
			if s.processes.Len() == 0 {
				s.logger.Info("supervisor: no live tracked pids remaining")
				s.setState(StateDrainRequested)
				return
			}
		}

		s.pkg.SetPIDs(s.processes.Snapshot())
		if !s.safeCheck(ctx) {
			s.logger.Info("supervisor: package requested stop")
			s.setState(StateDrainRequested)
			return
		}
	}
}

// safeCheck runs the package's Check hook, treating a panic as a non-fatal
// failure that requests continuation (spec.md §7: "Package runtime
// errors... caught at each call site, logged, loop continues").
func (s *Supervisor) safeCheck(ctx context.Context) (keepGoing bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("supervisor: package check panicked", "recover", r)
			keepGoing = true
		}
	}()
	return s.pkg.Check(ctx)
}

// shutdown runs the strict eight-step shutdown ordering (spec.md §4.7
// "shutdown ordering").
func (s *Supervisor) shutdown(ctx context.Context) {
	s.setState(StateFinalizing)

	s.raiseShutdownSignal()
	s.safeFinishPackage(ctx)
	s.uploadPackageFiles(ctx)
	auxiliary.StopAll(ctx, s.startedAux, s.logger)

	if s.cfg != nil && s.cfg.TerminateProcesses && s.terminator != nil {
		for _, pid := range s.processes.Snapshot() {
			if err := s.terminator.Terminate(pid); err != nil {
				s.logger.Warn("supervisor: terminate failed", "pid", pid, "err", err)
			}
		}
	}

	auxiliary.FinishAll(ctx, s.discoveredAux, s.logger)

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)

	s.files.DumpAll(ctx)
	s.setState(StateComplete)
}

// raiseShutdownSignal creates the sentinel file that stands in for the
// original named-mutex creation: monitors that cannot share this
// process's Go channel instead poll/watch for this path to know when to
// detach (spec.md §6).
func (s *Supervisor) raiseShutdownSignal() {
	path := s.shutdownSentinelPath()
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		s.logger.Warn("supervisor: could not create shutdown sentinel", "path", path, "err", err)
	}
}

func (s *Supervisor) shutdownSentinelPath() string {
	return s.socketPath + ".shutdown"
}

func (s *Supervisor) safeFinishPackage(ctx context.Context) {
	if s.pkg == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("supervisor: package finish panicked", "recover", r)
		}
	}()
	s.pkg.Finish(ctx)
}

func (s *Supervisor) uploadPackageFiles(ctx context.Context) {
	if s.pkg == nil || s.uploader == nil {
		return
	}
	artifacts := s.safePackageFiles()
	for _, art := range artifacts {
		remote := filepath.Join("package_files", art.RemoteName)
		if err := s.uploader.Upload(ctx, art.LocalPath, remote); err != nil {
			s.logger.Warn("supervisor: package artifact upload failed", "path", art.LocalPath, "err", err)
			if s.metrics != nil {
				s.metrics.UploadFailures.Inc()
			}
		}
	}
}

func (s *Supervisor) safePackageFiles() (artifacts []sample.Artifact) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("supervisor: package_files panicked", "recover", r)
			artifacts = nil
		}
	}()
	return s.pkg.PackageFiles()
}

// completionSummary is the local result-folder JSON written alongside the
// host RPC report, folding in the metrics snapshot for diagnostics
// (spec.md §4.11, §4.9).
type completionSummary struct {
	Success    bool             `json:"success"`
	Error      string           `json:"error,omitempty"`
	ResultsDir string           `json:"results_dir"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

func (s *Supervisor) completion(ctx context.Context, success bool, errString string) error {
	if s.metrics != nil {
		s.metrics.TrackedPIDs.Set(float64(s.processes.Len()))
	}

	summary := completionSummary{Success: success, Error: errString, ResultsDir: s.resultsDir}
	if s.metrics != nil {
		summary.Metrics = s.metrics.Snapshot()
	}
	if f, err := os.Create(filepath.Join(s.resultsDir, "summary.json")); err == nil {
		_ = output.JSONTo(f, summary)
		f.Close()
	}

	if s.hostClient == nil {
		return nil
	}
	return s.hostClient.Complete(ctx, success, errString, s.resultsDir)
}
