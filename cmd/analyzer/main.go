// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Command analyzer is the in-guest analyzer controller entrypoint: it
// loads the analysis configuration, assembles the supervisor's
// collaborators, and drives one analysis run to completion.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	ierrors "github.com/kraklabs/analyzer/internal/errors"
	"github.com/kraklabs/analyzer/internal/ui"
	"github.com/kraklabs/analyzer/pkg/auxiliary"
	"github.com/kraklabs/analyzer/pkg/clock"
	"github.com/kraklabs/analyzer/pkg/config"
	"github.com/kraklabs/analyzer/pkg/hostrpc"
	"github.com/kraklabs/analyzer/pkg/inject"
	"github.com/kraklabs/analyzer/pkg/metrics"
	"github.com/kraklabs/analyzer/pkg/sample"
	"github.com/kraklabs/analyzer/pkg/supervisor"
	"github.com/kraklabs/analyzer/pkg/upload"
)

var version = "dev"

func main() {
	var (
		configPath = flag.String("config", "analysis.yaml", "Path to the analysis configuration")
		resultsDir = flag.String("results-dir", ".", "Local results directory")
		tempDir    = flag.String("temp-dir", os.TempDir(), "Directory containing the dropped sample, for file-category analyses")
		socketPath = flag.String("socket", "/tmp/cuckoo-analyzer.sock", "Path of the monitor notification socket")
		hostURL    = flag.String("host-url", "", "Host RPC base URL (default: http://127.0.0.1:8000)")
		noColor    = flag.Bool("no-color", false, "Disable colored console diagnostics")
		showVer    = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("analyzer version %s\n", version)
		return
	}

	ui.Init(*noColor)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	hostOpts := []hostrpc.Option{}
	if *hostURL != "" {
		hostOpts = append(hostOpts, hostrpc.WithBaseURL(*hostURL))
	}
	hostClient := hostrpc.NewClient(hostOpts...)

	cfg, err := config.Load(*configPath)
	if err != nil {
		reportPreflightFailure(hostClient, *resultsDir, fmt.Errorf("load config: %w", err))
		return
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel(errors.New(ierrors.KeyboardInterrupt))
	}()

	s := buildSupervisor(cfg, *resultsDir, *tempDir, *socketPath, hostClient, logger)

	defer func() {
		if r := recover(); r != nil {
			ui.Errorf("unhandled panic: %v", r)
			logger.Error("analyzer: unhandled panic", "recover", r, "stack", string(debug.Stack()))
			_ = hostClient.Complete(context.Background(), false, fmt.Sprintf("panic: %v", r), *resultsDir)
			os.Exit(1)
		}
	}()

	ui.Header("Analyzer starting")

	spinner := ui.NewWaitSpinner(*noColor, "waiting for processes to finish")
	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	go func() {
		defer close(spinnerDone)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopSpinner:
				return
			case <-ticker.C:
				ui.TickSpinner(spinner)
			}
		}
	}()

	success, errStr := s.Run(ctx)
	close(stopSpinner)
	<-spinnerDone
	ui.FinishSpinner(spinner)

	if success {
		ui.Success("analysis completed")
	} else {
		ui.Errorf("analysis failed: %s", errStr)
	}
}

// reportPreflightFailure reports a failure that happened before a
// Supervisor could be built (e.g. an unreadable config file). The host
// RPC report still runs so the exit code stays insignificant to the host
// (spec.md §6 "Exit code"), matching every other analyzer failure path.
func reportPreflightFailure(client *hostrpc.Client, resultsDir string, err error) {
	ui.Errorf("%v", err)
	slog.Default().Error("analyzer: preflight failure", "err", err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rpcErr := client.Complete(ctx, false, err.Error(), resultsDir); rpcErr != nil {
		slog.Default().Error("analyzer: could not report preflight failure to host", "err", rpcErr)
	}
}

// buildSupervisor wires every collaborator named in SPEC_FULL.md's domain
// stack into a supervisor.Supervisor: the "exe" package, the script-triage
// auxiliary, OS-backed clock/liveness/termination, and the HTTP upload
// channel.
func buildSupervisor(cfg *config.AnalysisConfig, resultsDir, tempDir, socketPath string, hostClient *hostrpc.Client, logger *slog.Logger) *supervisor.Supervisor {
	packages := sample.NewFactory()
	packages.Register("exe", sample.NewExePackage)

	auxiliaries := auxiliary.NewFactory()

	uploader := upload.NewHTTPUploader(hostBaseURL())
	metricsRegistry := metrics.New()

	opts := supervisor.Options{
		Config:         cfg,
		ResultsDir:     resultsDir,
		TempDir:        tempDir,
		SocketPath:     socketPath,
		PackageFactory: packages,
		AuxFactory:     auxiliaries,
		Clock:          clock.UnixSetter{},
		HostClient:     hostClient,
		Uploader:       uploader,
		Metrics:        metricsRegistry,
		Injector:       unsupportedInjector{},
		Inspector:      procfsInspector{},
		Liveness:       osLiveness{},
		Terminator:     osTerminator{},
		SupervisorPID:  os.Getpid(),
		SupervisorPPID: os.Getppid(),
		Logger:         logger,
	}

	s := supervisor.New(opts)

	// script-triage needs the supervisor's own file registry, which the
	// generic auxiliary.Constructor signature has no seam for; register it
	// against the live instance now that the supervisor exists
	// (pkg/supervisor only looks the name up at launch time).
	auxiliaries.Register("script-triage", func(map[string]string) (auxiliary.Auxiliary, error) {
		return auxiliary.NewScriptTriageWithRegistry(s.Files(), logger), nil
	})

	return s
}

func hostBaseURL() string {
	if v := os.Getenv("ANALYZER_HOST_UPLOAD_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:8000"
}

// unsupportedInjector reports every injection attempt as failed. Real
// monitor injection is a platform-specific privileged operation out of
// this repository's scope (spec.md §1); this keeps the policy's decision
// logic exercised end to end without claiming to perform it.
type unsupportedInjector struct{}

func (unsupportedInjector) Inject(pid int, _ *int, _ string, _ bool) error {
	return fmt.Errorf("injection is not implemented on this platform (pid %d)", pid)
}

// procfsInspector resolves a pid's executable basename via /proc, standing
// in for the Windows-specific process inspection the original analyzer
// performs.
type procfsInspector struct{}

func (procfsInspector) ExecutableBasename(pid int) (string, error) {
	target, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", err
	}
	return filepath.Base(target), nil
}

// osLiveness checks liveness by sending signal 0, the standard
// no-op-but-permission-and-existence-checking probe.
type osLiveness struct{}

func (osLiveness) IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// osTerminator kills a tracked pid outright at finalization.
type osTerminator struct{}

func (osTerminator) Terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
