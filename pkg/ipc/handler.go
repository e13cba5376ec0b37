// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package ipc implements the command handler (C4, spec.md §4.4) that
// turns one parsed monitor notification into a registry/policy mutation
// and a reply payload.
package ipc

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strconv"

	"github.com/kraklabs/analyzer/internal/contract"
	"github.com/kraklabs/analyzer/pkg/inject"
	"github.com/kraklabs/analyzer/pkg/metrics"
	"github.com/kraklabs/analyzer/pkg/proto"
	"github.com/kraklabs/analyzer/pkg/registry"
)

// okReply is the literal "OK" response sent when a command has no
// command-specific payload (spec.md §4.4).
var okReply = []byte("OK")

// Handler dispatches one parsed Command against the shared analysis
// state. It holds no per-connection state; a single Handler is shared by
// every pipe-server goroutine.
type Handler struct {
	Processes      *registry.ProcessRegistry
	Files          *registry.FileRegistry
	Policy         *inject.Policy
	SupervisorPID  int
	SupervisorPPID int
	Metrics        *metrics.Registry
	Logger         *slog.Logger
}

// Dispatch parses raw and executes the corresponding command, returning
// the bytes to write back on the connection. A malformed or unknown
// command logs and returns an empty reply; the connection is still
// closed cleanly by the caller.
func (h *Handler) Dispatch(ctx context.Context, raw string) []byte {
	cmd, err := proto.Parse(raw)
	if err != nil {
		h.logParseFailure(raw, err)
		h.countVerb("malformed")
		return nil
	}
	h.countVerb(string(cmd.Verb))

	switch cmd.Verb {
	case proto.VerbDebug:
		h.Logger.Debug("monitor", "msg", cmd.Args)
		return okReply
	case proto.VerbInfo:
		h.Logger.Info("monitor", "msg", cmd.Args)
		return okReply
	case proto.VerbCritical:
		h.Logger.Error("monitor", "msg", cmd.Args)
		return okReply
	case proto.VerbLoaded:
		return h.handleLoaded(cmd.Args)
	case proto.VerbGetPIDs:
		return h.handleGetPIDs()
	case proto.VerbProcess:
		return h.handleProcess(cmd.Args)
	case proto.VerbProcess2:
		return h.handleProcess2(cmd.Args)
	case proto.VerbFileNew:
		if !h.validPath(cmd.Args) {
			return nil
		}
		h.Files.Add(cmd.Args)
		return okReply
	case proto.VerbFileDel:
		if !h.validPath(cmd.Args) {
			return nil
		}
		h.Files.Delete(ctx, cmd.Args)
		return okReply
	case proto.VerbFileMove:
		return h.handleFileMove(cmd.Args)
	default:
		h.Logger.Error("ipc: unrecognized verb reached dispatch", "verb", cmd.Verb)
		return nil
	}
}

func (h *Handler) logParseFailure(raw string, err error) {
	var malformed *proto.MalformedError
	if errors.As(err, &malformed) && malformed.Reason == "unknown command" {
		h.Logger.Error("ipc: unknown command", "raw", raw)
		return
	}
	h.Logger.Warn("ipc: malformed command", "raw", raw, "err", err)
}

func (h *Handler) countVerb(verb string) {
	if h.Metrics != nil {
		h.Metrics.CommandsReceived.WithLabelValues(verb).Inc()
	}
}

func (h *Handler) handleLoaded(args string) []byte {
	pid, err := strconv.Atoi(args)
	if err != nil {
		h.Logger.Warn("ipc: LOADED with non-digit pid", "args", args)
		return nil
	}
	// Idempotent: the pid should already be tracked by the injection
	// policy, but LOADED is the monitor's own confirmation and must not
	// fail if it arrives out of order.
	h.Processes.Add(pid)
	return okReply
}

func (h *Handler) handleGetPIDs() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.SupervisorPID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.SupervisorPPID))
	return buf
}

func (h *Handler) handleProcess(args string) []byte {
	pid, err := strconv.Atoi(args)
	if err != nil {
		h.Logger.Warn("ipc: PROCESS with non-digit pid", "args", args)
		return nil
	}
	h.Policy.Handle(pid, nil)
	return okReply
}

func (h *Handler) handleProcess2(args string) []byte {
	pid, tid, err := proto.ProcessArgs(args)
	if err != nil {
		h.Logger.Warn("ipc: PROCESS2 with malformed args", "args", args, "err", err)
		return nil
	}
	h.Policy.Handle(pid, &tid)
	return okReply
}

func (h *Handler) handleFileMove(args string) []byte {
	oldPath, newPath, err := proto.FileMoveArgs(args)
	if err != nil {
		h.Logger.Warn("ipc: FILE_MOVE with malformed args", "args", args, "err", err)
		return nil
	}
	if !h.validPath(oldPath) || !h.validPath(newPath) {
		return nil
	}
	h.Files.Move(oldPath, newPath)
	return okReply
}

func (h *Handler) validPath(path string) bool {
	if res := contract.ValidatePath(path); !res.OK {
		h.Logger.Warn("ipc: rejected path argument", "reason", res.Message)
		return false
	}
	return true
}
