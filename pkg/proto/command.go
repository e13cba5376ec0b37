// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package proto parses the monitor notification protocol (spec.md §4.4)
// once, at the edge, into a tagged Command variant. Downstream code
// matches on Verb instead of re-parsing strings, per the "ad-hoc string
// command protocol" design note in spec.md §9.
package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// Verb identifies which command was received.
type Verb string

const (
	VerbDebug    Verb = "DEBUG"
	VerbInfo     Verb = "INFO"
	VerbCritical Verb = "CRITICAL"
	VerbLoaded   Verb = "LOADED"
	VerbGetPIDs  Verb = "GETPIDS"
	VerbProcess  Verb = "PROCESS"
	VerbProcess2 Verb = "PROCESS2"
	VerbFileNew  Verb = "FILE_NEW"
	VerbFileDel  Verb = "FILE_DEL"
	VerbFileMove Verb = "FILE_MOVE"
)

// Command is the parsed, typed form of one wire message.
type Command struct {
	Verb Verb
	Args string
}

// MalformedError reports why a raw message could not be turned into a
// Command. It is a distinct type so callers can log at the right level
// without string-matching error text.
type MalformedError struct {
	Reason string
	Raw    string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed command (%s): %q", e.Reason, e.Raw)
}

// Parse turns one raw line into a Command, or a *MalformedError. It never
// panics (spec.md §8).
func Parse(raw string) (Command, error) {
	trimmed := strings.TrimRight(raw, "\r\n")

	idx := strings.IndexByte(trimmed, ':')
	if idx < 0 {
		return Command{}, &MalformedError{Reason: "missing ':'", Raw: raw}
	}

	verb := Verb(strings.ToUpper(trimmed[:idx]))
	args := trimmed[idx+1:]

	switch verb {
	case VerbDebug, VerbInfo, VerbCritical, VerbGetPIDs, VerbFileNew, VerbFileDel, VerbFileMove:
		return Command{Verb: verb, Args: args}, nil
	case VerbLoaded, VerbProcess:
		if !isDecimal(args) {
			return Command{}, &MalformedError{Reason: "non-digit pid", Raw: raw}
		}
		return Command{Verb: verb, Args: args}, nil
	case VerbProcess2:
		if strings.Count(args, ",") != 1 {
			return Command{}, &MalformedError{Reason: "wrong separator count", Raw: raw}
		}
		pid, tid, _ := strings.Cut(args, ",")
		if !isDecimal(pid) || !isDecimal(tid) {
			return Command{}, &MalformedError{Reason: "non-digit pid/tid", Raw: raw}
		}
		return Command{Verb: verb, Args: args}, nil
	default:
		return Command{}, &MalformedError{Reason: "unknown command", Raw: raw}
	}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ProcessArgs splits a validated PROCESS2 argument string into pid and tid.
func ProcessArgs(args string) (pid, tid int, err error) {
	left, right, ok := strings.Cut(args, ",")
	if !ok {
		return 0, 0, fmt.Errorf("process2 args missing comma: %q", args)
	}
	pid, err = strconv.Atoi(left)
	if err != nil {
		return 0, 0, err
	}
	tid, err = strconv.Atoi(right)
	if err != nil {
		return 0, 0, err
	}
	return pid, tid, nil
}

// FileMoveArgs splits a validated FILE_MOVE argument string into the old
// and new path ("old::new", spec.md §4.4).
func FileMoveArgs(args string) (oldPath, newPath string, err error) {
	oldPath, newPath, ok := strings.Cut(args, "::")
	if !ok {
		return "", "", fmt.Errorf("file_move args missing '::': %q", args)
	}
	return oldPath, newPath, nil
}
