// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package auxiliary

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/kraklabs/analyzer/pkg/registry"
)

// suspiciousCalls are JS API names whose presence in a dropped script is
// worth flagging for the analyst, independent of whatever the script
// actually does at runtime.
var suspiciousCalls = map[string]struct{}{
	"eval":          {},
	"unescape":      {},
	"ActiveXObject": {},
	"WScript":       {},
	"execScript":    {},
	"writeln":       {},
	"createObject":  {},
	"Function":      {},
}

// Finding is one suspicious call site located in a dropped script.
type Finding struct {
	Path string
	Name string
	Line uint32
}

// ScriptTriage statically parses every dropped `.js` file with
// Tree-sitter and flags calls to known-suspicious APIs (eval,
// ActiveXObject, WScript.Shell, ...). It never executes the script; this
// is static triage only, to help an analyst spot an obfuscated dropper
// without running it.
//
// Grounded on this codebase's Tree-sitter usage for source parsing: a
// *sitter.Parser per language, ParseCtx into an AST, walk the tree
// recursively through each node's children.
type ScriptTriage struct {
	files  *registry.FileRegistry
	logger *slog.Logger

	mu       sync.Mutex
	findings []Finding
}

// NewScriptTriageWithRegistry builds a ScriptTriage that scans files.
// It is not itself an auxiliary.Constructor, since the generic
// Constructor signature has no access to the file registry; the caller
// registers a Factory constructor that closes over the registry and calls
// this function.
func NewScriptTriageWithRegistry(files *registry.FileRegistry, logger *slog.Logger) *ScriptTriage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptTriage{files: files, logger: logger}
}

// Start is a no-op; triage runs on Stop, once the full set of dropped
// files for the run is known.
func (s *ScriptTriage) Start(_ context.Context) error {
	return nil
}

// Stop scans every currently-tracked `.js` file.
func (s *ScriptTriage) Stop(_ context.Context) error {
	for _, path := range s.files.Snapshot() {
		if !strings.HasSuffix(path, ".js") {
			continue
		}
		if err := s.scan(path); err != nil {
			s.logger.Warn("script triage: scan failed", "path", path, "err", err)
		}
	}
	return nil
}

// Finish is a no-op; findings are read via Findings().
func (s *ScriptTriage) Finish(_ context.Context) error {
	return nil
}

// Findings returns every suspicious call site found across all scanned
// scripts.
func (s *ScriptTriage) Findings() []Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

func (s *ScriptTriage) scan(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	var found []Finding
	walkCallExpressions(tree.RootNode(), content, func(name string, node *sitter.Node) {
		if _, bad := suspiciousCalls[name]; bad {
			found = append(found, Finding{
				Path: filepath.Base(path),
				Name: name,
				Line: node.StartPoint().Row + 1,
			})
		}
	})

	if len(found) > 0 {
		s.mu.Lock()
		s.findings = append(s.findings, found...)
		s.mu.Unlock()
	}
	return nil
}

// walkCallExpressions visits every call_expression node in the tree,
// extracting the called function's identifier name (bare, or the root
// object of a property access, e.g. "WScript.Shell" -> "WScript").
func walkCallExpressions(root *sitter.Node, content []byte, visit func(name string, node *sitter.Node)) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" || n.Type() == "new_expression" {
			if callee := n.ChildByFieldName("function"); callee != nil {
				visit(calleeRootName(callee, content), n)
			} else if ctor := n.ChildByFieldName("constructor"); ctor != nil {
				visit(calleeRootName(ctor, content), n)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
}

// calleeRootName returns the leftmost identifier of a callee expression:
// for "WScript.Shell" it returns "WScript"; for a bare identifier it
// returns the identifier itself.
func calleeRootName(n *sitter.Node, content []byte) string {
	for n.Type() == "member_expression" {
		if obj := n.ChildByFieldName("object"); obj != nil {
			n = obj
			continue
		}
		break
	}
	return n.Content(content)
}
