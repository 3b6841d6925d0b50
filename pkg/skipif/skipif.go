// Package skipif evaluates a lifecycle step's skipif/doif condition:
// a leading "!" inverts, "onpath <cmd>" and "exists
// <path>" are builtin verbs, "starlark: <expr>" runs a sandboxed Starlark
// boolean expression, and anything else is run as a shell expression via
// ShellRunner.Successful.
package skipif

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.starlark.net/starlark"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
)

// ShellEvaluator is the subset of shell.Runner that skipif needs, kept
// narrow so tests can fake it without spawning real processes.
type ShellEvaluator interface {
	Successful(ctx context.Context, expr string) bool
}

var verbPattern = regexp.MustCompile(`^(exists|onpath)\s+(.+)$`)

// Condition is the parsed form of a step's skipif/doif declaration.
type Condition struct {
	// expr is the condition text with any leading "!" already stripped.
	expr string
	// negate is the final negation after combining skipif-vs-doif
	// semantics and any leading "!".
	negate bool
}

// Parse validates that at most one of skipif/doif is set
// and returns the parsed Condition. An empty skipif and empty doif
// returns (nil, nil): the step always runs.
func Parse(skipifExpr, doifExpr string) (*Condition, error) {
	skipifExpr = strings.TrimSpace(skipifExpr)
	doifExpr = strings.TrimSpace(doifExpr)

	if skipifExpr != "" && doifExpr != "" {
		return nil, orcherr.NewValidation(orcherr.CodeSkipifConflict,
			"skipif and doif are mutually exclusive on the same step", nil)
	}

	var expr string
	var negate bool
	switch {
	case skipifExpr != "":
		expr = skipifExpr
		negate = false
	case doifExpr != "":
		expr = doifExpr
		negate = true
	default:
		return nil, nil
	}

	if strings.HasPrefix(expr, "!") {
		expr = strings.TrimSpace(strings.TrimPrefix(expr, "!"))
		negate = !negate
	}

	return &Condition{expr: expr, negate: negate}, nil
}

// Evaluator evaluates parsed Conditions against the live host: PATH
// lookups, filesystem existence checks (against root, not $HOME — the
// original's "nucleus root" behavior), Starlark scripts, and shell
// fallback via sh.
type Evaluator struct {
	Shell ShellEvaluator
	// Root is the orchestrator root "exists" paths starting with "~" are
	// expanded against, instead of the OS home directory.
	Root string
}

// ShouldSkip reports whether the step guarded by c should be skipped.
// nil c (no skipif/doif declared) never skips.
func (e *Evaluator) ShouldSkip(ctx context.Context, c *Condition) (bool, error) {
	if c == nil {
		return false, nil
	}

	if rest, ok := strings.CutPrefix(c.expr, "starlark:"); ok {
		result, err := e.evalStarlark(strings.TrimSpace(rest))
		if err != nil {
			return false, orcherr.NewValidation(orcherr.CodeSkipifConflict, "starlark condition failed", err)
		}
		return result != c.negate, nil
	}

	if m := verbPattern.FindStringSubmatch(c.expr); m != nil {
		verb, arg := m[1], m[2]
		switch verb {
		case "onpath":
			return onPath(arg) != c.negate, nil
		case "exists":
			return pathExists(e.expandTilde(arg)) != c.negate, nil
		}
	}

	if c.expr == "true" {
		return !c.negate, nil
	}

	if e.Shell == nil {
		return false, orcherr.NewValidation(orcherr.CodeSkipifConflict, "no shell evaluator configured for expression fallback", nil)
	}
	return c.negate != e.Shell.Successful(ctx, c.expr), nil
}

func (e *Evaluator) expandTilde(path string) string {
	if path == "~" {
		return e.Root
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(e.Root, path[2:])
	}
	return path
}

func onPath(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *Evaluator) evalStarlark(expr string) (bool, error) {
	thread := &starlark.Thread{Name: "skipif"}
	v, err := starlark.Eval(thread, "skipif.star", expr, nil)
	if err != nil {
		return false, err
	}
	return bool(v.Truth()), nil
}
