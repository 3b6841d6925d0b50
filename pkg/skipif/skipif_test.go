package skipif

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type fakeShell struct {
	result bool
}

func (f *fakeShell) Successful(ctx context.Context, expr string) bool { return f.result }

func TestParse_BothSkipifAndDoif_IsError(t *testing.T) {
	_, err := Parse("onpath bash", "true")
	if err == nil {
		t.Fatalf("expected an error when both skipif and doif are declared")
	}
}

func TestParse_Neither_ReturnsNilCondition(t *testing.T) {
	c, err := Parse("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Errorf("expected a nil condition when neither skipif nor doif is set")
	}
}

func TestShouldSkip_NilCondition_NeverSkips(t *testing.T) {
	e := &Evaluator{}
	skip, err := e.ShouldSkip(context.Background(), nil)
	if err != nil || skip {
		t.Errorf("expected nil condition to never skip, got skip=%v err=%v", skip, err)
	}
}

func TestShouldSkip_Onpath_SkipifSemantics(t *testing.T) {
	c, err := Parse("onpath sh", "")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	e := &Evaluator{}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	if !skip {
		t.Errorf("expected skipif onpath sh to skip (sh is always on PATH in test env)")
	}
}

func TestShouldSkip_Doif_InvertsSkipifSemantics(t *testing.T) {
	c, err := Parse("", "onpath definitely-not-a-real-command-xyz")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	e := &Evaluator{}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	if !skip {
		t.Errorf("expected doif onpath <missing command> to skip (condition false)")
	}
}

func TestShouldSkip_LeadingBang_Inverts(t *testing.T) {
	c, err := Parse("!onpath sh", "")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	e := &Evaluator{}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	if skip {
		t.Errorf("expected '!onpath sh' to not skip, since sh is on PATH")
	}
}

func TestShouldSkip_Exists_ExpandsTildeAgainstRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed writing test fixture: %v", err)
	}

	c, err := Parse("exists ~/marker", "")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	e := &Evaluator{Root: dir}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	if !skip {
		t.Errorf("expected exists ~/marker to skip when marker exists under Root")
	}
}

func TestShouldSkip_True(t *testing.T) {
	c, _ := Parse("true", "")
	e := &Evaluator{}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil || !skip {
		t.Errorf("expected skipif true to always skip, got skip=%v err=%v", skip, err)
	}
}

func TestShouldSkip_ShellFallback(t *testing.T) {
	c, _ := Parse("test -f /some/custom/script", "")
	e := &Evaluator{Shell: &fakeShell{result: true}}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil || !skip {
		t.Errorf("expected a successful shell expression to make skipif skip, got skip=%v err=%v", skip, err)
	}
}

func TestShouldSkip_Starlark(t *testing.T) {
	c, _ := Parse("starlark: 1 == 1", "")
	e := &Evaluator{}
	skip, err := e.ShouldSkip(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected starlark eval error: %v", err)
	}
	if !skip {
		t.Errorf("expected starlark expression '1 == 1' to evaluate true and skipif to skip")
	}
}
