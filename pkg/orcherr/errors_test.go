package orcherr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewTransient_IsRetryable(t *testing.T) {
	err := NewTransient(CodeScript, "script exited non-zero", nil).WithComponent("svc.a").WithStep("run")

	if !IsTransient(err) {
		t.Errorf("expected transient error to report IsTransient")
	}
	if !IsRetryable(err) {
		t.Errorf("expected transient error to be retryable")
	}
	if IsPermanent(err) {
		t.Errorf("did not expect transient error to report IsPermanent")
	}
}

func TestNewPermanent_NotRetryable(t *testing.T) {
	err := NewPermanent(CodePolicyDenied, "install denied by policy", nil).WithComponent("svc.b")

	if !IsPermanent(err) {
		t.Errorf("expected permanent error to report IsPermanent")
	}
	if IsRetryable(err) {
		t.Errorf("did not expect permanent error to be retryable")
	}
}

func TestNewCycle(t *testing.T) {
	err := NewCycle("svc.a -> svc.b -> svc.a")
	if !IsCycle(err) {
		t.Errorf("expected cycle error to report IsCycle")
	}
}

func TestErrorsIs_MatchesOnClassAndCode(t *testing.T) {
	base := NewValidation(CodeSkipifConflict, "skipif and doif both present", nil)
	wrapped := fmt.Errorf("parsing component: %w", base)

	target := &OrchError{Class: ClassValidation, Code: CodeSkipifConflict}
	if !errors.Is(wrapped, target) {
		t.Errorf("expected errors.Is to match on Class+Code through wrapping")
	}

	other := &OrchError{Class: ClassValidation, Code: CodeResolution}
	if errors.Is(wrapped, other) {
		t.Errorf("did not expect errors.Is to match a different Code")
	}
}

func TestErrorsAs_RecoversOrchError(t *testing.T) {
	base := NewTransient(CodeScript, "boom", errors.New("exit status 1")).WithExitCode(1)
	wrapped := fmt.Errorf("running step: %w", base)

	var got *OrchError
	if !errors.As(wrapped, &got) {
		t.Fatalf("expected errors.As to recover *OrchError")
	}
	if got.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", got.ExitCode)
	}
}

func TestError_MessageIncludesComponentAndStep(t *testing.T) {
	err := NewTransient(CodeScript, "boom", errors.New("exit status 127")).
		WithComponent("svc.a").WithStep("install")

	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty error message")
	}
	for _, want := range []string{"svc.a", "install", "exit status 127"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error message %q to contain %q", msg, want)
		}
	}
}
