package codehandler

import (
	"context"
	"errors"
	"testing"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

type stubHandler struct {
	installed bool
}

func (s *stubHandler) Install(ctx context.Context) error  { s.installed = true; return nil }
func (s *stubHandler) Startup(ctx context.Context) error  { return nil }
func (s *stubHandler) Run(ctx context.Context) error      { return nil }
func (s *stubHandler) Shutdown(ctx context.Context) error { return nil }

func TestNativeRegistryNewInvokesConstructor(t *testing.T) {
	r := NewNativeRegistry()
	h := &stubHandler{}
	r.Register("sleeper", false, func(ctx context.Context, config []byte) (engine.Handler, error) {
		return h, nil
	})

	got, err := r.New(context.Background(), "sleeper", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := got.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !h.installed {
		t.Fatal("expected underlying stub to be installed")
	}
}

func TestNativeRegistryUnknownHandlerErrors(t *testing.T) {
	r := NewNativeRegistry()
	if _, err := r.New(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unregistered handler id")
	}
}

func TestNativeRegistrySingletonFlag(t *testing.T) {
	r := NewNativeRegistry()
	r.Register("svc-a", true, func(ctx context.Context, config []byte) (engine.Handler, error) {
		return &stubHandler{}, nil
	})
	r.Register("svc-b", false, func(ctx context.Context, config []byte) (engine.Handler, error) {
		return &stubHandler{}, nil
	})

	if !r.Singleton("svc-a") {
		t.Fatal("expected svc-a to be a singleton")
	}
	if r.Singleton("svc-b") {
		t.Fatal("expected svc-b to not be a singleton")
	}
	if r.Singleton("unknown") {
		t.Fatal("expected unregistered handler id to report false")
	}
}

func TestNativeRegistryConstructorError(t *testing.T) {
	r := NewNativeRegistry()
	wantErr := errors.New("boom")
	r.Register("broken", false, func(ctx context.Context, config []byte) (engine.Handler, error) {
		return nil, wantErr
	})

	if _, err := r.New(context.Background(), "broken", nil); !errors.Is(err, wantErr) {
		t.Fatalf("expected constructor error to propagate, got %v", err)
	}
}
