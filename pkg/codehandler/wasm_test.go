package codehandler

import (
	"context"
	"testing"
)

func TestWASMRegistrySingletonFlag(t *testing.T) {
	r := NewWASMRegistry(t.TempDir())
	r.MarkSingleton("blinker")

	if !r.Singleton("blinker") {
		t.Fatal("expected blinker to be flagged singleton")
	}
	if r.Singleton("other") {
		t.Fatal("expected unflagged handler id to report false")
	}
}

func TestWASMRegistryMissingModuleErrors(t *testing.T) {
	r := NewWASMRegistry(t.TempDir())
	if _, err := r.New(context.Background(), "nonexistent", nil); err == nil {
		t.Fatal("expected error when the wasm module file is absent")
	}
}
