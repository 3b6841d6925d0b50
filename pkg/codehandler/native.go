// Package codehandler supplies the two engine.HandlerFactory
// implementations a CodeBacked component's recipe.class can name:
// a native Go constructor registry,
// and a wazero-backed loader that runs the handler as a WASM module.
package codehandler

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

// Constructor builds a Handler from a config subtree's raw JSON bytes.
type Constructor func(ctx context.Context, config []byte) (engine.Handler, error)

// NativeRegistry is a process-wide table of Constructors keyed by
// handler ID, populated at program start.
type NativeRegistry struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	singletons   map[string]bool
}

// NewNativeRegistry returns an empty registry.
func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{
		constructors: make(map[string]Constructor),
		singletons:   make(map[string]bool),
	}
}

// Register adds constructor under handlerID. singleton marks the
// handler-id as a declared singleton; the
// ComponentRegistry enforces the single-instance invariant, this
// registry only reports the flag back via Singleton.
func (r *NativeRegistry) Register(handlerID string, singleton bool, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[handlerID] = constructor
	r.singletons[handlerID] = singleton
}

// New implements engine.HandlerFactory.
func (r *NativeRegistry) New(ctx context.Context, handlerID string, config []byte) (engine.Handler, error) {
	r.mu.Lock()
	constructor, ok := r.constructors[handlerID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no native handler registered for %s", handlerID)
	}
	return constructor(ctx, config)
}

// Singleton implements engine.HandlerFactory.
func (r *NativeRegistry) Singleton(handlerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.singletons[handlerID]
}
