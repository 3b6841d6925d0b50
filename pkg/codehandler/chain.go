package codehandler

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

// Chain tries each HandlerFactory in order and returns the first Handler
// built without error, so a process can register a small set of
// compiled-in native handlers ahead of a catch-all WASM loader. Any
// error moves on to the next factory, not only an unknown handler ID;
// if every factory fails, their errors are joined.
type Chain []engine.HandlerFactory

// New implements engine.HandlerFactory.
func (c Chain) New(ctx context.Context, handlerID string, config []byte) (engine.Handler, error) {
	var errs []error
	for _, f := range c {
		h, err := f.New(ctx, handlerID, config)
		if err == nil {
			return h, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no handler factory configured for %s", handlerID)
	}
	return nil, fmt.Errorf("no handler factory could resolve %s: %w", handlerID, errors.Join(errs...))
}

// Singleton implements engine.HandlerFactory: handlerID is a singleton if
// any link in the chain declares it as one.
func (c Chain) Singleton(handlerID string) bool {
	for _, f := range c {
		if f.Singleton(handlerID) {
			return true
		}
	}
	return false
}
