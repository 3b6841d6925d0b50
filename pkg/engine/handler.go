package engine

import "context"

// Handler is the in-process lifecycle driver for a CodeBacked component:
// a code-backed component's install/
// startup/run/shutdown steps call into a Handler instead of a shell
// script. pkg/codehandler supplies HandlerFactory implementations (a
// native Go registry and a wazero-backed WASM loader) that produce
// Handlers from a config subtree.
type Handler interface {
	Install(ctx context.Context) error
	Startup(ctx context.Context) error
	// Run starts the component's main work. For a long-running handler
	// this blocks until the component should transition out of Running;
	// for a one-shot handler it returns promptly.
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// HandlerFactory constructs a Handler from a component's config subtree,
// given the recipe's configuration subtree encoded as JSON.
type HandlerFactory interface {
	// New instantiates a Handler for handlerID using config. Factories
	// build a new Handler on every call, singleton or not; the
	// ComponentRegistry keeps the first Handler of a singleton-flagged
	// handler ID and does not call New for it again.
	New(ctx context.Context, handlerID string, config []byte) (Handler, error)
	// Singleton reports whether handlerID was registered as a singleton.
	Singleton(handlerID string) bool
}
