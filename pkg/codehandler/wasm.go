package codehandler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

// WASMRegistry is an engine.HandlerFactory that instantiates a WASM
// module per handler ID from Dir/<handlerID>.wasm, narrowed to the
// four-verb Handler contract.
type WASMRegistry struct {
	Dir string
	// MemoryLimitPages bounds a handler module's linear memory, 64KB
	// each. Defaults to 256 (16MB) if zero.
	MemoryLimitPages uint32

	mu         sync.Mutex
	singletons map[string]bool
}

// NewWASMRegistry returns a registry loading modules from dir.
func NewWASMRegistry(dir string) *WASMRegistry {
	return &WASMRegistry{
		Dir:        dir,
		singletons: make(map[string]bool),
	}
}

// MarkSingleton flags handlerID as a declared singleton.
func (r *WASMRegistry) MarkSingleton(handlerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singletons[handlerID] = true
}

// Singleton implements engine.HandlerFactory.
func (r *WASMRegistry) Singleton(handlerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.singletons[handlerID]
}

// New implements engine.HandlerFactory: compiles and instantiates
// Dir/<handlerID>.wasm, wiring config as the module's initial input.
func (r *WASMRegistry) New(ctx context.Context, handlerID string, config []byte) (engine.Handler, error) {
	wasmPath := filepath.Join(r.Dir, handlerID+".wasm")
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("read wasm module %s: %w", wasmPath, err)
	}

	limit := r.MemoryLimitPages
	if limit == 0 {
		limit = 256
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(limit).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI for %s: %w", handlerID, err)
	}

	module, err := rt.Instantiate(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasm module %s: %w", handlerID, err)
	}

	h, err := newWASMHandler(module, rt)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("bridge wasm module %s: %w", handlerID, err)
	}

	if err := h.callInit(ctx, config); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("%s handler_init: %w", handlerID, err)
	}

	return h, nil
}

// wasmHandler implements engine.Handler by calling four exported
// functions with an (input_ptr, input_len) -> packed (output_ptr,
// output_len) calling convention.
type wasmHandler struct {
	module api.Module
	rt     wazero.Runtime
	memory api.Memory
	malloc api.Function
	free   api.Function

	fnInit     api.Function
	fnInstall  api.Function
	fnStartup  api.Function
	fnRun      api.Function
	fnShutdown api.Function
}

func newWASMHandler(module api.Module, rt wazero.Runtime) (*wasmHandler, error) {
	h := &wasmHandler{module: module, rt: rt}

	h.memory = module.Memory()
	if h.memory == nil {
		return nil, fmt.Errorf("module does not export memory")
	}
	h.malloc = module.ExportedFunction("malloc")
	h.free = module.ExportedFunction("free")
	if h.malloc == nil || h.free == nil {
		return nil, fmt.Errorf("module does not export malloc/free")
	}

	h.fnInit = module.ExportedFunction("handler_init")
	h.fnInstall = module.ExportedFunction("handler_install")
	h.fnStartup = module.ExportedFunction("handler_startup")
	h.fnRun = module.ExportedFunction("handler_run")
	h.fnShutdown = module.ExportedFunction("handler_shutdown")
	for name, fn := range map[string]api.Function{
		"handler_init": h.fnInit, "handler_install": h.fnInstall,
		"handler_startup": h.fnStartup, "handler_run": h.fnRun,
		"handler_shutdown": h.fnShutdown,
	} {
		if fn == nil {
			return nil, fmt.Errorf("module does not export %s", name)
		}
	}

	return h, nil
}

func (h *wasmHandler) callInit(ctx context.Context, config []byte) error {
	_, err := h.call(ctx, h.fnInit, config)
	return err
}

func (h *wasmHandler) Install(ctx context.Context) error {
	_, err := h.call(ctx, h.fnInstall, nil)
	return err
}

func (h *wasmHandler) Startup(ctx context.Context) error {
	_, err := h.call(ctx, h.fnStartup, nil)
	return err
}

func (h *wasmHandler) Run(ctx context.Context) error {
	_, err := h.call(ctx, h.fnRun, nil)
	return err
}

func (h *wasmHandler) Shutdown(ctx context.Context) error {
	_, callErr := h.call(ctx, h.fnShutdown, nil)
	if closeErr := h.rt.Close(ctx); closeErr != nil {
		return closeErr
	}
	return callErr
}

func (h *wasmHandler) call(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := h.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, err
		}
		defer h.deallocate(ctx, ptr)
		if !h.memory.Write(ptr, input) {
			return nil, fmt.Errorf("failed to write input to wasm memory")
		}
		inputPtr, inputLen = ptr, uint32(len(input))
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("wasm function returned no results")
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)
	if outputLen == 0 {
		return nil, nil
	}

	output, ok := h.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read output from wasm memory")
	}
	defer h.deallocate(ctx, outputPtr)

	out := make([]byte, len(output))
	copy(out, output)
	return out, nil
}

func (h *wasmHandler) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := h.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc: %w", err)
	}
	return uint32(results[0]), nil
}

func (h *wasmHandler) deallocate(ctx context.Context, ptr uint32) {
	_, _ = h.free.Call(ctx, uint64(ptr))
}
