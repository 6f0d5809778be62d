package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wagi/errors"
	"github.com/wippyai/wagi/wasm"
)

// Config holds configuration for engine creation
type Config struct {
	// CacheDir is an optional directory for wazero's on-disk compilation
	// cache. Empty disables persistence; compiled modules are still
	// memoized in memory by content hash.
	CacheDir string
}

// Engine owns the process-wide wazero runtime and the compiled-module cache.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache

	mu      sync.RWMutex
	modules map[string]*Module
}

// Module pairs validated module bytes with their compiled artifact.
// Instances are immutable once returned by Load.
type Module struct {
	Name     string
	Hash     string // hex SHA-256 of Bytes
	Bytes    []byte
	Exports  []string // exported function names, declaration order
	compiled wazero.CompiledModule
}

// Compiled returns the engine-compiled artifact.
func (m *Module) Compiled() wazero.CompiledModule { return m.compiled }

// HasExport reports whether the module exports a function named name.
func (m *Module) HasExport(name string) bool {
	for _, e := range m.Exports {
		if e == name {
			return true
		}
	}
	return false
}

// New creates an engine. The runtime is configured to interrupt guest
// execution when the invocation context is cancelled, which is how
// request deadlines reach CPU-bound guests.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.IO(errors.PhaseCompile, "open compilation cache", err)
		}
		cache = c
		runtimeCfg = runtimeCfg.WithCompilationCache(c)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	return &Engine{
		runtime: rt,
		cache:   cache,
		modules: make(map[string]*Module),
	}, nil
}

// Runtime exposes the underlying wazero runtime for instantiation and
// host-module registration.
func (e *Engine) Runtime() wazero.Runtime { return e.runtime }

// Load validates and compiles module bytes, memoized by content hash.
// The returned Module is shared: callers must not mutate Bytes.
func (e *Engine) Load(ctx context.Context, name string, data []byte) (*Module, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	e.mu.RLock()
	if m, ok := e.modules[hash]; ok {
		e.mu.RUnlock()
		return m, nil
	}
	e.mu.RUnlock()

	if !wasm.IsModule(data) {
		return nil, errors.InvalidInput(errors.PhaseCompile, "not a core wasm module").WithRef(name)
	}
	exports, err := wasm.ExportedFunctions(data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindInvalidInput, err, "scan exports").WithRef(name)
	}

	compiled, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindInvalidInput, err, "compile module").WithRef(name)
	}

	m := &Module{
		Name:     name,
		Hash:     hash,
		Bytes:    data,
		Exports:  exports,
		compiled: compiled,
	}

	e.mu.Lock()
	// Another goroutine may have won the compile race; keep the first.
	if prev, ok := e.modules[hash]; ok {
		e.mu.Unlock()
		_ = compiled.Close(ctx)
		return prev, nil
	}
	e.modules[hash] = m
	e.mu.Unlock()

	Logger().Debug("module compiled",
		zap.String("name", name),
		zap.String("hash", hash[:12]),
		zap.Int("size", len(data)),
		zap.Strings("exports", exports))
	return m, nil
}

// Close releases the runtime and any on-disk cache handle.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
