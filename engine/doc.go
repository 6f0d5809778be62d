// Package engine wraps the wazero runtime for the WAGI server.
//
// One Engine lives for the whole process. It owns the wazero runtime with
// WASI preview1 instantiated, and a compiled-module cache keyed by the
// SHA-256 of the module bytes: loading the same bytes twice returns the
// same artifact without recompiling. An optional on-disk compilation
// cache directory lets wazero persist machine code across restarts.
//
// Compiled artifacts are code, not state. Instantiation (fresh linear
// memory, preopens, stdio) happens per request in the runner package.
package engine
