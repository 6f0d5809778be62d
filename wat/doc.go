// Package wat compiles WebAssembly Text format into binary Wasm.
//
// Module references ending in .wat are expanded through this package at
// load time, and the test suites use it to build guest fixtures without
// shipping binary testdata.
//
// Basic usage:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "_start"))
//	)`)
//
// The supported subset covers what CGI-style WASI guests need:
//   - Functions with params, results, locals (named and indexed)
//   - Function and memory imports and exports
//   - Memory declarations and active data segments
//   - Control flow: block, loop, if/then/else, br, br_if, return, call
//   - i32/i64 arithmetic, comparison, and bitwise instructions
//   - i32/i64 loads and stores with offset/align immediates
//   - f32/f64 constants
//   - Folded and flat instruction forms
//   - Comments: line (;;) and block (; ;)
//
// Not supported: SIMD, threads, reference types, tables, exception
// handling, multi-value blocks.
package wat
