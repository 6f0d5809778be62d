// Package wasm provides lightweight scanning of WebAssembly binaries.
//
// The server does not need a full decoder: it validates that module bytes
// are a plausible core Wasm binary before handing them to the engine, and
// it lists exported function names so that entrypoints and the optional
// _routes export can be checked at startup without instantiating anything.
//
// Scanning walks the section framing only; function bodies are skipped.
package wasm
