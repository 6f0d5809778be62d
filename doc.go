// Package wagi implements a WebAssembly Gateway Interface server: an HTTP
// front-end that dispatches requests to sandboxed Wasm/WASI modules using
// CGI 1.1 conventions (environment variables, arguments, stdin/stdout).
//
// # Architecture Overview
//
// The repository is organized into packages with distinct responsibilities:
//
//	wagi/
//	├── server/      Request dispatcher, sub-route discovery, HTTP serving
//	├── route/       Route patterns, handler specs, the routing table
//	├── cgi/         HTTP request -> CGI environment, CGI response parsing
//	├── runner/      Per-request module instantiation and the outbound-HTTP host module
//	├── engine/      wazero runtime wrapper and the compiled-module cache
//	├── loader/      Module source resolution (file, OCI image, bindle parcel)
//	├── config/      Module manifest parsing and startup validation
//	├── bindle/      Bindle invoice types, client, and asset emplacement
//	├── wat/         WAT text format to Wasm binary compiler
//	├── wasm/        Wasm binary scanning (validity check, export listing)
//	├── errors/      Structured error types
//	└── version/     Server identification constants
//
// # Quick Start
//
// Build a server from a module manifest and serve:
//
//	eng, err := engine.New(ctx, engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	handlers, err := config.Load(ctx, eng, config.Settings{ManifestPath: "modules.toml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(ctx, eng, handlers, server.Options{DefaultHost: "localhost:3000"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":3000", srv)
//
// Routing, module bytes, and compiled artifacts are frozen at startup;
// every request gets a fresh module instance with its own linear memory,
// preopened directories, and stdio buffers.
package wagi
