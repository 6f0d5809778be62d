// Package errors provides structured error types for the WAGI server.
//
// Errors carry a Phase (where in processing they occurred) and a Kind
// (what went wrong), plus optional route/reference context for startup
// diagnostics. Startup phases (config, resolve, compile, discover) are
// fatal; request phases (route, run, cgi) are recovered into HTTP
// statuses by the dispatcher and never propagate past the response.
package errors
