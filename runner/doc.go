// Package runner executes a handler's module for one invocation.
//
// Every Run creates a fresh instance: fresh linear memory, its own
// preopened directories (exactly the handler's volumes), an isolated
// environment, stdin wired to the request body, and in-memory stdout and
// stderr sinks. Instances are never shared or reused; only the compiled
// artifact is shared through the engine.
//
// The one non-WASI capability is the outbound-HTTP host module, gated by
// the handler's allow-list. Its per-invocation state travels on the call
// context, so a single host module instance serves every handler.
package runner
