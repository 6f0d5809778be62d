// Package route implements the WAGI routing table.
//
// A Pattern is either exact ("/foo") or wildcard ("/foo/..."); a Handler
// pairs a pattern with everything needed to invoke a module for it. The
// Table orders handlers so that exact routes precede wildcards and longer
// static prefixes precede shorter ones, then answers first-match-wins
// lookups. Tables are immutable after construction, so concurrent reads
// on the request path need no synchronization.
package route
