package route

import (
	"strings"

	"github.com/wippyai/wagi/errors"
)

const wildcardSuffix = "/..."

// Pattern is a route pattern: exact, or a wildcard covering a prefix and
// all sub-paths beneath it.
type Pattern struct {
	prefix   string
	wildcard bool
}

// ParsePattern builds a Pattern from its configured string form. A
// trailing "/..." marks a wildcard; anything else matches exactly.
func ParsePattern(s string) (Pattern, error) {
	if s == "" || !strings.HasPrefix(s, "/") {
		return Pattern{}, errors.InvalidInput(errors.PhaseConfig, "route %q must be non-empty and begin with /", s)
	}
	if strings.HasSuffix(s, wildcardSuffix) {
		return Pattern{prefix: strings.TrimSuffix(s, wildcardSuffix), wildcard: true}, nil
	}
	return Pattern{prefix: s}, nil
}

// String renders the canonical pattern, wildcards with their "/..." suffix.
// This is the value published as X_MATCHED_ROUTE.
func (p Pattern) String() string {
	if p.wildcard {
		return p.prefix + wildcardSuffix
	}
	return p.prefix
}

// IsWildcard reports whether the pattern covers sub-paths.
func (p Pattern) IsWildcard() bool { return p.wildcard }

// Prefix returns the static prefix, the value published as SCRIPT_NAME.
func (p Pattern) Prefix() string { return p.prefix }

// Match tests a request path. For wildcard patterns the returned tail is
// the portion matched by "/..." without its leading slash; it is empty
// for exact patterns and for a wildcard matched on exactly its prefix.
func (p Pattern) Match(path string) (tail string, ok bool) {
	if path == p.prefix {
		return "", true
	}
	if p.wildcard && strings.HasPrefix(path, p.prefix+"/") {
		return path[len(p.prefix)+1:], true
	}
	return "", false
}

// Sub derives the pattern of a sub-route declared by a module's _routes
// output: the parent's static prefix concatenated with the sub-pattern,
// preserving the sub-pattern's wildcard suffix.
func (p Pattern) Sub(sub Pattern) Pattern {
	return Pattern{prefix: p.prefix + sub.prefix, wildcard: sub.wildcard}
}
