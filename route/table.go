package route

import (
	"sort"

	"github.com/wippyai/wagi/engine"
)

// DefaultEntrypoint is the export invoked when a handler names none.
const DefaultEntrypoint = "_start"

// Handler contains everything needed to invoke a module for one route.
// Handlers are immutable once the table is built.
type Handler struct {
	Pattern      Pattern
	Module       *engine.Module
	Entrypoint   string
	Volumes      map[string]string // guest path -> host path
	Environment  map[string]string
	AllowedHosts []string
	// MaxHTTPConcurrency bounds concurrent outbound HTTP requests from
	// this handler; 0 means unlimited.
	MaxHTTPConcurrency uint32
}

// Derive returns a copy of h serving a sub-route with its own entrypoint.
func (h *Handler) Derive(p Pattern, entrypoint string) *Handler {
	d := *h
	d.Pattern = p
	d.Entrypoint = entrypoint
	return &d
}

// Table is an ordered, immutable sequence of handlers.
type Table struct {
	entries []*Handler
}

// NewTable orders handlers for first-match-wins lookup: exact routes
// before wildcards, longer static prefixes before shorter, insertion
// order within ties. The input slice is not retained.
func NewTable(handlers []*Handler) *Table {
	entries := make([]*Handler, len(handlers))
	copy(entries, handlers)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Pattern, entries[j].Pattern
		if a.IsWildcard() != b.IsWildcard() {
			return !a.IsWildcard()
		}
		return len(a.Prefix()) > len(b.Prefix())
	})
	return &Table{entries: entries}
}

// Match scans entries top to bottom and returns the first handler whose
// pattern matches, along with the wildcard tail for X_RELATIVE_PATH.
func (t *Table) Match(path string) (h *Handler, tail string, ok bool) {
	for _, e := range t.entries {
		if tail, ok := e.Pattern.Match(path); ok {
			return e, tail, true
		}
	}
	return nil, "", false
}

// Entries returns the ordered handlers, for startup logs and inspection.
func (t *Table) Entries() []*Handler { return t.entries }

// Len returns the number of routing entries.
func (t *Table) Len() int { return len(t.entries) }
