// Package config implements the Declarative Document Store (C1) and
// Merge Engine (C2): the unified, human-editable document that is
// simultaneously startup cache, user policy, and discovered-tool
// inventory.
package config

import "sort"

// Document is the top-level unified document (section 6). It is the
// sole durable state; everything else the proxy tracks at runtime is
// reconstructed from it plus live discovery.
type Document struct {
	Servers map[string]*BackendConfig `yaml:"servers"`

	// Retrieval carries the optional subsystem settings the
	// specification mentions only in passing ("optional subsystem
	// settings (e.g. a retrieval section)"); the serve command decodes
	// it into a retrieval.Config, and the core document store does not
	// interpret its contents.
	Retrieval map[string]any `yaml:"retrieval,omitempty"`

	// order records backend insertion order (section 4.5: "Insertion
	// order into the document is preserved for deterministic
	// listing"). Go maps have no iteration order, so this is tracked
	// out of band rather than in Servers itself; it is populated from
	// the document's on-disk key order at load time and updated by
	// RegisterOrder whenever a backend is added.
	order []string `yaml:"-"`
}

// NewDocument returns an empty document equivalent to a missing file.
func NewDocument() *Document {
	return &Document{Servers: map[string]*BackendConfig{}}
}

// RegisterOrder appends name to the tracked insertion order if it is
// not already present. Callers invoke this whenever a backend is
// added to Servers outside of Load (which derives order from the
// file's own key order).
func (d *Document) RegisterOrder(name string) {
	for _, n := range d.order {
		if n == name {
			return
		}
	}
	d.order = append(d.order, name)
}

// ServerOrder returns backend names in insertion order, followed by
// any backend present in Servers but missing from the tracked order
// (defensive fallback, sorted lexically so the result stays
// deterministic even then).
func (d *Document) ServerOrder() []string {
	seen := make(map[string]bool, len(d.order))
	out := make([]string, 0, len(d.Servers))
	for _, name := range d.order {
		if _, ok := d.Servers[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range d.Servers {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// RemoveOrder drops name from the tracked insertion order.
func (d *Document) RemoveOrder(name string) {
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// BackendConfig is one backend entry under servers: (section 6).
// Exactly one of {Command, URL} must be set. Neither the type system
// nor Store.Load enforces that invariant, which keeps the document
// format a plain YAML map; the admin surface's POST /mcp_servers
// rejects requests that violate it.
type BackendConfig struct {
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	URL  string `yaml:"url,omitempty"`
	Type string `yaml:"type,omitempty"` // "stdio" | "streamable-http" | "sse"

	AlwaysOn           bool `yaml:"always_on"`
	IdleTimeoutMinutes int  `yaml:"idle_timeout_minutes"`

	Tools map[string]*ToolEntry `yaml:"tools,omitempty"`
}

// DefaultIdleTimeoutMinutes is applied when a backend entry omits
// idle_timeout_minutes.
const DefaultIdleTimeoutMinutes = 5

// IsRemote reports whether this backend is addressed by URL rather
// than local command.
func (b *BackendConfig) IsRemote() bool {
	return b.URL != ""
}

// IdleTimeout returns the configured idle timeout, defaulting per
// DefaultIdleTimeoutMinutes when unset.
func (b *BackendConfig) IdleTimeout() int {
	if b.IdleTimeoutMinutes <= 0 {
		return DefaultIdleTimeoutMinutes
	}
	return b.IdleTimeoutMinutes
}

// ToolEntry is one tool's recorded policy and last observation
// (section 3: "Tool entry").
type ToolEntry struct {
	// Enabled is user policy: default true on first discovery, never
	// overwritten by rediscovery. Mutated only by the user or an
	// explicit administrative command.
	Enabled bool `yaml:"enabled"`
	// Stale is true iff the last discovery no longer saw this tool.
	Stale bool `yaml:"stale"`
	// Description is the most recently observed description.
	Description string `yaml:"description"`
}

// SortedServerNames returns backend names in lexical order. Use this
// for alphabetical listings; use ServerOrder for the deterministic
// insertion-order listing the specification requires of discovery and
// tools/list.
func (d *Document) SortedServerNames() []string {
	names := make([]string, 0, len(d.Servers))
	for name := range d.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedToolNames returns a backend's tool names in lexical order, so
// that key order within a backend is stable for human diffs (section
// 4.1: "Key order within a backend must be stable (sorted by tool
// name)").
func (b *BackendConfig) SortedToolNames() []string {
	names := make([]string, 0, len(b.Tools))
	for name := range b.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PruneStaleDisabled removes every tool entry of the named backend
// that is both stale and disabled (section 4.2, "Eligible for pruning
// on next merge cycle"). Per the resolved open question in DESIGN.md,
// this runs only when the caller explicitly invokes it (an
// administrative action), never automatically after a discovery
// merge.
func (d *Document) PruneStaleDisabled(backend string) int {
	b, ok := d.Servers[backend]
	if !ok {
		return 0
	}
	removed := 0
	for name, entry := range b.Tools {
		if entry.Stale && !entry.Enabled {
			delete(b.Tools, name)
			removed++
		}
	}
	return removed
}
