// Package retrieval is the pluggable ranking extension point named in
// passing by the specification's document format ("optional subsystem
// settings (e.g. a retrieval section)"): a Ranker reorders the tool
// listing the Proxy Core returns to a downstream client, without
// changing which entries are enabled or visible. Prompts and resources
// are not ranked.
package retrieval

import (
	"context"
	"sort"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

// Entry is one orderable item: a qualified tool name paired with its
// originating backend's position in document insertion order, which
// the default Ranker uses as its primary sort key.
type Entry struct {
	Backend      string
	BackendIndex int
	Tool         vmcp.ToolRef
}

// Ranker reorders a set of discovered entries before they are returned
// to a downstream client. Implementations must be deterministic for a
// fixed input so that repeated list_tools calls are stable.
type Ranker interface {
	Rank(ctx context.Context, entries []Entry) []Entry
}

// PassthroughRanker orders entries by (backend insertion order, tool
// name), matching the specification's default listing order (section
// 4.5: "Tools are listed ... in backend-then-name order").
type PassthroughRanker struct{}

// NewPassthroughRanker returns the default, no-op-beyond-sorting Ranker.
func NewPassthroughRanker() PassthroughRanker { return PassthroughRanker{} }

// Rank implements Ranker.
func (PassthroughRanker) Rank(_ context.Context, entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BackendIndex != out[j].BackendIndex {
			return out[i].BackendIndex < out[j].BackendIndex
		}
		return out[i].Tool.Name < out[j].Tool.Name
	})
	return out
}

// Config carries the optional retrieval settings a document's
// "retrieval:" section may declare. The core document store does not
// interpret that section; the serve command decodes it into a Config.
type Config struct {
	// Enabled is read from the section's "enabled" key. PassthroughRanker
	// is the only Ranker in this package, so it does not change what New
	// returns.
	Enabled bool `yaml:"enabled"`
}

// New returns the Ranker for cfg. PassthroughRanker is the only
// implementation, and New returns it whether cfg is nil, disabled or
// enabled. New is the seam where another Ranker would be selected
// without touching the Proxy Core.
func New(cfg *Config) Ranker {
	if cfg == nil || !cfg.Enabled {
		return NewPassthroughRanker()
	}
	return NewPassthroughRanker()
}
