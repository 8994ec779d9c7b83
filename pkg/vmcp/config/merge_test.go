package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

func TestMerge_InsertsNewTool(t *testing.T) {
	t.Parallel()
	doc := NewDocument()

	Merge(doc, "alpha", []vmcp.ToolRef{{Name: "x", Description: "does x"}})

	require.Contains(t, doc.Servers, "alpha")
	entry := doc.Servers["alpha"].Tools["x"]
	require.NotNil(t, entry)
	assert.True(t, entry.Enabled)
	assert.False(t, entry.Stale)
	assert.Equal(t, "does x", entry.Description)
}

func TestMerge_PreservesEnabledAcrossRediscovery(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Servers["alpha"] = &BackendConfig{Tools: map[string]*ToolEntry{
		"x": {Enabled: false, Stale: false, Description: "old"},
	}}

	Merge(doc, "alpha", []vmcp.ToolRef{{Name: "x", Description: "new"}})

	entry := doc.Servers["alpha"].Tools["x"]
	assert.False(t, entry.Enabled, "enabled must never be overwritten by rediscovery")
	assert.False(t, entry.Stale)
	assert.Equal(t, "new", entry.Description)
}

func TestMerge_MarksMissingToolStale(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Servers["alpha"] = &BackendConfig{Tools: map[string]*ToolEntry{
		"x": {Enabled: true, Stale: false, Description: "old"},
	}}

	Merge(doc, "alpha", nil)

	entry := doc.Servers["alpha"].Tools["x"]
	assert.True(t, entry.Stale)
	assert.True(t, entry.Enabled, "enabled is preserved while stale")
}

func TestMerge_StaleRoundTrip(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Servers["alpha"] = &BackendConfig{Tools: map[string]*ToolEntry{
		"x": {Enabled: true, Stale: false, Description: "v1"},
	}}

	Merge(doc, "alpha", nil) // now stale
	require.True(t, doc.Servers["alpha"].Tools["x"].Stale)

	Merge(doc, "alpha", []vmcp.ToolRef{{Name: "x", Description: "v2"}})

	entry := doc.Servers["alpha"].Tools["x"]
	assert.False(t, entry.Stale)
	assert.True(t, entry.Enabled, "enabled unchanged throughout")
	assert.Equal(t, "v2", entry.Description)
}

func TestPruneStaleDisabled_RemovesOnlyStaleAndDisabled(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Servers["alpha"] = &BackendConfig{Tools: map[string]*ToolEntry{
		"x": {Enabled: false, Stale: true},
		"y": {Enabled: true, Stale: true},
		"z": {Enabled: false, Stale: false},
	}}

	removed := doc.PruneStaleDisabled("alpha")

	assert.Equal(t, 1, removed)
	_, stillThere := doc.Servers["alpha"].Tools["x"]
	assert.False(t, stillThere)
	assert.Len(t, doc.Servers["alpha"].Tools, 2)
}

func TestMerge_CreatesBackendEntryIfAbsent(t *testing.T) {
	t.Parallel()
	doc := NewDocument()

	Merge(doc, "beta", []vmcp.ToolRef{{Name: "z"}})

	assert.Equal(t, []string{"beta"}, doc.ServerOrder())
}
