package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

func TestStore_LoadMissingFileYieldsEmptyDocument(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))

	doc, err := store.Load()

	require.NoError(t, err)
	assert.Empty(t, doc.Servers)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "servers.yaml")
	store := NewStore(path)

	doc := NewDocument()
	doc.Servers["alpha"] = &BackendConfig{
		Command:  "echo",
		Args:     []string{"hi"},
		AlwaysOn: true,
		Tools: map[string]*ToolEntry{
			"x": {Enabled: true, Stale: false, Description: "does x"},
		},
	}
	doc.RegisterOrder("alpha")
	doc.Servers["beta"] = &BackendConfig{URL: "https://example.com/mcp"}
	doc.RegisterOrder("beta")

	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, loaded.ServerOrder())
	assert.Equal(t, "echo", loaded.Servers["alpha"].Command)
	assert.True(t, loaded.Servers["alpha"].AlwaysOn)
	assert.True(t, loaded.Servers["alpha"].Tools["x"].Enabled)
	assert.Equal(t, "https://example.com/mcp", loaded.Servers["beta"].URL)
}

func TestStore_SaveIsAtomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.yaml")
	store := NewStore(path)

	require.NoError(t, store.Save(NewDocument()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temp file should remain after a successful save")
	}
}

func TestStore_LoadCorruptDocumentReturnsConfigCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: [this is not a map"), 0o644))
	store := NewStore(path)

	_, err := store.Load()

	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindConfigCorrupt))
}
