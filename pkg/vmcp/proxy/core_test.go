package proxy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-mcp/vmcp/pkg/vmcp"
	"github.com/open-mcp/vmcp/pkg/vmcp/backend"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
	"github.com/open-mcp/vmcp/pkg/vmcp/transport"
)

func newTestDoc() *config.Document {
	doc := config.NewDocument()
	doc.Servers["alpha"] = &config.BackendConfig{
		Command: "run-alpha",
		Tools: map[string]*config.ToolEntry{
			"x": {Enabled: true, Stale: false, Description: "x tool"},
			"y": {Enabled: false, Stale: false, Description: "y tool"},
			"z": {Enabled: true, Stale: true, Description: "z tool"},
		},
	}
	doc.RegisterOrder("alpha")
	return doc
}

func TestToolFilter_HidesDisabledAndStale(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	core := NewCore(backend.NewManager(transport.NewFakeFactory()), config.NewStore(""), nil, doc)
	core.Build()

	in := []mcp.Tool{
		{Name: vmcp.QualifiedName("alpha", "x")},
		{Name: vmcp.QualifiedName("alpha", "y")},
		{Name: vmcp.QualifiedName("alpha", "z")},
	}
	out := core.toolFilter(context.Background(), in)

	require.Len(t, out, 1)
	assert.Equal(t, vmcp.QualifiedName("alpha", "x"), out[0].Name)
}

func TestCheckToolVisible_UnknownBackendAndHidden(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	core := NewCore(backend.NewManager(transport.NewFakeFactory()), config.NewStore(""), nil, doc)

	err := core.checkToolVisible("ghost", "x")
	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindUnknownBackend))

	err = core.checkToolVisible("alpha", "y")
	require.Error(t, err)
	assert.True(t, vmcp.IsKind(err, vmcp.KindToolHidden))

	err = core.checkToolVisible("alpha", "x")
	assert.NoError(t, err)
}

func TestRegisterBackend_ThenCallToolForwardsToSession(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	fake := transport.NewFakeFactory()
	fake.Sessions["alpha"] = &transport.FakeSession{
		CallResult: &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hello"}}},
	}
	mgr := backend.NewManager(fake)
	mgr.Register(backend.Config{Name: "alpha", Command: "run-alpha"})

	core := NewCore(mgr, config.NewStore(""), nil, doc)
	core.Build()
	core.RegisterBackend("alpha",
		[]vmcp.ToolRef{{Name: "x", Description: "x tool"}},
		nil, nil,
		vmcp.Capabilities{Tools: true},
	)

	handler := core.createToolHandler("alpha", "x")
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
}

func TestCallTool_HiddenToolReturnsErrorResultNotProtocolError(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	mgr := backend.NewManager(transport.NewFakeFactory())
	core := NewCore(mgr, config.NewStore(""), nil, doc)
	core.Build()

	handler := core.createToolHandler("alpha", "y")
	result, err := handler(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err, "hidden tools must surface as an MCP error-result, not a protocol error")
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestUnregisterBackend_RemovesFromResourceIndexAndDocument(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	fake := transport.NewFakeFactory()
	mgr := backend.NewManager(fake)
	mgr.Register(backend.Config{Name: "alpha", Command: "run-alpha"})

	store := config.NewStore(filepath.Join(t.TempDir(), "servers.yaml"))
	core := NewCore(mgr, store, nil, doc)
	core.Build()
	core.RegisterBackend("alpha", nil, nil,
		[]vmcp.ResourceRef{{URI: "res://alpha/thing"}},
		vmcp.Capabilities{Resources: true},
	)

	_, ok := core.ResolveResourceURI("res://alpha/thing")
	require.True(t, ok)

	err := core.UnregisterBackend("alpha", true)
	require.NoError(t, err)

	_, ok = core.ResolveResourceURI("res://alpha/thing")
	assert.False(t, ok)
	_, ok = doc.Servers["alpha"]
	assert.False(t, ok)
}

func TestNotifyListChanged_SkippedWithoutDownstreamSession(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	core := NewCore(backend.NewManager(transport.NewFakeFactory()), config.NewStore(""), nil, doc)
	core.Build()

	assert.False(t, core.hasDownstreamSession())
	// No downstream session installed: notifyListChanged must no-op rather
	// than attempt delivery (section 8 property 8).
	core.notifyListChanged(vmcp.Capabilities{Tools: true})

	core.SetDownstreamSession("session-1")
	assert.True(t, core.hasDownstreamSession())
	core.ClearDownstreamSession()
	assert.False(t, core.hasDownstreamSession())
}

func TestListToolNames_OnlyEnabledNotStale(t *testing.T) {
	t.Parallel()
	doc := newTestDoc()
	core := NewCore(backend.NewManager(transport.NewFakeFactory()), config.NewStore(""), nil, doc)

	names := core.ListToolNames()
	assert.Equal(t, []string{"x"}, names["alpha"])
}
