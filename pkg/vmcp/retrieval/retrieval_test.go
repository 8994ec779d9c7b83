package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

func TestPassthroughRanker_OrdersByBackendThenName(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{Backend: "b", BackendIndex: 1, Tool: vmcp.ToolRef{Name: "zeta"}},
		{Backend: "a", BackendIndex: 0, Tool: vmcp.ToolRef{Name: "beta"}},
		{Backend: "a", BackendIndex: 0, Tool: vmcp.ToolRef{Name: "alpha"}},
	}

	ranked := NewPassthroughRanker().Rank(context.Background(), entries)

	assert.Equal(t, []string{"alpha", "beta", "zeta"}, []string{
		ranked[0].Tool.Name, ranked[1].Tool.Name, ranked[2].Tool.Name,
	})
}

func TestPassthroughRanker_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{Backend: "b", BackendIndex: 1, Tool: vmcp.ToolRef{Name: "zeta"}},
		{Backend: "a", BackendIndex: 0, Tool: vmcp.ToolRef{Name: "alpha"}},
	}
	original := append([]Entry(nil), entries...)

	_ = NewPassthroughRanker().Rank(context.Background(), entries)

	assert.Equal(t, original, entries)
}

func TestNew_DisabledOrNilYieldsPassthrough(t *testing.T) {
	t.Parallel()
	_, okNil := New(nil).(PassthroughRanker)
	assert.True(t, okNil)

	_, okDisabled := New(&Config{Enabled: false}).(PassthroughRanker)
	assert.True(t, okDisabled)
}
