package transport

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

// FakeFactory is a hand-written test double for Factory. The pack's
// teacher tests lean on go.uber.org/mock-generated mocks throughout
// pkg/vmcp, but mockgen cannot be run in this environment (see
// DESIGN.md); FakeFactory plays the same role for the pkg/vmcp/backend,
// pkg/vmcp/discovery, pkg/vmcp/proxy and pkg/api/admin tests.
type FakeFactory struct {
	mu       sync.Mutex
	Sessions map[string]*FakeSession
	OpenErr  map[string]error
	Opens    int
}

// NewFakeFactory returns a FakeFactory with no registered backends.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		Sessions: map[string]*FakeSession{},
		OpenErr:  map[string]error{},
	}
}

// Open implements Factory.
func (f *FakeFactory) Open(_ context.Context, cfg Config) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opens++
	if err := f.OpenErr[cfg.Name]; err != nil {
		return nil, err
	}
	if s, ok := f.Sessions[cfg.Name]; ok {
		return s, nil
	}
	return &FakeSession{name: cfg.Name}, nil
}

// FakeSession is a hand-written Session test double with canned
// responses, closed-tracking, and optional per-call errors.
type FakeSession struct {
	mu sync.Mutex

	name string

	Caps      vmcp.Capabilities
	Tools     []mcp.Tool
	Prompts   []mcp.Prompt
	Resources []mcp.Resource

	CallToolErr error
	CallResult  *mcp.CallToolResult

	Closed    bool
	CloseErr  error
	CallCount int
}

func (s *FakeSession) Capabilities() vmcp.Capabilities { return s.Caps }

func (s *FakeSession) ListTools(context.Context) ([]mcp.Tool, error) {
	return s.Tools, nil
}

func (s *FakeSession) CallTool(_ context.Context, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.CallCount++
	s.mu.Unlock()
	if s.CallToolErr != nil {
		return nil, s.CallToolErr
	}
	if s.CallResult != nil {
		return s.CallResult, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "ok:" + name}},
	}, nil
}

func (s *FakeSession) ListPrompts(context.Context) ([]mcp.Prompt, error) {
	return s.Prompts, nil
}

func (s *FakeSession) GetPrompt(context.Context, string, map[string]any) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}

func (s *FakeSession) ListResources(context.Context) ([]mcp.Resource, error) {
	return s.Resources, nil
}

func (s *FakeSession) ReadResource(context.Context, string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return s.CloseErr
}
