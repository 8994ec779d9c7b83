// Package transport is the "abstract transport factory" of
// specification section 1: a narrow capability set {open, initialize,
// request, close} that the Backend Manager depends on without caring
// whether the backend is a local subprocess or a remote endpoint.
package transport

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

// Session is an open connection to a single upstream MCP backend,
// after the initialize handshake has completed. It is the capability
// set {initialize, request, close} the Backend Manager forwards
// requests through; Open (on Factory) provides the preceding {open}
// step.
type Session interface {
	// Capabilities reports which capability classes the backend
	// advertised at initialize time.
	Capabilities() vmcp.Capabilities

	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)

	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]any) (*mcp.GetPromptResult, error)

	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

	// Close releases the session's transport resources (subprocess,
	// socket, HTTP connection pool). It is idempotent.
	Close() error
}

// Config is the subset of config.BackendConfig a Factory needs to
// open a session; it is a plain struct (not config.BackendConfig
// itself) so this package does not depend on pkg/vmcp/config.
type Config struct {
	Name string

	Command string
	Args    []string
	Env     map[string]string

	URL  string
	Type vmcp.TransportKind
}

// Factory opens a Session for a backend config. Implementations are
// the tagged variant described in the specification's design notes:
// Stdio, StreamableHTTP, or SSE, selected by Config.Type (or, for URL
// backends with no hint, a fixed preference order).
type Factory interface {
	Open(ctx context.Context, cfg Config) (Session, error)
}
