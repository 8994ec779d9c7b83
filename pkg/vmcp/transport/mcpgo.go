package transport

import (
	"context"
	"fmt"

	sdkclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

// clientName/clientVersion identify this proxy to upstream backends
// during the MCP initialize handshake.
const (
	clientName    = "vmcp"
	clientVersion = "0.1.0"
)

// mcpGoFactory builds Sessions backed by the mark3labs/mcp-go client
// package, dispatching on Config.Type (or URL presence) to pick the
// stdio, SSE, or streamable-HTTP constructor. This is the only Factory
// implementation shipped; it is grounded directly on
// other_examples/Jint8888-Pocket-Omega's client wrapper for the
// stdio/SSE construction and handshake sequence.
type mcpGoFactory struct{}

// NewFactory returns the default transport factory.
func NewFactory() Factory {
	return mcpGoFactory{}
}

func (mcpGoFactory) Open(ctx context.Context, cfg Config) (Session, error) {
	inner, err := dial(ctx, cfg)
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, cfg.Name, err)
	}

	initResult, err := inner.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		_ = inner.Close()
		return nil, vmcp.New(vmcp.KindTransportFailed, cfg.Name, fmt.Errorf("initialize: %w", err))
	}

	return &session{
		name:   cfg.Name,
		inner:  inner,
		caps:   capabilitiesOf(initResult),
	}, nil
}

func dial(ctx context.Context, cfg Config) (sdkclient.MCPClient, error) {
	switch {
	case cfg.Command != "":
		return sdkclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)

	case cfg.URL != "" && cfg.Type == vmcp.TransportSSE:
		cli, err := sdkclient.NewSSEMCPClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := cli.Start(ctx); err != nil {
			return nil, err
		}
		return cli, nil

	case cfg.URL != "":
		// Default to streamable-HTTP for URL backends with no
		// explicit "sse" hint; this is mcp-go's modern transport and
		// the teacher/pack's own remote clients (e.g.
		// giantswarm-muster's StreamableHTTPClient) prefer it.
		return sdkclient.NewStreamableHttpClient(cfg.URL)

	default:
		return nil, fmt.Errorf("backend %q declares neither command nor url", cfg.Name)
	}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func capabilitiesOf(res *mcp.InitializeResult) vmcp.Capabilities {
	if res == nil {
		return vmcp.Capabilities{}
	}
	return vmcp.Capabilities{
		Tools:     res.Capabilities.Tools != nil,
		Prompts:   res.Capabilities.Prompts != nil,
		Resources: res.Capabilities.Resources != nil,
	}
}

// session adapts an sdkclient.MCPClient to this package's Session
// interface.
type session struct {
	name  string
	inner sdkclient.MCPClient
	caps  vmcp.Capabilities
}

func (s *session) Capabilities() vmcp.Capabilities { return s.caps }

func (s *session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := s.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, s.name, err)
	}
	return res.Tools, nil
}

func (s *session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.inner.CallTool(ctx, req)
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, s.name, err)
	}
	return res, nil
}

func (s *session) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	res, err := s.inner.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, s.name, err)
	}
	return res.Prompts, nil
}

func (s *session) GetPrompt(ctx context.Context, name string, args map[string]any) (*mcp.GetPromptResult, error) {
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	stringArgs := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			stringArgs[k] = s
		}
	}
	req.Params.Arguments = stringArgs
	res, err := s.inner.GetPrompt(ctx, req)
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, s.name, err)
	}
	return res, nil
}

func (s *session) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	res, err := s.inner.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, s.name, err)
	}
	return res.Resources, nil
}

func (s *session) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := s.inner.ReadResource(ctx, req)
	if err != nil {
		return nil, vmcp.New(vmcp.KindTransportFailed, s.name, err)
	}
	return res, nil
}

func (s *session) Close() error {
	return s.inner.Close()
}
