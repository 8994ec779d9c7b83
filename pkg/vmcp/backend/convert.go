package backend

import (
	"github.com/open-mcp/vmcp/pkg/vmcp"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
)

// FromBackendConfig builds the Manager's Config from a document entry,
// translating the document's string transport hint into vmcp.TransportKind.
func FromBackendConfig(name string, b *config.BackendConfig) Config {
	return Config{
		Name:               name,
		Command:            b.Command,
		Args:               b.Args,
		Env:                b.Env,
		URL:                b.URL,
		Type:               transportKind(b.Type),
		AlwaysOn:           b.AlwaysOn,
		IdleTimeoutMinutes: b.IdleTimeoutMinutes,
	}
}

func transportKind(hint string) vmcp.TransportKind {
	switch vmcp.TransportKind(hint) {
	case vmcp.TransportStreamableHTTP:
		return vmcp.TransportStreamableHTTP
	case vmcp.TransportSSE:
		return vmcp.TransportSSE
	default:
		return vmcp.TransportStdio
	}
}
