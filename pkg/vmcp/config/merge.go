package config

import "github.com/open-mcp/vmcp/pkg/vmcp"

// Merge reconciles a freshly observed tool list for backend with the
// persisted document, implementing the Merge Engine (C2). It is pure
// and total: it never fails, and it never mutates enabled except to
// default it true for a never-before-seen tool.
//
//   - observed, not in document -> insert, enabled=true, stale=false.
//   - observed, already present -> keep enabled, clear stale, refresh
//     description.
//   - in document, not observed -> set stale=true, preserve enabled.
//
// If the named backend is not yet present in the document, it is
// created with default settings so that discovery can call Merge
// before the backend's BackendConfig has been otherwise populated.
func Merge(doc *Document, backend string, observed []vmcp.ToolRef) *Document {
	b, ok := doc.Servers[backend]
	if !ok {
		b = &BackendConfig{}
		doc.Servers[backend] = b
		doc.RegisterOrder(backend)
	}
	if b.Tools == nil {
		b.Tools = map[string]*ToolEntry{}
	}

	seen := make(map[string]bool, len(observed))
	for _, tool := range observed {
		seen[tool.Name] = true
		if existing, ok := b.Tools[tool.Name]; ok {
			existing.Stale = false
			existing.Description = tool.Description
			continue
		}
		b.Tools[tool.Name] = &ToolEntry{
			Enabled:     true,
			Stale:       false,
			Description: tool.Description,
		}
	}

	for name, entry := range b.Tools {
		if !seen[name] {
			entry.Stale = true
		}
	}

	return doc
}
