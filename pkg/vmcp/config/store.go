package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/vmcp"
)

// DefaultFileName is the document's default file name within the
// user config directory (section 4.1: "<user-config-dir>/servers.yaml").
const DefaultFileName = "servers.yaml"

// Store loads and saves the unified document from a single path,
// implementing the Declarative Document Store (C1). It owns the
// on-disk file exclusively; no other component reads or writes it
// directly.
type Store struct {
	path string
}

// NewStore returns a Store rooted at path. If path is empty,
// DefaultPath is used.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// DefaultPath returns "<user-config-dir>/vmcp/servers.yaml", falling
// back to "./servers.yaml" if the user config directory cannot be
// determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(dir, "vmcp", DefaultFileName)
}

// Path returns the path this store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the document. A missing file yields an empty
// document, not an error (section 4.1: "Missing file yields an empty
// document"). A parse error is returned tagged KindConfigCorrupt.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("read document %q: %w", s.path, err))
	}

	var raw struct {
		Servers   map[string]*BackendConfig `yaml:"servers"`
		Retrieval map[string]any            `yaml:"retrieval"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, vmcp.New(vmcp.KindConfigCorrupt, "", fmt.Errorf("parse document %q: %w", s.path, err))
	}

	doc := NewDocument()
	doc.Retrieval = raw.Retrieval
	if raw.Servers != nil {
		doc.Servers = raw.Servers
	}

	// Recover insertion order from the raw YAML mapping node, since
	// the typed unmarshal above loses key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err == nil {
		doc.order = serverKeyOrder(&node)
	}

	return doc, nil
}

// serverKeyOrder walks a parsed YAML document node to recover the
// order in which backend keys appear under "servers:".
func serverKeyOrder(root *yaml.Node) []string {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		if key.Value != "servers" {
			continue
		}
		servers := mapping.Content[i+1]
		if servers.Kind != yaml.MappingNode {
			return nil
		}
		names := make([]string, 0, len(servers.Content)/2)
		for j := 0; j+1 < len(servers.Content); j += 2 {
			names = append(names, servers.Content[j].Value)
		}
		return names
	}
	return nil
}

// Save serializes the document and writes it atomically: a temporary
// sibling file is written and fsynced, then renamed into place, so a
// crash mid-write never leaves a partially serialized file on disk
// (section 4.1, section 8 property 7). A gofrs/flock advisory lock
// guards against concurrent writers (the discovery sweep and the
// admin API both call Save).
func (s *Store) Save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("create document dir: %w", err))
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("lock document: %w", err))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Get().Warnw("failed to release document lock", "error", err)
		}
	}()

	out := marshalDoc(doc)
	data, err := yaml.Marshal(out)
	if err != nil {
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("marshal document: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".servers-*.yaml.tmp")
	if err != nil {
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("create temp document: %w", err))
	}
	tmpPath := tmp.Name()
	removeTmp := true
	defer func() {
		if removeTmp {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("write temp document: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("sync temp document: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("close temp document: %w", err))
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return vmcp.New(vmcp.KindConfigUnwritable, "", fmt.Errorf("rename document into place: %w", err))
	}
	removeTmp = false
	return nil
}

// orderedDoc is the on-disk shape: a plain map, but with backend keys
// emitted via an explicit yaml.Node so insertion order and per-backend
// sorted tool-name order are both stable across saves.
type orderedDoc struct {
	Servers   *yaml.Node      `yaml:"servers"`
	Retrieval map[string]any `yaml:"retrieval,omitempty"`
}

func marshalDoc(doc *Document) *orderedDoc {
	serversNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range doc.ServerOrder() {
		b := doc.Servers[name]
		serversNode.Content = append(serversNode.Content,
			scalarNode(name), backendNode(b))
	}
	return &orderedDoc{Servers: serversNode, Retrieval: doc.Retrieval}
}

func backendNode(b *BackendConfig) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		node.Content = append(node.Content, scalarNode(key), value)
	}
	if b.Command != "" {
		add("command", scalarNode(b.Command))
		if len(b.Args) > 0 {
			add("args", stringsNode(b.Args))
		}
		if len(b.Env) > 0 {
			add("env", stringMapNode(b.Env))
		}
	}
	if b.URL != "" {
		add("url", scalarNode(b.URL))
	}
	if b.Type != "" {
		add("type", scalarNode(b.Type))
	}
	add("always_on", boolNode(b.AlwaysOn))
	add("idle_timeout_minutes", intNode(b.IdleTimeout()))

	toolsNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range b.SortedToolNames() {
		t := b.Tools[name]
		toolsNode.Content = append(toolsNode.Content, scalarNode(name), toolEntryNode(t))
	}
	add("tools", toolsNode)
	return node
}

func toolEntryNode(t *ToolEntry) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content,
		scalarNode("enabled"), boolNode(t.Enabled),
		scalarNode("stale"), boolNode(t.Stale),
		scalarNode("description"), scalarNode(t.Description),
	)
	return node
}

func scalarNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func boolNode(b bool) *yaml.Node {
	v := "false"
	if b {
		v = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: v}
}

func intNode(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%d", i)}
}

func stringsNode(values []string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode}
	for _, v := range values {
		node.Content = append(node.Content, scalarNode(v))
	}
	return node
}

func stringMapNode(m map[string]string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node.Content = append(node.Content, scalarNode(k), scalarNode(m[k]))
	}
	return node
}
