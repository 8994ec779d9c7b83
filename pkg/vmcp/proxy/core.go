// Package proxy implements the Proxy Core (C5): the single aggregated
// MCP surface the downstream client sees. It resolves qualified names
// to backends, enforces the document's enable/disable policy at call
// time, and emits change notifications as backend membership changes.
package proxy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/telemetry"
	"github.com/open-mcp/vmcp/pkg/vmcp"
	"github.com/open-mcp/vmcp/pkg/vmcp/backend"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
	"github.com/open-mcp/vmcp/pkg/vmcp/retrieval"
)

// ServerName and ServerVersion identify this proxy to downstream
// clients at MCP initialize time.
const (
	ServerName    = "vmcp"
	ServerVersion = "0.1.0"
)

// backendCaps is what Core remembers about a backend's advertised
// capability set, used to gate list_changed notifications (section
// 4.5, section 8 property 8).
type backendCaps struct {
	caps      vmcp.Capabilities
	prompts   []string // qualified names currently registered
	resources []string // raw URIs currently registered
}

// Core owns the aggregated MCP surface. Exactly one Core exists per
// running proxy process.
type Core struct {
	manager *backend.Manager
	store   *config.Store
	ranker  retrieval.Ranker

	mcpServer *mcpserver.MCPServer

	mu            sync.RWMutex
	doc           *config.Document
	backends      map[string]*backendCaps
	resourceIndex map[string]string // uri -> backend

	// downstream is a write-once, clear-on-exit handle to the current
	// downstream session reference (section 5: "Downstream session
	// reference for notifications: written once at run-start, cleared
	// at run-end"). Notification emitters read it non-blockingly and
	// drop emissions when empty.
	downstream atomic.Pointer[string]
}

// NewCore constructs a Core over an already-loaded document. Call
// Build to obtain the *mcpserver.MCPServer to run, then RegisterBackend
// for every backend the document declares (the serve command does this
// from the discovery results).
func NewCore(manager *backend.Manager, store *config.Store, ranker retrieval.Ranker, doc *config.Document) *Core {
	if ranker == nil {
		ranker = retrieval.NewPassthroughRanker()
	}
	return &Core{
		manager:       manager,
		store:         store,
		ranker:        ranker,
		doc:           doc,
		backends:      map[string]*backendCaps{},
		resourceIndex: map[string]string{},
	}
}

// Build constructs the underlying MCP server. Tool visibility is
// filtered dynamically by toolFilter rather than by withholding
// registration, so that a tool hidden after being listed still
// resolves to a ToolHidden error-result instead of an unknown-tool
// protocol error (section 4.5).
func (c *Core) Build() *mcpserver.MCPServer {
	c.mcpServer = mcpserver.NewMCPServer(
		ServerName, ServerVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolFilter(c.toolFilter),
	)
	return c.mcpServer
}

// SetDownstreamSession installs the active downstream session marker.
// Called once at run-start.
func (c *Core) SetDownstreamSession(id string) {
	c.downstream.Store(&id)
}

// ClearDownstreamSession clears the active downstream session marker.
// Called at run-end.
func (c *Core) ClearDownstreamSession() {
	c.downstream.Store(nil)
}

func (c *Core) hasDownstreamSession() bool {
	return c.downstream.Load() != nil
}

// toolFilter implements mcpserver.WithToolFilter: it narrows the full
// registered tool set down to backend::tool pairs the document marks
// enabled and not stale, then applies the retrieval ranker (section
// 4.5: "iterate the document's enabled-and-not-stale tools").
func (c *Core) toolFilter(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	backendIndex := make(map[string]int, len(c.doc.Servers))
	for i, name := range c.doc.ServerOrder() {
		backendIndex[name] = i
	}

	entries := make([]retrieval.Entry, 0, len(tools))
	byQualified := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		backendName, local, ok := vmcp.SplitQualifiedName(t.Name)
		if !ok {
			continue
		}
		b, ok := c.doc.Servers[backendName]
		if !ok {
			continue
		}
		entry, ok := b.Tools[local]
		if !ok || !entry.Enabled || entry.Stale {
			continue
		}
		byQualified[t.Name] = t
		entries = append(entries, retrieval.Entry{
			Backend:      backendName,
			BackendIndex: backendIndex[backendName],
			Tool:         vmcp.ToolRef{Name: t.Name, Description: entry.Description},
		})
	}

	ranked := c.ranker.Rank(ctx, entries)
	out := make([]mcp.Tool, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, byQualified[e.Tool.Name])
	}
	return out
}

// RegisterBackend (re)installs every known tool/prompt/resource of
// name into the MCP server. Tools are registered regardless of their
// current enabled/stale policy so that call_tool can still resolve
// them to a ToolHidden error-result (toolFilter is what hides them
// from tools/list); prompts and resources are registered unconditionally,
// since only tools participate in the enable/disable policy (section
// 4.4 step 5).
func (c *Core) RegisterBackend(name string, tools []vmcp.ToolRef, prompts []vmcp.PromptRef, resources []vmcp.ResourceRef, caps vmcp.Capabilities) {
	c.mu.Lock()

	var toolsToAdd []mcpserver.ServerTool
	for _, t := range tools {
		qualified := vmcp.QualifiedName(name, t.Name)
		toolsToAdd = append(toolsToAdd, mcpserver.ServerTool{
			Tool:    mcp.NewTool(qualified, mcp.WithDescription(t.Description)),
			Handler: c.createToolHandler(name, t.Name),
		})
	}

	var promptsToAdd []mcpserver.ServerPrompt
	promptNames := make([]string, 0, len(prompts))
	for _, p := range prompts {
		qualified := vmcp.QualifiedName(name, p.Name)
		promptNames = append(promptNames, qualified)
		promptsToAdd = append(promptsToAdd, mcpserver.ServerPrompt{
			Prompt:  mcp.Prompt{Name: qualified, Description: p.Description},
			Handler: c.createPromptHandler(name, p.Name),
		})
	}

	var resourcesToAdd []mcpserver.ServerResource
	resourceURIs := make([]string, 0, len(resources))
	for _, r := range resources {
		resourceURIs = append(resourceURIs, r.URI)
		c.resourceIndex[r.URI] = name
		resourcesToAdd = append(resourcesToAdd, mcpserver.ServerResource{
			Resource: mcp.Resource{URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MIMEType},
			Handler:  c.createResourceHandler(name, r.URI),
		})
	}

	c.backends[name] = &backendCaps{caps: caps, prompts: promptNames, resources: resourceURIs}
	mcpServer := c.mcpServer
	c.mu.Unlock()

	if mcpServer == nil {
		return
	}
	if len(toolsToAdd) > 0 {
		mcpServer.AddTools(toolsToAdd...)
	}
	if len(promptsToAdd) > 0 {
		mcpServer.AddPrompts(promptsToAdd...)
	}
	if len(resourcesToAdd) > 0 {
		mcpServer.AddResources(resourcesToAdd...)
	}

	c.notifyListChanged(caps)
}

// UnregisterBackend closes name's backend session, removes every tool,
// prompt, and resource it contributed, and emits list_changed for
// whichever capability classes it had advertised. If removeFromDocument
// is true the backend is also deleted from the document and the
// change is persisted; otherwise the entry is merely marked absent
// from the live surface, matching the opt-in/opt-out flag described in
// section 4.5.
func (c *Core) UnregisterBackend(name string, removeFromDocument bool) error {
	closeErr := c.manager.Close(name, "unregister")
	if err := c.manager.Unregister(name); err != nil && closeErr == nil {
		closeErr = err
	}

	c.mu.Lock()
	info, ok := c.backends[name]
	delete(c.backends, name)
	var toolNames []string
	if ok && c.doc.Servers[name] != nil {
		for _, t := range c.doc.Servers[name].SortedToolNames() {
			toolNames = append(toolNames, vmcp.QualifiedName(name, t))
		}
	}
	for _, uri := range info.resourceURIsLocked() {
		delete(c.resourceIndex, uri)
	}
	if removeFromDocument {
		delete(c.doc.Servers, name)
		c.doc.RemoveOrder(name)
	}
	doc := c.doc
	mcpServer := c.mcpServer
	c.mu.Unlock()

	if mcpServer != nil {
		if len(toolNames) > 0 {
			mcpServer.DeleteTools(toolNames...)
		}
		if ok && len(info.prompts) > 0 {
			mcpServer.DeletePrompts(info.prompts...)
		}
		if ok {
			for _, uri := range info.resources {
				mcpServer.RemoveResource(uri)
			}
		}
	}

	if removeFromDocument {
		if err := c.store.Save(doc); err != nil {
			logger.Warnw("proxy: failed to persist backend removal", "backend", name, "error", err)
		}
	}

	if ok {
		c.notifyListChanged(info.caps)
	}
	return closeErr
}

func (bc *backendCaps) resourceURIsLocked() []string {
	if bc == nil {
		return nil
	}
	return bc.resources
}

// notifyListChanged emits notifications/{tools,prompts,resources}/list_changed
// for every capability class caps advertises, but only when a
// downstream session is currently active (section 8 property 8).
func (c *Core) notifyListChanged(caps vmcp.Capabilities) {
	if c.mcpServer == nil || !c.hasDownstreamSession() {
		return
	}
	if caps.Tools {
		c.mcpServer.SendNotificationToAllClients("notifications/tools/list_changed", nil)
	}
	if caps.Prompts {
		c.mcpServer.SendNotificationToAllClients("notifications/prompts/list_changed", nil)
	}
	if caps.Resources {
		c.mcpServer.SendNotificationToAllClients("notifications/resources/list_changed", nil)
	}
}

// createToolHandler returns the forwarding handler for backend::local.
// It re-checks UnknownBackend/ToolHidden at call time rather than
// relying on registration state, because a tool may have been
// registered before it was disabled (section 4.5: "call_tool").
func (c *Core) createToolHandler(backendName, local string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := c.checkToolVisible(backendName, local); err != nil {
			return errorResult(err), nil
		}

		sess, err := c.manager.GetOrOpen(ctx, backendName)
		if err != nil {
			return errorResult(err), nil
		}
		c.manager.RecordUse(backendName)

		spanCtx, span := telemetry.StartSpan(ctx, telemetry.SpanToolCall, backendName, telemetry.ToolAttr(local))
		args, _ := req.Params.Arguments.(map[string]any)
		result, err := sess.CallTool(spanCtx, local, args)
		telemetry.EndSpan(span, err)
		if err != nil {
			// Transport failure: surface as an MCP error-result, and
			// mark the session for close so the next request reopens
			// (section 7: TransportFailed policy).
			if closeErr := c.manager.Close(backendName, "transport_failed"); closeErr != nil {
				logger.Warnw("proxy: failed to close backend after transport failure", "backend", backendName, "error", closeErr)
			}
			return errorResult(vmcp.New(vmcp.KindTransportFailed, backendName, err)), nil
		}
		return result, nil
	}
}

func (c *Core) checkToolVisible(backendName, local string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.doc.Servers[backendName]
	if !ok {
		return vmcp.New(vmcp.KindUnknownBackend, backendName, fmt.Errorf("backend %q is not declared", backendName))
	}
	entry, ok := b.Tools[local]
	if !ok || !entry.Enabled || entry.Stale {
		return vmcp.New(vmcp.KindToolHidden, backendName, fmt.Errorf("tool %q is hidden", local))
	}
	return nil
}

func (c *Core) createPromptHandler(backendName, local string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		sess, err := c.manager.GetOrOpen(ctx, backendName)
		if err != nil {
			return nil, err
		}
		c.manager.RecordUse(backendName)
		args := make(map[string]any, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		result, err := sess.GetPrompt(ctx, local, args)
		if err != nil {
			// Transport failure: mark the session for close so the next
			// request reopens, matching createToolHandler's policy
			// (section 4.5: get_prompt is analogous to call_tool).
			if closeErr := c.manager.Close(backendName, "transport_failed"); closeErr != nil {
				logger.Warnw("proxy: failed to close backend after transport failure", "backend", backendName, "error", closeErr)
			}
			return nil, err
		}
		return result, nil
	}
}

func (c *Core) createResourceHandler(backendName, uri string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sess, err := c.manager.GetOrOpen(ctx, backendName)
		if err != nil {
			return nil, err
		}
		c.manager.RecordUse(backendName)
		result, err := sess.ReadResource(ctx, uri)
		if err != nil {
			// Transport failure: mark the session for close so the next
			// request reopens, matching createToolHandler's policy
			// (section 4.5: read_resource is analogous to call_tool).
			if closeErr := c.manager.Close(backendName, "transport_failed"); closeErr != nil {
				logger.Warnw("proxy: failed to close backend after transport failure", "backend", backendName, "error", closeErr)
			}
			return nil, err
		}
		return result.Contents, nil
	}
}

// errorResult renders err as an MCP tool error-result rather than a
// protocol-level error, per section 7's propagation rule.
func errorResult(err error) *mcp.CallToolResult {
	if kind, ok := vmcp.KindOf(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
	}
	return mcp.NewToolResultError(err.Error())
}

// ResolveResourceURI looks up which backend owns uri, using the
// reverse index built at discovery time (section 4.5).
func (c *Core) ResolveResourceURI(uri string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.resourceIndex[uri]
	return name, ok
}

// Document returns the current in-memory document. Callers must not
// mutate the result outside of c.mu; use InstallDocument to replace it.
func (c *Core) Document() *config.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc
}

// InstallDocument swaps in a freshly merged document, e.g. after a
// discovery sweep.
func (c *Core) InstallDocument(doc *config.Document) {
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
}

// AddDeclaredBackend inserts name into the document with cfg, in
// insertion order, and persists it (section 6: "POST /mcp_servers |
// add backend (lazy)"). It does not open the backend or register any
// tools; the caller (the admin surface) is expected to follow this
// with a discovery pass and RegisterBackend once it has observed what
// the new backend actually advertises.
func (c *Core) AddDeclaredBackend(name string, cfg *config.BackendConfig) error {
	c.mu.Lock()
	c.doc.Servers[name] = cfg
	c.doc.RegisterOrder(name)
	doc := c.doc
	c.mu.Unlock()

	return c.store.Save(doc)
}

// ListToolNames returns, per backend, the local (unqualified) names of
// the tools currently visible under the enable/disable policy, sorted
// by name, for diagnostics and the admin
// surface (section 6: "GET /mcp_tools").
func (c *Core) ListToolNames() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := map[string][]string{}
	for _, name := range c.doc.ServerOrder() {
		b := c.doc.Servers[name]
		var tools []string
		for _, t := range b.SortedToolNames() {
			if entry := b.Tools[t]; entry.Enabled && !entry.Stale {
				tools = append(tools, t)
			}
		}
		sort.Strings(tools)
		out[name] = tools
	}
	return out
}
