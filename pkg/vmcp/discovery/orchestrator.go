// Package discovery implements the Discovery Orchestrator (C4): it
// sweeps every declared backend, opens it through the Backend Manager,
// enumerates its tools/prompts/resources, and feeds observed tools
// through the Merge Engine so the document stays in sync with what
// backends actually advertise.
package discovery

import (
	"context"

	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/telemetry"
	"github.com/open-mcp/vmcp/pkg/vmcp"
	"github.com/open-mcp/vmcp/pkg/vmcp/backend"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
)

// BackendResult is one backend's outcome from a Sweep, including
// anything observed even if the backend ultimately failed to respond
// on some capability.
type BackendResult struct {
	Backend   string
	Err       error
	Caps      vmcp.Capabilities
	Tools     []vmcp.ToolRef
	Prompts   []vmcp.PromptRef
	Resources []vmcp.ResourceRef
}

// Orchestrator drives discovery sweeps against a Backend Manager and
// writes observed tools back into a Document via the Merge Engine.
type Orchestrator struct {
	manager *backend.Manager
	store   *config.Store
	metrics *telemetry.Metrics
}

// OrchestratorOption configures an Orchestrator at construction time.
type OrchestratorOption func(*Orchestrator)

// WithMetrics attaches the process-wide telemetry handles so sweeps
// are recorded (section 8 DOMAIN STACK: "spans around ... discovery
// sweep").
func WithMetrics(m *telemetry.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator constructs an Orchestrator over the given Backend
// Manager and document Store.
func NewOrchestrator(manager *backend.Manager, store *config.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{manager: manager, store: store}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sweep performs one full discovery pass (section 4.4: "sweep all
// backends"): for every backend declared in doc, in the document's
// insertion order, it opens the backend, enumerates its
// capabilities, merges observed tools into doc, and closes the backend
// again unless it is pinned (always_on). A single backend's failure is
// recorded in its BackendResult and does not abort the sweep.
//
// The document is saved atomically once the sweep completes, whether
// or not every backend succeeded, so that successfully discovered
// backends are not lost to a later failure.
func (o *Orchestrator) Sweep(ctx context.Context, doc *config.Document) ([]BackendResult, error) {
	if o.metrics != nil {
		o.metrics.DiscoverySweeps.Inc()
	}
	spanCtx, span := telemetry.StartSpan(ctx, telemetry.SpanDiscoverySweep, "")

	names := doc.ServerOrder()
	results := make([]BackendResult, len(names))

	for i, name := range names {
		results[i] = DiscoverOne(spanCtx, o.manager, doc, name)
	}

	err := o.store.Save(doc)
	telemetry.EndSpan(span, err)
	if err != nil {
		return results, err
	}
	return results, nil
}

// DiscoverOne performs section 4.4 steps 2-6 against a single declared
// backend: open it, run the MCP initialize exchange, enumerate whatever
// capabilities it advertises, merge observed tools into doc, and close
// it again unless it is pinned. It does not save doc; callers that
// invoke it outside of a full Sweep (the admin surface's dynamic
// register_backend, section 4.5) are responsible for persisting doc
// themselves once they are done with it.
//
// A single backend's failure is recorded on the result rather than
// returned as an error, matching Sweep's per-backend fault isolation.
func DiscoverOne(ctx context.Context, manager *backend.Manager, doc *config.Document, name string) BackendResult {
	result := BackendResult{Backend: name}

	sess, err := manager.GetOrOpen(ctx, name)
	if err != nil {
		logger.Warnw("discovery: backend open failed", "backend", name, "error", err)
		result.Err = err
		return result
	}

	caps := sess.Capabilities()
	result.Caps = caps

	if caps.Tools || caps.Empty() {
		tools, err := sess.ListTools(ctx)
		if err != nil {
			logger.Warnw("discovery: list_tools failed", "backend", name, "error", err)
			result.Err = err
		} else {
			for _, t := range tools {
				result.Tools = append(result.Tools, vmcp.ToolRef{Name: t.Name, Description: t.Description})
			}
			config.Merge(doc, name, result.Tools)
		}
	}

	if caps.Prompts {
		prompts, err := sess.ListPrompts(ctx)
		if err != nil {
			logger.Warnw("discovery: list_prompts failed", "backend", name, "error", err)
		} else {
			for _, p := range prompts {
				result.Prompts = append(result.Prompts, vmcp.PromptRef{Name: p.Name, Description: p.Description})
			}
		}
	}

	if caps.Resources {
		resources, err := sess.ListResources(ctx)
		if err != nil {
			logger.Warnw("discovery: list_resources failed", "backend", name, "error", err)
		} else {
			for _, r := range resources {
				result.Resources = append(result.Resources, vmcp.ResourceRef{
					URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MIMEType,
				})
			}
		}
	}

	if !manager.Pinned(name) {
		if err := manager.Close(name, "discovery"); err != nil {
			logger.Warnw("discovery: post-sweep close failed", "backend", name, "error", err)
		}
	}

	return result
}

