// Package admin implements the administrative HTTP surface (spec
// section 6): the bearer-token-guarded control plane a human or a
// deployment tool uses to inspect and mutate the running proxy's
// backend set, alongside the health and metrics endpoints operators
// poll.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/telemetry"
	"github.com/open-mcp/vmcp/pkg/vmcp/backend"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
	"github.com/open-mcp/vmcp/pkg/vmcp/proxy"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Deps is everything the admin surface needs to answer requests. It
// never owns these collaborators; the caller (cmd/vmcp) constructs
// them once at boot and shares them with the downstream MCP server.
type Deps struct {
	Core    *proxy.Core
	Manager *backend.Manager
	Store   *config.Store
	Metrics *telemetry.Metrics
	Reg     *prometheus.Registry

	// Token guards every route when non-empty (section 6: "all guarded
	// by a bearer token when one is configured").
	Token string

	// Audit wraps the router when non-nil, emitting one audit event per
	// admin request (section 1: audit sink, SUPPLEMENTAL FEATURES).
	Audit func(http.Handler) http.Handler
}

type routes struct {
	deps Deps
}

// Router builds the chi router serving every route in section 6's
// administrative HTTP surface table, plus the metrics endpoint the
// DOMAIN STACK commits pkg/telemetry to.
func Router(deps Deps) http.Handler {
	rt := &routes{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Timeout(middlewareTimeout))
	if deps.Audit != nil {
		r.Use(deps.Audit)
	}
	r.Use(rt.bearerAuth)

	r.Get("/health", rt.getHealth)
	r.Get("/mcp_servers", rt.listServers)
	r.Post("/mcp_servers", rt.addServer)
	r.Delete("/mcp_servers/{name}", rt.removeServer)
	r.Get("/mcp_tools", rt.listTools)
	if deps.Reg != nil {
		r.Get("/metrics", telemetry.Handler(deps.Reg).ServeHTTP)
	}
	return r
}

// Serve runs the admin surface on address until ctx is canceled,
// mirroring the teacher's http.Server/graceful-shutdown shape.
func Serve(ctx context.Context, address string, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infow("starting admin http server", "address", address)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("admin server shutdown: %w", err)
		}
		return nil
	}
}
