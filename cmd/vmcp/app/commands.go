// Package app provides the entry point for the vmcp command-line application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open-mcp/vmcp/pkg/api/admin"
	"github.com/open-mcp/vmcp/pkg/audit"
	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/telemetry"
	"github.com/open-mcp/vmcp/pkg/vmcp/backend"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
	"github.com/open-mcp/vmcp/pkg/vmcp/discovery"
	"github.com/open-mcp/vmcp/pkg/vmcp/proxy"
	"github.com/open-mcp/vmcp/pkg/vmcp/retrieval"
	"github.com/open-mcp/vmcp/pkg/vmcp/transport"
)

// transportStdio and transportHTTP are the two downstream surfaces
// the serve command can expose, mirroring the pack's stdio/streamable-
// http split (section 1: "the downstream transport a client actually
// dials is out of scope for this document's invariants").
const (
	transportStdio = "stdio"
	transportHTTP  = "streamable-http"
)

var rootCmd = &cobra.Command{
	Use:               "vmcp",
	DisableAutoGenTag: true,
	Short:             "Virtual MCP Server - Aggregate and proxy multiple MCP servers",
	Long: `Virtual MCP Server (vmcp) is a proxy that aggregates multiple MCP (Model Context Protocol) servers
into a single unified interface. It provides:

- Tool, prompt, and resource aggregation from multiple declared backends
- A declarative, human-editable document as the single source of truth
- Dynamic backend membership via an administrative HTTP surface
- Idle reaping and automatic reconnection with backoff for flaky backends

Backends are declared once in the document (servers.yaml by default) and vmcp
discovers what each one actually advertises, merging the result back into the
document so hand edits (enable/disable a tool) survive repeated discovery.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Init(viper.GetBool("debug"))
	},
}

// NewRootCmd creates a new root command for the vmcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the vmcp document (default: <user config dir>/vmcp/servers.yaml)")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

// newServeCmd creates the serve command for starting the Virtual MCP Server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Virtual MCP Server",
		Long: `Start the Virtual MCP Server to aggregate and proxy every backend declared
in the document. An initial discovery sweep runs at startup; the admin HTTP
surface lets backends be added or removed afterward without a restart.`,
		RunE: runServe,
	}

	cmd.Flags().String("transport", transportHTTP, "Downstream transport: stdio or streamable-http")
	cmd.Flags().String("host", "127.0.0.1", "Host address to bind to for streamable-http")
	cmd.Flags().Int("port", 4483, "Port to listen on for streamable-http")
	cmd.Flags().String("admin-addr", "127.0.0.1:4484", "Address for the administrative HTTP surface")
	cmd.Flags().String("admin-token", "", "Bearer token guarding the administrative HTTP surface (empty disables the guard)")
	cmd.Flags().Bool("enable-audit", false, "Enable audit logging of admin requests with default configuration")

	return cmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("vmcp version: %s", getVersion())
		},
	}
}

// newValidateCmd creates the validate command for checking the document.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the vmcp document",
		Long:  "Load the vmcp document, reporting YAML syntax errors and a summary of declared backends.",
		RunE: func(_ *cobra.Command, _ []string) error {
			store := config.NewStore(viper.GetString("config"))
			logger.Infof("Validating document: %s", store.Path())

			doc, err := store.Load()
			if err != nil {
				return fmt.Errorf("document is invalid: %w", err)
			}

			names := doc.ServerOrder()
			logger.Infof("✓ Document is valid (%d backend(s) declared)", len(names))
			for _, name := range names {
				b := doc.Servers[name]
				logger.Infof("  %s: %d tool(s), always_on=%v", name, len(b.Tools), b.AlwaysOn)
			}
			return nil
		},
	}
}

// getVersion returns the version string, replaced with a real value at
// build time via ldflags.
func getVersion() string {
	return "dev"
}

// retrievalConfigFromDoc decodes the document's optional "retrieval:"
// section into a retrieval.Config, tolerating its absence.
func retrievalConfigFromDoc(doc *config.Document) *retrieval.Config {
	if doc.Retrieval == nil {
		return nil
	}
	enabled, _ := doc.Retrieval["enabled"].(bool)
	return &retrieval.Config{Enabled: enabled}
}

// runServe implements the serve command logic: load the document,
// build the Backend Manager, Discovery Orchestrator, and Proxy Core,
// run an initial sweep, then serve the aggregated MCP surface and the
// administrative HTTP surface side by side until ctx is canceled.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store := config.NewStore(viper.GetString("config"))
	logger.Infof("Loading document: %s", store.Path())
	doc, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	manager := backend.NewManager(transport.NewFactory(), backend.WithMetrics(metrics))
	for _, name := range doc.ServerOrder() {
		manager.Register(backend.FromBackendConfig(name, doc.Servers[name]))
	}

	core := proxy.NewCore(manager, store, retrieval.New(retrievalConfigFromDoc(doc)), doc)
	orchestrator := discovery.NewOrchestrator(manager, store, discovery.WithMetrics(metrics))

	logger.Info("Running initial discovery sweep")
	results, err := orchestrator.Sweep(ctx, doc)
	if err != nil {
		logger.Errorf("failed to persist document after initial sweep: %v", err)
	}
	for _, result := range results {
		if result.Err != nil {
			logger.Warnw("backend failed initial discovery, remains pending", "backend", result.Backend, "error", result.Err)
			continue
		}
		core.RegisterBackend(result.Backend, result.Tools, result.Prompts, result.Resources, result.Caps)
	}

	mcpServer := core.Build()

	manager.StartIdleReaper(ctx)
	defer manager.StopIdleReaper()

	enableAudit, _ := cmd.Flags().GetBool("enable-audit")
	var auditMiddleware func(http.Handler) http.Handler
	if enableAudit {
		auditor, err := audit.NewAuditor(audit.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to create auditor: %w", err)
		}
		defer func() {
			if err := auditor.Close(); err != nil {
				logger.Errorf("failed to close auditor: %v", err)
			}
		}()
		auditMiddleware = auditor.Middleware
		logger.Info("Audit logging enabled for the administrative HTTP surface")
	}

	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	adminToken, _ := cmd.Flags().GetString("admin-token")
	adminErrCh := make(chan error, 1)
	go func() {
		adminErrCh <- admin.Serve(ctx, adminAddr, admin.Deps{
			Core:    core,
			Manager: manager,
			Store:   store,
			Metrics: metrics,
			Reg:     reg,
			Token:   adminToken,
			Audit:   auditMiddleware,
		})
	}()

	downstreamTransport, _ := cmd.Flags().GetString("transport")
	downstreamErrCh := make(chan error, 1)
	switch downstreamTransport {
	case transportStdio:
		logger.Info("Starting Virtual MCP Server on stdio")
		core.SetDownstreamSession(uuid.NewString())
		defer core.ClearDownstreamSession()
		go func() {
			downstreamErrCh <- serveStdio(ctx, mcpServer)
		}()
	default:
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		addr := fmt.Sprintf("%s:%d", host, port)
		logger.Infof("Starting Virtual MCP Server at %s", addr)
		core.SetDownstreamSession(uuid.NewString())
		defer core.ClearDownstreamSession()
		go func() {
			downstreamErrCh <- serveStreamableHTTP(ctx, addr, mcpServer)
		}()
	}

	select {
	case err := <-downstreamErrCh:
		return err
	case err := <-adminErrCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// serveStdio runs the downstream MCP server over stdio until ctx is
// canceled. The caller (runServe) sets and clears the downstream-session
// marker Core uses to gate notification emission (section 5).
func serveStdio(ctx context.Context, mcpServer *mcpserver.MCPServer) error {
	stdio := mcpserver.NewStdioServer(mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// serveStreamableHTTP runs the downstream MCP server over streamable
// HTTP on addr until ctx is canceled.
func serveStreamableHTTP(ctx context.Context, addr string, mcpServer *mcpserver.MCPServer) error {
	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer)
	srv := &http.Server{Addr: addr, Handler: httpServer}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
