package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// MiddlewareType names this middleware for configuration purposes.
const MiddlewareType = "audit"

// MiddlewareParams are the JSON-configurable parameters for building
// audit middleware: either an inline Config (preferred) or a path to
// one on disk, plus overrides applied on top of it.
type MiddlewareParams struct {
	ConfigPath    string  `json:"config_path,omitempty"`
	ConfigData    *Config `json:"config_data,omitempty"`
	Component     string  `json:"component,omitempty"`
	TransportType string  `json:"transport_type,omitempty"`
}

// Middleware bundles the constructed HTTP middleware function with the
// Auditor backing it, so the server that installs it can close the
// Auditor's log file on shutdown.
type Middleware struct {
	middleware func(http.Handler) http.Handler
	auditor    *Auditor
}

// Handler returns the middleware function ready to wrap a handler.
func (m *Middleware) Handler() func(http.Handler) http.Handler {
	return m.middleware
}

// Close releases the underlying Auditor's resources.
func (m *Middleware) Close() error {
	if m.auditor != nil {
		return m.auditor.Close()
	}
	return nil
}

// NewMiddleware builds audit middleware from params: ConfigData takes
// precedence over ConfigPath, and Component fills in an empty
// Config.Component from either source.
func NewMiddleware(params MiddlewareParams) (*Middleware, error) {
	var auditConfig *Config
	var err error

	switch {
	case params.ConfigData != nil:
		auditConfig = params.ConfigData
	case params.ConfigPath != "":
		auditConfig, err = LoadFromFile(params.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load audit configuration: %w", err)
		}
	default:
		auditConfig = DefaultConfig()
	}

	if params.Component != "" && auditConfig.Component == "" {
		auditConfig.Component = params.Component
	}

	if err := auditConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audit configuration: %w", err)
	}

	auditor, err := NewAuditorWithTransport(auditConfig, params.TransportType)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit middleware: %w", err)
	}

	return &Middleware{middleware: auditor.Middleware, auditor: auditor}, nil
}

// NewMiddlewareFromJSON decodes MiddlewareParams from raw JSON
// parameters and builds the middleware, for callers that carry
// middleware configuration as opaque JSON (e.g. a document's
// "middleware:" section).
func NewMiddlewareFromJSON(parameters json.RawMessage) (*Middleware, error) {
	var params MiddlewareParams
	if err := json.Unmarshal(parameters, &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit middleware parameters: %w", err)
	}
	return NewMiddleware(params)
}
