package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultMaxDataSize is the MaxDataSize applied when a Config leaves
// the field unset (zero).
const DefaultMaxDataSize = 1024

// Config controls which MCP events an Auditor records and how much of
// each request/response it captures.
type Config struct {
	// Component labels every event this config produces. When empty,
	// the component is taken per request from the backend info in the
	// request context, falling back to ComponentToolHive.
	Component string `json:"component,omitempty"`
	// EventTypes restricts auditing to this set. Empty means all types.
	EventTypes []string `json:"event_types,omitempty"`
	// ExcludeEventTypes always wins over EventTypes.
	ExcludeEventTypes   []string `json:"exclude_event_types,omitempty"`
	IncludeRequestData  bool     `json:"include_request_data"`
	IncludeResponseData bool     `json:"include_response_data"`
	// MaxDataSize caps captured request/response bytes; Validate fills
	// in DefaultMaxDataSize when this is left at zero.
	MaxDataSize int `json:"max_data_size"`
	// LogFile is an optional path audit events are appended to as
	// newline-delimited JSON. Empty means write to stdout.
	LogFile string `json:"log_file,omitempty"`
}

// DefaultConfig returns a Config that audits every event type with no
// request/response capture.
func DefaultConfig() *Config {
	return &Config{
		MaxDataSize: DefaultMaxDataSize,
	}
}

// LoadFromReader decodes a JSON-encoded Config from r.
func LoadFromReader(r io.Reader) (*Config, error) {
	var config Config
	if err := json.NewDecoder(r).Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode audit config: %w", err)
	}
	return &config, nil
}

// LoadFromFile reads and decodes a Config from the JSON file at path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit config file: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// validEventTypes enumerates every event type Validate accepts.
var validEventTypes = map[string]bool{
	EventTypeMCPInitialize:       true,
	EventTypeMCPToolCall:         true,
	EventTypeMCPToolsList:        true,
	EventTypeMCPResourceRead:     true,
	EventTypeMCPResourcesList:    true,
	EventTypeMCPPromptGet:        true,
	EventTypeMCPPromptsList:      true,
	EventTypeMCPNotification:     true,
	EventTypeMCPPing:             true,
	EventTypeMCPLogging:          true,
	EventTypeMCPCompletion:       true,
	EventTypeMCPRootsListChanged: true,
	EventTypeMCPRequest:          true,
	EventTypeHTTPRequest:         true,
}

// Validate checks that EventTypes/ExcludeEventTypes only name known
// event types and applies DefaultMaxDataSize when MaxDataSize is 0.
func (c *Config) Validate() error {
	for _, et := range c.EventTypes {
		if !validEventTypes[et] {
			return fmt.Errorf("unknown event type: %s", et)
		}
	}
	for _, et := range c.ExcludeEventTypes {
		if !validEventTypes[et] {
			return fmt.Errorf("unknown exclude event type: %s", et)
		}
	}
	if c.MaxDataSize < 0 {
		return fmt.Errorf("max_data_size cannot be negative")
	}
	if c.MaxDataSize == 0 {
		c.MaxDataSize = DefaultMaxDataSize
	}
	return nil
}

// ShouldAuditEvent reports whether eventType passes this config's
// include/exclude filters. ExcludeEventTypes always takes precedence
// over EventTypes; an empty EventTypes list means "audit everything".
func (c *Config) ShouldAuditEvent(eventType string) bool {
	for _, excluded := range c.ExcludeEventTypes {
		if excluded == eventType {
			return false
		}
	}
	if len(c.EventTypes) == 0 {
		return true
	}
	for _, included := range c.EventTypes {
		if included == eventType {
			return true
		}
	}
	return false
}

// GetLogWriter opens the configured LogFile for appending, creating
// any missing parent directories, or returns os.Stdout when no LogFile
// is set. A nil receiver also defaults to os.Stdout.
func (c *Config) GetLogWriter() (io.Writer, error) {
	if c == nil || c.LogFile == "" {
		return os.Stdout, nil
	}
	if dir := filepath.Dir(c.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
	}
	f, err := os.OpenFile(filepath.Clean(c.LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return f, nil
}

// CreateMiddlewareWithTransport builds the HTTP middleware this config
// describes, pre-bound to the given MCP transport name (e.g. "sse",
// "streamable-http") for event-type classification.
func (c *Config) CreateMiddlewareWithTransport(transport string) (func(http.Handler) http.Handler, error) {
	auditor, err := NewAuditorWithTransport(c, transport)
	if err != nil {
		return nil, err
	}
	return auditor.Middleware, nil
}

// GetMiddlewareFromFile loads a Config from path and builds its
// middleware for the given transport in one step.
func GetMiddlewareFromFile(path, transport string) (func(http.Handler) http.Handler, error) {
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audit config: %w", err)
	}
	return config.CreateMiddlewareWithTransport(transport)
}
