package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/open-mcp/vmcp/pkg/logger"
)

// Auditor handles audit logging for HTTP requests.
type Auditor struct {
	config    *Config
	transport string

	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// NewAuditor creates a new Auditor with the given configuration,
// writing to the configuration's default transport classification.
func NewAuditor(config *Config) (*Auditor, error) {
	return NewAuditorWithTransport(config, "")
}

// NewAuditorWithTransport creates a new Auditor bound to a specific
// MCP transport name (e.g. "sse", "streamable-http"), used when the
// request path alone cannot disambiguate the transport in use.
func NewAuditorWithTransport(config *Config, transport string) (*Auditor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	w, err := config.GetLogWriter()
	if err != nil {
		return nil, err
	}
	a := &Auditor{config: config, transport: transport, writer: w}
	if w != io.Writer(os.Stdout) {
		if c, ok := w.(io.Closer); ok {
			a.closer = c
		}
	}
	return a, nil
}

// Close releases the underlying log file, if one was opened.
func (a *Auditor) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// responseWriter wraps http.ResponseWriter to capture response data and status.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	auditor    *Auditor
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if rw.auditor.config.IncludeResponseData && rw.body != nil {
		if rw.body.Len()+len(data) <= rw.auditor.config.MaxDataSize {
			rw.body.Write(data)
		}
	}
	return rw.ResponseWriter.Write(data)
}

// Middleware creates an HTTP middleware that logs audit events.
func (a *Auditor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		var requestData []byte
		if a.config.IncludeRequestData && r.Body != nil {
			body, err := io.ReadAll(r.Body)
			if err == nil && len(body) <= a.config.MaxDataSize {
				requestData = body
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			auditor:        a,
		}
		if a.config.IncludeResponseData {
			rw.body = &bytes.Buffer{}
		}

		next.ServeHTTP(rw, r)

		a.logAuditEvent(r, rw, requestData, time.Since(startTime))
	})
}

// logAuditEvent creates and logs an audit event for the HTTP request.
func (a *Auditor) logAuditEvent(r *http.Request, rw *responseWriter, requestData []byte, duration time.Duration) {
	eventType := a.determineEventType(r)
	outcome := a.determineOutcome(rw.statusCode)

	if !a.config.ShouldAuditEvent(eventType) {
		return
	}

	source := a.extractSource(r)
	subjects := a.extractSubjects(r)
	component := a.determineComponent(r)

	event := NewAuditEvent(eventType, source, outcome, subjects, component)

	if target := a.extractTarget(r, eventType); len(target) > 0 {
		event.WithTarget(target)
	}

	a.addMetadata(event, r, duration, rw)
	a.addEventData(event, r, rw, requestData)

	a.logEvent(event)
}

// determineEventType determines the event type based on the HTTP request.
func (a *Auditor) determineEventType(r *http.Request) string {
	path := r.URL.Path
	method := r.Method

	if strings.Contains(path, "/sse") {
		return EventTypeMCPInitialize
	}

	if (strings.Contains(path, "/messages") || strings.Contains(path, "/mcp")) && method == http.MethodPost {
		return a.determineMCPEventType(r)
	}

	return EventTypeHTTPRequest
}

// determineMCPEventType determines the specific MCP event type from the request.
func (a *Auditor) determineMCPEventType(r *http.Request) string {
	if mcpMethod := a.extractMCPMethod(r); mcpMethod != "" {
		return a.mapMCPMethodToEventType(mcpMethod)
	}
	return EventTypeMCPRequest
}

// mapMCPMethodToEventType maps MCP method names to event types.
func (*Auditor) mapMCPMethodToEventType(mcpMethod string) string {
	switch mcpMethod {
	case "initialize":
		return EventTypeMCPInitialize
	case "tools/call":
		return EventTypeMCPToolCall
	case "tools/list":
		return EventTypeMCPToolsList
	case "resources/read":
		return EventTypeMCPResourceRead
	case "resources/list":
		return EventTypeMCPResourcesList
	case "prompts/get":
		return EventTypeMCPPromptGet
	case "prompts/list":
		return EventTypeMCPPromptsList
	case "notifications/message":
		return EventTypeMCPNotification
	case "ping":
		return EventTypeMCPPing
	case "logging/setLevel":
		return EventTypeMCPLogging
	case "completion/complete":
		return EventTypeMCPCompletion
	case "notifications/roots/list_changed":
		return EventTypeMCPRootsListChanged
	default:
		return EventTypeMCPRequest
	}
}

// extractMCPMethod extracts the JSON-RPC "method" field from the
// request body without consuming it for downstream handlers.
func (*Auditor) extractMCPMethod(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Method
}

// determineOutcome determines the outcome based on the HTTP status code.
func (*Auditor) determineOutcome(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return OutcomeDenied
	case statusCode >= 400 && statusCode < 500:
		return OutcomeFailure
	case statusCode >= 500:
		return OutcomeError
	default:
		return OutcomeSuccess
	}
}

// extractSource extracts source information from the HTTP request.
func (a *Auditor) extractSource(r *http.Request) EventSource {
	source := EventSource{
		Type:  SourceTypeNetwork,
		Value: a.getClientIP(r),
		Extra: make(map[string]any),
	}

	if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
		source.Extra[SourceExtraKeyUserAgent] = userAgent
	}
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		source.Extra[SourceExtraKeyRequestID] = requestID
	}

	return source
}

// getClientIP extracts the client IP address from the request.
func (*Auditor) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// extractSubjects extracts subject information from the HTTP request.
// There is no JWT/OIDC claims stack in scope; the only identity
// available at this layer is a raw bearer token, which we record as
// the client name rather than fabricate a user identity for it.
func (*Auditor) extractSubjects(r *http.Request) map[string]string {
	subjects := make(map[string]string)

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		subjects[SubjectKeyClientName] = "bearer-token-client"
	}
	if subjects[SubjectKeyUser] == "" {
		subjects[SubjectKeyUser] = "anonymous"
	}

	return subjects
}

// determineComponent determines the component name based on the request.
func (a *Auditor) determineComponent(r *http.Request) string {
	if a.config.Component != "" {
		return a.config.Component
	}
	if info, ok := BackendInfoFromContext(r.Context()); ok && info.BackendName != "" {
		return info.BackendName
	}
	return ComponentToolHive
}

// extractTarget extracts target information from the HTTP request.
func (*Auditor) extractTarget(r *http.Request, eventType string) map[string]string {
	target := make(map[string]string)

	target[TargetKeyEndpoint] = r.URL.Path
	target[TargetKeyMethod] = r.Method

	switch eventType {
	case EventTypeMCPToolCall:
		target[TargetKeyType] = TargetTypeTool
	case EventTypeMCPResourceRead:
		target[TargetKeyType] = TargetTypeResource
	case EventTypeMCPPromptGet:
		target[TargetKeyType] = TargetTypePrompt
	default:
		target[TargetKeyType] = "endpoint"
	}

	if info, ok := BackendInfoFromContext(r.Context()); ok && info.BackendName != "" {
		target[TargetKeyName] = info.BackendName
	}

	return target
}

// addMetadata adds metadata to the audit event.
func (a *Auditor) addMetadata(event *AuditEvent, r *http.Request, duration time.Duration, rw *responseWriter) {
	if event.Metadata.Extra == nil {
		event.Metadata.Extra = make(map[string]any)
	}

	event.Metadata.Extra[MetadataExtraKeyDuration] = duration.Milliseconds()

	transport := a.transport
	if transport == "" {
		if strings.Contains(r.URL.Path, "/sse") {
			transport = "sse"
		} else {
			transport = "http"
		}
	}
	event.Metadata.Extra[MetadataExtraKeyTransport] = transport

	if rw.body != nil {
		event.Metadata.Extra[MetadataExtraKeyResponseSize] = rw.body.Len()
	}
}

// addEventData adds request/response data to the audit event if configured.
func (a *Auditor) addEventData(event *AuditEvent, _ *http.Request, rw *responseWriter, requestData []byte) {
	if !a.config.IncludeRequestData && !a.config.IncludeResponseData {
		return
	}

	data := make(map[string]any)

	if a.config.IncludeRequestData && len(requestData) > 0 {
		var requestJSON any
		if err := json.Unmarshal(requestData, &requestJSON); err == nil {
			data["request"] = requestJSON
		} else {
			data["request"] = string(requestData)
		}
	}

	if a.config.IncludeResponseData && rw.body != nil && rw.body.Len() > 0 {
		responseData := rw.body.Bytes()
		var responseJSON any
		if err := json.Unmarshal(responseData, &responseJSON); err == nil {
			data["response"] = responseJSON
		} else {
			data["response"] = string(responseData)
		}
	}

	if len(data) > 0 {
		if dataBytes, err := json.Marshal(data); err == nil {
			rawMsg := json.RawMessage(dataBytes)
			event.WithData(&rawMsg)
		}
	}
}

// logEvent writes the audit event as a single newline-delimited JSON
// record, serialized to guard concurrent requests sharing one writer.
func (a *Auditor) logEvent(event *AuditEvent) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("audit: failed to marshal event: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.writer.Write(append(eventJSON, '\n')); err != nil {
		logger.Errorf("audit: failed to write event: %v", err)
	}
}
