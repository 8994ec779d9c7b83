package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventSource describes where an audited request originated.
type EventSource struct {
	Type  string         `json:"type"`
	Value string         `json:"value"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Source type values for EventSource.Type.
const (
	SourceTypeNetwork = "network"
	SourceTypeLocal   = "local"
)

// Outcome values for AuditEvent.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
	OutcomeDenied  = "denied"
)

// ComponentToolHive is the component name used when a caller does not
// set Config.Component explicitly.
const ComponentToolHive = "toolhive-api"

// EventMetadata carries bookkeeping fields that accompany every event:
// an identifier assigned at creation time plus a free-form bag of
// transport/duration/size facts a caller attaches after the fact.
type EventMetadata struct {
	AuditID string         `json:"-"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// AuditEvent is a single audited action: who (Subjects) did what
// (Type) to which target (Target), and how it turned out (Outcome).
type AuditEvent struct {
	Metadata  EventMetadata     `json:"-"`
	Type      string            `json:"type"`
	LoggedAt  time.Time         `json:"logged_at"`
	Outcome   string            `json:"outcome"`
	Source    EventSource       `json:"source"`
	Subjects  map[string]string `json:"subjects"`
	Component string            `json:"component"`
	Target    map[string]string `json:"target,omitempty"`
	Data      *json.RawMessage  `json:"data,omitempty"`
}

// auditEventWire is the JSON shape of AuditEvent: it surfaces
// Metadata.AuditID as a top-level "audit_id" field while keeping the
// rest of EventMetadata (Extra) nested under "metadata".
type auditEventWire struct {
	AuditID   string            `json:"audit_id"`
	Type      string            `json:"type"`
	LoggedAt  time.Time         `json:"logged_at"`
	Outcome   string            `json:"outcome"`
	Source    EventSource       `json:"source"`
	Subjects  map[string]string `json:"subjects"`
	Component string            `json:"component"`
	Target    map[string]string `json:"target,omitempty"`
	Metadata  EventMetadata     `json:"metadata"`
	Data      *json.RawMessage  `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *AuditEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(auditEventWire{
		AuditID:   e.Metadata.AuditID,
		Type:      e.Type,
		LoggedAt:  e.LoggedAt,
		Outcome:   e.Outcome,
		Source:    e.Source,
		Subjects:  e.Subjects,
		Component: e.Component,
		Target:    e.Target,
		Metadata:  e.Metadata,
		Data:      e.Data,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *AuditEvent) UnmarshalJSON(data []byte) error {
	var wire auditEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Metadata = wire.Metadata
	e.Metadata.AuditID = wire.AuditID
	e.Type = wire.Type
	e.LoggedAt = wire.LoggedAt
	e.Outcome = wire.Outcome
	e.Source = wire.Source
	e.Subjects = wire.Subjects
	e.Component = wire.Component
	e.Target = wire.Target
	e.Data = wire.Data
	return nil
}

// NewAuditEvent creates an event with a freshly generated audit ID.
func NewAuditEvent(eventType string, source EventSource, outcome string, subjects map[string]string, component string) *AuditEvent {
	return NewAuditEventWithID(uuid.NewString(), eventType, source, outcome, subjects, component)
}

// NewAuditEventWithID creates an event with a caller-supplied audit ID,
// useful when the ID must be correlated with an upstream request ID.
func NewAuditEventWithID(
	auditID, eventType string, source EventSource, outcome string, subjects map[string]string, component string,
) *AuditEvent {
	return &AuditEvent{
		Metadata:  EventMetadata{AuditID: auditID},
		Type:      eventType,
		LoggedAt:  time.Now().UTC(),
		Outcome:   outcome,
		Source:    source,
		Subjects:  subjects,
		Component: component,
	}
}

// WithTarget attaches target information and returns the event for chaining.
func (e *AuditEvent) WithTarget(target map[string]string) *AuditEvent {
	e.Target = target
	return e
}

// WithData attaches a pre-marshaled JSON payload and returns the event for chaining.
func (e *AuditEvent) WithData(data *json.RawMessage) *AuditEvent {
	e.Data = data
	return e
}

// WithDataFromString parses s as JSON and attaches it as the event's data.
// Invalid JSON is stored verbatim as a quoted JSON string so the event
// still marshals successfully.
func (e *AuditEvent) WithDataFromString(s string) *AuditEvent {
	raw := json.RawMessage(s)
	if !json.Valid(raw) {
		if quoted, err := json.Marshal(s); err == nil {
			raw = quoted
		}
	}
	return e.WithData(&raw)
}
