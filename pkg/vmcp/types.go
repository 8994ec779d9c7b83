// Package vmcp defines the core types shared across the aggregating
// MCP proxy: backend identity, qualified names, and the document
// schema that the configuration, discovery, backend, and proxy
// packages all operate on.
package vmcp

import "strings"

// NameSeparator divides a backend name from a backend-local name in a
// qualified identifier ("B::t"). Backend names are restricted to
// identifier characters so this separator never occurs inside one.
const NameSeparator = "::"

// QualifiedName joins a backend name and a backend-local tool or
// prompt name into the identifier exposed to the downstream client.
func QualifiedName(backend, local string) string {
	return backend + NameSeparator + local
}

// SplitQualifiedName splits a qualified name on the first occurrence
// of NameSeparator. ok is false if the separator is not present.
func SplitQualifiedName(qualified string) (backend, local string, ok bool) {
	idx := strings.Index(qualified, NameSeparator)
	if idx < 0 {
		return "", "", false
	}
	return qualified[:idx], qualified[idx+len(NameSeparator):], true
}

// TransportKind hints at which wire transport a remote backend speaks.
// When absent, the transport factory uses streamable HTTP for a URL
// backend; it does not probe.
type TransportKind string

// Recognized transport hints for URL-addressed backends.
const (
	TransportStdio          TransportKind = "stdio"
	TransportStreamableHTTP TransportKind = "streamable-http"
	TransportSSE            TransportKind = "sse"
)

// BackendState is the lifecycle stage of a single backend connection,
// per the state machine in section 3 of the specification.
type BackendState string

// Backend lifecycle states.
const (
	BackendDeclared     BackendState = "declared"
	BackendPending      BackendState = "pending"
	BackendConnecting   BackendState = "connecting"
	BackendLive         BackendState = "live"
	BackendDisconnected BackendState = "disconnected"
)

// ToolRef is an observation of a single tool surfaced by a backend
// during discovery: just enough to drive the merge engine.
type ToolRef struct {
	Name        string
	Description string
}

// PromptRef is an observation of a single prompt surfaced by a backend
// during discovery.
type PromptRef struct {
	Name        string
	Description string
}

// ResourceRef is an observation of a single resource surfaced by a
// backend during discovery. Resources are identified by their raw URI;
// they are never namespaced because URIs have no universally safe
// separator character.
type ResourceRef struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
}

// Capabilities records which capability classes a backend advertised
// at MCP initialize time.
type Capabilities struct {
	Tools     bool
	Prompts   bool
	Resources bool
}

// Empty reports whether no capability was advertised.
func (c Capabilities) Empty() bool {
	return !c.Tools && !c.Prompts && !c.Resources
}
