package vmcp

import (
	"errors"
	"fmt"
)

// ErrorKind is the taxonomy of section 7: every failure mode the
// core can produce, each with a fixed propagation policy.
type ErrorKind string

// Error kinds, matching the "Kind" column of the error handling table.
const (
	// KindUnknownBackend means the resolved backend is not declared.
	KindUnknownBackend ErrorKind = "UnknownBackend"
	// KindToolHidden means the resolved tool is disabled or stale.
	KindToolHidden ErrorKind = "ToolHidden"
	// KindOpenTimeout means a backend open exceeded its bounded timeout.
	KindOpenTimeout ErrorKind = "OpenTimeout"
	// KindTransportFailed means a forwarded request's transport failed.
	KindTransportFailed ErrorKind = "TransportFailed"
	// KindConfigCorrupt means the document failed to parse.
	KindConfigCorrupt ErrorKind = "ConfigCorrupt"
	// KindConfigUnwritable means the document failed to save.
	KindConfigUnwritable ErrorKind = "ConfigUnwritable"
	// KindSSRFBlocked means a backend URL resolved to a disallowed range.
	KindSSRFBlocked ErrorKind = "SSRFBlocked"
	// KindBackendBackingOff means a prior open failed recently and the
	// backend's reconnect backoff has not yet elapsed (section 5, S5).
	KindBackendBackingOff ErrorKind = "BackendBackingOff"
)

// Error is a taxonomy-tagged error. Components construct one with New
// and callers branch on Kind via errors.As, following the same
// wrapped-sentinel convention the teacher's error helpers use.
type Error struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

// New constructs a taxonomy-tagged error for the given backend.
func New(kind ErrorKind, backend string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Err: err}
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s(%s): %v", e.Kind, e.Backend, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind of err, if any wrapped error in its
// chain is a *Error. The second return is false for plain errors.
func KindOf(err error) (ErrorKind, bool) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind, true
	}
	return "", false
}

// IsKind reports whether err wraps a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
