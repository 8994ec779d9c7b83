package audit

import "context"

// BackendInfo names the backend a proxied request was routed to, so
// the auditor can label events with the backend instead of the
// generic component name when one is in scope.
type BackendInfo struct {
	BackendName string
}

type backendInfoKey struct{}

// WithBackendInfo returns a context carrying info for downstream
// extraction by the Auditor.
func WithBackendInfo(ctx context.Context, info *BackendInfo) context.Context {
	return context.WithValue(ctx, backendInfoKey{}, info)
}

// BackendInfoFromContext retrieves the BackendInfo set by
// WithBackendInfo, if any.
func BackendInfoFromContext(ctx context.Context) (*BackendInfo, bool) {
	info, ok := ctx.Value(backendInfoKey{}).(*BackendInfo)
	return info, ok
}
