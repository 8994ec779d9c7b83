// Package telemetry provides the proxy's operational instrumentation,
// wired in by the serve command: Prometheus counters/gauges
// exposed at the admin surface's /metrics route, and OpenTelemetry
// spans around backend opens, discovery sweeps, and forwarded tool
// calls.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerScope = "vmcp"

	// SpanBackendOpen wraps opening a backend transport session.
	SpanBackendOpen = "vmcp.backend.open"
	// SpanDiscoverySweep wraps one discovery sweep across all backends.
	SpanDiscoverySweep = "vmcp.discovery.sweep"
	// SpanToolCall wraps a forwarded tool call to a backend.
	SpanToolCall = "vmcp.tool.call"

	attrBackend = "vmcp.backend"
	attrTool    = "vmcp.tool"
	attrStatus  = "vmcp.status"
)

// StartSpan starts a span in the package's tracer scope, tagging it
// with the backend name and any caller-supplied attributes.
func StartSpan(ctx context.Context, spanName, backend string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	if backend != "" {
		spanAttrs = append(spanAttrs, attribute.String(attrBackend, backend))
	}
	spanAttrs = append(spanAttrs, attrs...)
	return otel.Tracer(tracerScope).Start(ctx, spanName, trace.WithAttributes(spanAttrs...))
}

// ToolAttr builds the span attribute naming a local tool.
func ToolAttr(tool string) attribute.KeyValue {
	return attribute.String(attrTool, tool)
}

// EndSpan records err on span (if non-nil) and sets the span's final
// status, then ends it. Safe to call with a nil span.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(attrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(attrStatus, "success"))
}
