// Package telemetry sets up distributed tracing for the gateway via
// span-starting helpers (StartToolCallSpan, StartPromptSpan,
// StartResourceSpan), tracing only, no metrics pipeline. Every
// StartXSpan helper still costs nothing when no tracer provider is
// configured, since go.opentelemetry.io/otel defaults to a no-op
// provider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies the gateway's tracer in whatever trace.Provider
// the embedding process configures (or the default no-op provider).
const TracerName = "github.com/mcpmux/gateway"

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartToolCallSpan starts a span for one outbound tool call.
func StartToolCallSpan(ctx context.Context, toolName, serverName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String("mcp.tool.name", toolName),
		attribute.String("mcp.server.name", serverName),
	}, attrs...)
	return tracer().Start(ctx, "mcp.tool.call", trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindClient))
}

// StartPromptSpan starts a span for one outbound prompt fetch.
func StartPromptSpan(ctx context.Context, promptName, serverName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String("mcp.prompt.name", promptName),
		attribute.String("mcp.server.name", serverName),
	}, attrs...)
	return tracer().Start(ctx, "mcp.prompt.get", trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindClient))
}

// StartResourceSpan starts a span for one outbound resource read.
func StartResourceSpan(ctx context.Context, uri, serverName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String("mcp.resource.uri", uri),
		attribute.String("mcp.server.name", serverName),
	}, attrs...)
	return tracer().Start(ctx, "mcp.resource.read", trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindClient))
}

// StartDialSpan starts a span around a single outbound server dial
// attempt, covering both the transport handshake and the connection
// pool's single-flight dedup.
func StartDialSpan(ctx context.Context, serverName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String("mcp.server.name", serverName),
	}, attrs...)
	return tracer().Start(ctx, "mcp.server.dial", trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindClient))
}
