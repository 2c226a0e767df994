package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	if sourceID := SourceIDFromContext(ctx); sourceID != "" {
		fields = append(fields, zap.String("source.id", sourceID))
	}

	return fields
}

// Context key types
type requestCtxKey struct{}
type sourceCtxKey struct{}

// WithRequestID adds a per-request correlation ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithSourceID tags the context with the source document being ingested.
func WithSourceID(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceCtxKey{}, sourceID)
}

// SourceIDFromContext extracts the source document ID from context.
func SourceIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceCtxKey{}).(string); ok {
		return s
	}
	return ""
}
