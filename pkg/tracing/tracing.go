package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the package tracer. A nil tracer turns span creation off.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span of ctx. Without a tracer it returns a no-op
// span and leaves ctx unchanged.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, spanName)
}

// EndWithError marks the span failed when err is set, then ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func activeSpan(ctx context.Context) (trace.Span, bool) {
	if tracer == nil {
		return nil, false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil, false
	}
	return span, true
}

// Carrier returns the W3C trace headers for the span in ctx. It is empty
// when no span is recording.
func Carrier(ctx context.Context) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	if _, ok := activeSpan(ctx); ok {
		propagation.TraceContext{}.Inject(ctx, carrier)
	}
	return carrier
}

// GetTraceParent returns the traceparent header for ctx, or "".
func GetTraceParent(ctx context.Context) string {
	return Carrier(ctx).Get("traceparent")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span, ok := activeSpan(ctx)
	if !ok {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the span ID from the context.
func GetSpanID(ctx context.Context) string {
	span, ok := activeSpan(ctx)
	if !ok {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
