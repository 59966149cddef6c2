package exporters

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans to the service logger at debug level.
// It stands in for a collector when OTLP export is off.
type LogExporter struct {
	Logger ectologger.Logger
}

func (l *LogExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	if l.Logger == nil {
		return nil
	}
	for _, span := range spans {
		l.Logger.WithContext(ctx).WithFields(map[string]interface{}{
			"trace_id":    span.SpanContext().TraceID().String(),
			"span_id":     span.SpanContext().SpanID().String(),
			"span":        span.Name(),
			"duration":    span.EndTime().Sub(span.StartTime()),
			"status_code": span.Status().Code.String(),
		}).Debug("span finished")
	}
	return nil
}

func (l *LogExporter) Shutdown(ctx context.Context) error {
	return nil
}
