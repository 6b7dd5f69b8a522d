package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// zeroTraceID is reported when no span is recording on the context, keeping
// the trace id log field fixed-width.
const zeroTraceID = "00000000000000000000000000000000"

// GetTraceID extracts the trace id of the span on the given context, so log
// lines can be correlated with exported traces.
func GetTraceID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return zeroTraceID
}
