package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "civiclens/jobs"

// StartJobSpan opens a span around one job handler invocation. Both
// execution paths (Temporal tick activity and the database-claim worker)
// wrap handler runs with it, so stage-level work inherits the span through
// the job context.
func StartJobSpan(ctx context.Context, jobType, jobID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job."+jobType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.type", jobType),
			attribute.String("job.id", jobID),
		))
}

// EndJobSpan records the job's terminal status and closes the span.
func EndJobSpan(span trace.Span, status, jobErr string) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("job.status", status))
	if jobErr != "" {
		span.SetStatus(codes.Error, jobErr)
	}
	span.End()
}
