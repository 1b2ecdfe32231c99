package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "upchuck"

// StartItemSpan starts a span for processing one queue item.
func StartItemSpan(ctx context.Context, itemID, filePath string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "queue.process",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("item.file_path", filePath),
			attribute.Int("item.attempt", attempt),
		),
	)
}

// StartAgentSpan starts a span for one agent invocation within an item.
func StartAgentSpan(ctx context.Context, agentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.process",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("agent.type", agentType)),
	)
}

// StartReviewSpan starts a span for a proposal review transition.
func StartReviewSpan(ctx context.Context, proposalID, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "proposal."+operation,
		trace.WithAttributes(attribute.String("proposal.id", proposalID)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
