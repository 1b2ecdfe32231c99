package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "upchuck"

// Metrics holds all Upchuck metric instruments.
type Metrics struct {
	ItemsClaimed   metric.Int64Counter
	ItemsCompleted metric.Int64Counter
	ItemsFailed    metric.Int64Counter
	AgentDuration  metric.Float64Histogram
	Extractions    metric.Int64Counter
	Proposals      metric.Int64Counter
	Reviews        metric.Int64Counter
	EventsRelayed  metric.Int64Counter
}

// NewMetrics creates all instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ItemsClaimed, err = meter.Int64Counter("upchuck.queue.items.claimed",
		metric.WithDescription("Queue items claimed for processing"))
	if err != nil {
		return nil, err
	}

	m.ItemsCompleted, err = meter.Int64Counter("upchuck.queue.items.completed",
		metric.WithDescription("Queue items processed successfully"))
	if err != nil {
		return nil, err
	}

	m.ItemsFailed, err = meter.Int64Counter("upchuck.queue.items.failed",
		metric.WithDescription("Queue item processing attempts that failed"))
	if err != nil {
		return nil, err
	}

	m.AgentDuration, err = meter.Float64Histogram("upchuck.agent.duration_seconds",
		metric.WithDescription("Agent invocation duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.Extractions, err = meter.Int64Counter("upchuck.extractions.recorded",
		metric.WithDescription("Extracted data points recorded"))
	if err != nil {
		return nil, err
	}

	m.Proposals, err = meter.Int64Counter("upchuck.proposals.created",
		metric.WithDescription("Elevation proposals created, by autonomy decision"))
	if err != nil {
		return nil, err
	}

	m.Reviews, err = meter.Int64Counter("upchuck.proposals.reviewed",
		metric.WithDescription("Proposal review transitions, by outcome"))
	if err != nil {
		return nil, err
	}

	m.EventsRelayed, err = meter.Int64Counter("upchuck.outbox.relayed",
		metric.WithDescription("Outbox events published to the broker"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAgentCall records one agent invocation.
func (m *Metrics) RecordAgentCall(ctx context.Context, agentType string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AgentDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("agent_type", agentType),
		attribute.String("outcome", outcome),
	))
}

// RecordReview counts a review transition into status.
func (m *Metrics) RecordReview(ctx context.Context, agentType, status string) {
	m.Reviews.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_type", agentType),
		attribute.String("status", status),
	))
}
