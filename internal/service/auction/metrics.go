package auction

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the engine's OTel counters. Instrument creation failures
// leave nil instruments, which the record helpers tolerate.
type metrics struct {
	bidsAccepted metric.Int64Counter
	bidsRejected metric.Int64Counter
	bidConflicts metric.Int64Counter
	transitions  metric.Int64Counter
	events       metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/gavelhouse/gavel/service/auction")
	m := &metrics{}
	m.bidsAccepted, _ = meter.Int64Counter("gavel.bids.accepted",
		metric.WithDescription("Bids committed to the ledger"))
	m.bidsRejected, _ = meter.Int64Counter("gavel.bids.rejected",
		metric.WithDescription("Bids rejected during validation"))
	m.bidConflicts, _ = meter.Int64Counter("gavel.bids.conflicts",
		metric.WithDescription("Lost compare-and-swap attempts"))
	m.transitions, _ = meter.Int64Counter("gavel.lifecycle.transitions",
		metric.WithDescription("Won lifecycle transitions"))
	m.events, _ = meter.Int64Counter("gavel.events.published",
		metric.WithDescription("Events published to the bus"))
	return m
}

func (m *metrics) bidAccepted(ctx context.Context) {
	if m.bidsAccepted != nil {
		m.bidsAccepted.Add(ctx, 1)
	}
}

func (m *metrics) bidRejected(ctx context.Context, reason string) {
	if m.bidsRejected != nil {
		m.bidsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *metrics) bidConflict(ctx context.Context) {
	if m.bidConflicts != nil {
		m.bidConflicts.Add(ctx, 1)
	}
}

func (m *metrics) transition(ctx context.Context, to string) {
	if m.transitions != nil {
		m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
	}
}

func (m *metrics) eventPublished(ctx context.Context, typ string) {
	if m.events != nil {
		m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
	}
}
