package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "support-feed-worker/internal/worker"

type telemetry struct {
	tracer    trace.Tracer
	entries   metric.Int64Counter
	idlePolls metric.Int64Counter
}

func newTelemetry() telemetry {
	meter := otel.Meter(instrumentationName)
	entries, _ := meter.Int64Counter("sfw.entries",
		metric.WithDescription("Feed entries processed, by kind and outcome."))
	idlePolls, _ := meter.Int64Counter("sfw.idle_polls",
		metric.WithDescription("Fetches that returned no entries."))
	return telemetry{
		tracer:    otel.Tracer(instrumentationName),
		entries:   entries,
		idlePolls: idlePolls,
	}
}

func (t telemetry) startEntry(ctx context.Context, id, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "entry.process", trace.WithAttributes(
		attribute.String("feed.entry_id", id),
		attribute.String("feed.kind", kind),
	))
}

func (t telemetry) recordEntry(ctx context.Context, kind, outcome string) {
	if t.entries == nil {
		return
	}
	t.entries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (t telemetry) recordIdle(ctx context.Context) {
	if t.idlePolls == nil {
		return
	}
	t.idlePolls.Add(ctx, 1)
}
