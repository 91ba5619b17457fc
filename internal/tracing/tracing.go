// Package tracing extracts W3C trace-context headers from inbound broker
// messages and starts the consumer span required by spec.md §6.3, using
// go.opentelemetry.io/otel's propagation and trace APIs.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/estuary/vizwork"

// headerCarrier adapts a plain header map to otel's TextMapCarrier so the
// NATS message headers (traceparent, tracestate) can be extracted without
// pulling in a NATS-specific propagation shim.
type headerCarrier map[string][]string

func (c headerCarrier) Get(key string) string {
	if vs := c[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (c headerCarrier) Set(key, value string) { c[key] = []string{value} }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// StartConsumerSpan extracts the traceparent/tracestate headers and
// starts a "process_visualization_job" span as their child, with the
// attributes required by spec.md §6.3.
func StartConsumerSpan(ctx context.Context, headers map[string][]string, jobID string, transformID, visualizationID int64) (context.Context, trace.Span) {
	carrier := headerCarrier(headers)
	parent := propagation.TraceContext{}.Extract(ctx, carrier)

	tracer := otel.Tracer(tracerName)
	return tracer.Start(parent, "process_visualization_job",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.Int64("transform.id", transformID),
			attribute.Int64("visualization.id", visualizationID),
		),
	)
}

// RecordError records exception information on the span, per §6.3
// ("errors record exception information").
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
}

// SetJobAttributes backfills the job/transform/visualization attributes
// once the envelope has been decoded: the span starts before decoding
// (§4.G step 1 precedes step 2), so these aren't available at Start time.
func SetJobAttributes(span trace.Span, jobID string, transformID, visualizationID int64) {
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.Int64("transform.id", transformID),
		attribute.Int64("visualization.id", visualizationID),
	)
}
