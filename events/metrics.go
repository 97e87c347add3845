/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics provides OpenTelemetry counters for orchestration activity.
// Uses graceful degradation: if a counter fails to initialize, a warning is
// logged and a no-op counter takes its place instead of failing startup.
type Metrics struct {
	meter           metric.Meter
	published       metric.Int64Counter
	handlerFailures metric.Int64Counter
	factsProcessed  metric.Int64Counter
	factsIgnored    metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the named meter. The meter name
// should be unified across the process (e.g. "chainguard.conductor") with the
// event kind serving as a dimension on the recorded metrics.
func NewMetrics(meterName string) *Metrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	published, err := meter.Int64Counter("orchestrator.events.published",
		metric.WithDescription("The number of events published on the bus"),
		metric.WithUnit("{events}"))
	if err != nil {
		slog.Warn("Failed to create published counter, metrics will be disabled", "error", err, "meter", meterName)
		published = noop.Int64Counter{}
	}

	handlerFailures, err := meter.Int64Counter("orchestrator.events.handler_failures",
		metric.WithDescription("The number of event handlers that failed or panicked"),
		metric.WithUnit("{failures}"))
	if err != nil {
		slog.Warn("Failed to create handler failure counter, metrics will be disabled", "error", err, "meter", meterName)
		handlerFailures = noop.Int64Counter{}
	}

	factsProcessed, err := meter.Int64Counter("orchestrator.facts.processed",
		metric.WithDescription("The number of webhook facts that drove a session transition"),
		metric.WithUnit("{facts}"))
	if err != nil {
		slog.Warn("Failed to create facts processed counter, metrics will be disabled", "error", err, "meter", meterName)
		factsProcessed = noop.Int64Counter{}
	}

	factsIgnored, err := meter.Int64Counter("orchestrator.facts.ignored",
		metric.WithDescription("The number of webhook facts classified as ignored"),
		metric.WithUnit("{facts}"))
	if err != nil {
		slog.Warn("Failed to create facts ignored counter, metrics will be disabled", "error", err, "meter", meterName)
		factsIgnored = noop.Int64Counter{}
	}

	return &Metrics{
		meter:           meter,
		published:       published,
		handlerFailures: handlerFailures,
		factsProcessed:  factsProcessed,
		factsIgnored:    factsIgnored,
	}
}

// RecordPublished counts one published event of the given kind.
func (m *Metrics) RecordPublished(ctx context.Context, kind string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordHandlerFailure counts one failed or panicked handler invocation.
func (m *Metrics) RecordHandlerFailure(ctx context.Context, kind string) {
	m.handlerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFactProcessed counts one fact that was applied to a session.
func (m *Metrics) RecordFactProcessed(ctx context.Context, kind string) {
	m.factsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFactIgnored counts one fact that was classified as ignored, with the
// classification reason as a dimension.
func (m *Metrics) RecordFactIgnored(ctx context.Context, kind, reason string) {
	m.factsIgnored.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}
