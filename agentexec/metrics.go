/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentexec

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// GenAI records token usage and agent run outcomes. One meter is shared
// across provider backends, with the model name as a dimension. Metric
// creation failures degrade to no-op counters rather than failing startup.
type GenAI struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	runs             metric.Int64Counter
}

// NewGenAI creates the shared GenAI metrics instance.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	runs, err := meter.Int64Counter("agent.runs",
		metric.WithDescription("The number of agent executions by status"),
		metric.WithUnit("{runs}"))
	if err != nil {
		slog.Warn("Failed to create agent runs counter, metrics will be disabled", "error", err, "meter", meterName)
		runs = noop.Int64Counter{}
	}

	return &GenAI{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		runs:             runs,
	}
}

// RecordTokens records prompt and completion token usage for one model call.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.promptTokens.Add(ctx, promptTokens, attrs)
	m.completionTokens.Add(ctx, completionTokens, attrs)
}

// RecordRun records one completed agent execution.
func (m *GenAI) RecordRun(ctx context.Context, agent, model string, status Status) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("model", model),
		attribute.String("status", string(status)),
	))
}
