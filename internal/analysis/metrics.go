package analysis

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kiranshivaraju/convointel/internal/analysis"

var tracer = otel.Tracer(instrumentationName)

type pipelineMetrics struct {
	submissions    metric.Int64Counter
	transitions    metric.Int64Counter
	insightLatency metric.Float64Histogram
	feedback       metric.Int64Counter
}

func newPipelineMetrics() *pipelineMetrics {
	meter := otel.Meter(instrumentationName)
	m := &pipelineMetrics{}
	var err error

	if m.submissions, err = meter.Int64Counter("convointel.analysis.submissions",
		metric.WithDescription("Audio submissions by outcome")); err != nil {
		slog.Warn("metric init failed", "metric", "submissions", "error", err)
	}
	if m.transitions, err = meter.Int64Counter("convointel.analysis.transitions",
		metric.WithDescription("Analysis job status transitions")); err != nil {
		slog.Warn("metric init failed", "metric", "transitions", "error", err)
	}
	if m.insightLatency, err = meter.Float64Histogram("convointel.analysis.insight.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Insight generation latency")); err != nil {
		slog.Warn("metric init failed", "metric", "insight_latency", "error", err)
	}
	if m.feedback, err = meter.Int64Counter("convointel.simulation.feedback",
		metric.WithDescription("Simulation feedback requests by outcome")); err != nil {
		slog.Warn("metric init failed", "metric", "feedback", "error", err)
	}
	return m
}

func (m *pipelineMetrics) submission(ctx context.Context, outcome string) {
	if m.submissions != nil {
		m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *pipelineMetrics) transition(ctx context.Context, status string) {
	if m.transitions != nil {
		m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func (m *pipelineMetrics) insight(ctx context.Context, seconds float64, outcome string) {
	if m.insightLatency != nil {
		m.insightLatency.Record(ctx, seconds, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *pipelineMetrics) feedbackOutcome(ctx context.Context, outcome string) {
	if m.feedback != nil {
		m.feedback.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
