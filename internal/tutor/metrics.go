package tutor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/tutord/internal/tutor"

// Response outcomes.
const (
	outcomeGrounded = "grounded"
	outcomeDegraded = "degraded"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

type metrics struct {
	duration  metric.Float64Histogram
	responses metric.Int64Counter
	documents metric.Int64Counter
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := &metrics{}

	var err error
	m.duration, err = meter.Float64Histogram(
		"tutord.tutor.response_duration_seconds",
		metric.WithDescription("End-to-end GenerateResponse latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.responses, err = meter.Int64Counter(
		"tutord.tutor.responses_total",
		metric.WithDescription("Responses by outcome"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		logger.Warn("failed to create responses counter", zap.Error(err))
	}

	m.documents, err = meter.Int64Counter(
		"tutord.tutor.documents_total",
		metric.WithDescription("Ingested documents by status"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		logger.Warn("failed to create documents counter", zap.Error(err))
	}
	return m
}

func (m *metrics) response(ctx context.Context, outcome, namespace string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("namespace", namespace),
	)
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if m.responses != nil {
		m.responses.Add(ctx, 1, attrs)
	}
}

func (m *metrics) document(ctx context.Context, status DocumentStatus) {
	if m.documents != nil {
		m.documents.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}
