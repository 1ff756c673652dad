package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/tutord/internal/vectorstore"

// Metrics holds index operation metrics.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	degraded metric.Int64Counter
}

// NewMetrics creates index instruments on meter. A nil meter uses the global
// provider.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.duration, err = meter.Float64Histogram(
		"tutord.vectorstore.operation_duration_seconds",
		metric.WithDescription("Duration of index operations by operation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"tutord.vectorstore.errors_total",
		metric.WithDescription("Failed index operations by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.degraded, err = meter.Int64Counter(
		"tutord.vectorstore.degraded_queries_total",
		metric.WithDescription("Queries answered with an empty result because the backend failed"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		logger.Warn("failed to create degraded counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) record(ctx context.Context, operation, namespace string, start time.Time, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("namespace", namespace),
	)
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) degradedQuery(ctx context.Context, namespace string) {
	if m == nil || m.degraded == nil {
		return
	}
	m.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}
