package telemetry

import (
	"context"
	"fmt"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// TestTelemetry records spans in memory and reads metrics on demand. It is
// not installed globally; pass Meter or Tracer to the component under test.
type TestTelemetry struct {
	*Telemetry
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry creates an in-memory instance.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg:     cfg,
			logger:  zap.NewNop(),
			traces:  trace.NewTracerProvider(trace.WithSpanProcessor(spans)),
			metrics: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Span returns the first ended span called name, or nil.
func (t *TestTelemetry) Span(name string) trace.ReadOnlySpan {
	for _, s := range t.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpan fails unless a span called name ended with every attribute in
// want. Values compare by their printed form.
func (t *TestTelemetry) AssertSpan(tb testing.TB, name string, want map[string]any) {
	tb.Helper()
	span := t.Span(name)
	if span == nil {
		tb.Errorf("span %q not recorded (%d spans ended)", name, len(t.spans.Ended()))
		return
	}
	got := make(map[string]string, len(span.Attributes()))
	for _, kv := range span.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	for k, v := range want {
		if g, ok := got[k]; !ok || g != fmt.Sprint(v) {
			tb.Errorf("span %q attribute %s = %q, want %v", name, k, g, v)
		}
	}
}

// Sum adds up every data point of the int64 counter called name.
func (t *TestTelemetry) Sum(tb testing.TB, name string) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}
