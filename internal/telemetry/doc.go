// Package telemetry sets up OpenTelemetry tracing and metrics for tutord.
//
// Spans cover the answer path (tutor.generate_response, retrieval.reformulate,
// retrieval.search, generation.complete) and ingestion. Meters count
// embedding and generation calls per provider and fallback events.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Export is off by default. When the collector is unreachable the instance
// reports Degraded and callers keep working with no-op providers.
//
// Tests use NewTestTelemetry, which records spans in memory and reads
// metrics through a manual reader.
package telemetry
