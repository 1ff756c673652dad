// Package logging provides structured logging for tutord on top of Zap.
//
// # Overview
//
// The package wraps Zap with:
//   - A Trace level (-2, below Debug) for prompt and vector dumps
//   - Console output on stderr by default, optionally teed into an OpenTelemetry log provider
//   - Context field injection (trace_id, session.id, request.id, user.id, course.id)
//   - Secret redaction by field name and value pattern
//   - Level-aware sampling (errors are never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, "lesson-42")
//	logger.Info(ctx, "answer generated", zap.Float64("confidence", 0.85))
//
// Pipeline components take a plain *zap.Logger (Logger.Underlying) so they
// can be constructed with zap.NewNop() in tests. For attaches the request's
// correlation fields to such a logger:
//
//	logging.For(ctx, s.logger).Debug("response generated")
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Warn(ctx, "embedding provider unavailable", zap.String("provider", "tei"))
//	tl.AssertLogged(t, zapcore.WarnLevel, "unavailable")
//	tl.AssertNoSecrets(t)
package logging
