package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := SessionIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("session.id", v))
	}
	if v := RequestIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("request.id", v))
	}
	if v := UserIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("user.id", v))
	}
	if v := CourseIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("course.id", v))
	}
	return fields
}

type sessionCtxKey struct{}
type requestCtxKey struct{}
type userCtxKey struct{}
type courseCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// ValidateID checks a correlation id: non-empty, UTF-8, at most 128 chars of
// [a-zA-Z0-9_.:-].
func ValidateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// withID stores id under key. Invalid ids are dropped rather than logged, so a
// malformed caller id never reaches the log stream.
func withID(ctx context.Context, key any, id, name string) context.Context {
	if ValidateID(id, name) != nil {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func stringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithSessionID adds the conversation session id to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withID(ctx, sessionCtxKey{}, id, "sessionID")
}

// SessionIDFromContext extracts the session id.
func SessionIDFromContext(ctx context.Context) string { return stringValue(ctx, sessionCtxKey{}) }

// WithRequestID adds a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtxKey{}, id, "requestID")
}

// RequestIDFromContext extracts the request id.
func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestCtxKey{}) }

// WithUserID adds the learner's user id to ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return withID(ctx, userCtxKey{}, id, "userID")
}

// UserIDFromContext extracts the user id.
func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, userCtxKey{}) }

// WithCourseID adds the course id to ctx.
func WithCourseID(ctx context.Context, id string) context.Context {
	return withID(ctx, courseCtxKey{}, id, "courseID")
}

// CourseIDFromContext extracts the course id.
func CourseIDFromContext(ctx context.Context) string { return stringValue(ctx, courseCtxKey{}) }

// For returns base with the correlation fields of ctx attached. A nil base
// yields a no-op logger.
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
