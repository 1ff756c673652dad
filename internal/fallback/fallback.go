// Package fallback resolves one active backend from a ranked list of
// candidates.
//
// Embedding providers and generators both use it at startup: candidates are
// constructed and checked in ascending priority, and the first one that
// constructs and answers Available becomes active for the process lifetime.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable marks a candidate whose check failed.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrExhausted is returned when no candidate resolved.
	ErrExhausted = errors.New("fallback chain exhausted")
)

// Checker reports whether a constructed candidate can serve requests.
type Checker interface {
	Available(ctx context.Context) error
}

// Factory builds one candidate.
type Factory[T Checker] struct {
	Name     string
	Priority int
	New      func(ctx context.Context) (T, error)
}

// Skip records a candidate that did not resolve.
type Skip struct {
	Name string
	Err  error
}

// Report describes a resolution.
type Report struct {
	Active  string
	Skipped []Skip
}

type options struct {
	logger       *zap.Logger
	checkTimeout time.Duration
	kind         string
}

// Option configures Resolve.
type Option func(*options)

// WithLogger logs skipped candidates at warn.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCheckTimeout bounds each construction plus check. Default 10s.
func WithCheckTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkTimeout = d
		}
	}
}

// WithKind labels log lines, e.g. "embeddings" or "generation".
func WithKind(kind string) Option {
	return func(o *options) { o.kind = kind }
}

// Resolve constructs and checks candidates in ascending priority. Ties keep
// declaration order. A rejected candidate that implements io.Closer is closed.
func Resolve[T Checker](ctx context.Context, factories []Factory[T], opts ...Option) (T, Report, error) {
	o := options{logger: zap.NewNop(), checkTimeout: 10 * time.Second, kind: "provider"}
	for _, opt := range opts {
		opt(&o)
	}

	ranked := make([]Factory[T], len(factories))
	copy(ranked, factories)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Priority < ranked[j].Priority })

	var (
		zero   T
		report Report
	)
	for _, f := range ranked {
		if err := ctx.Err(); err != nil {
			return zero, report, err
		}
		candidate, err := try(ctx, f, o.checkTimeout)
		if err != nil {
			report.Skipped = append(report.Skipped, Skip{Name: f.Name, Err: err})
			o.logger.Warn("fallback candidate skipped",
				zap.String("kind", o.kind),
				zap.String("candidate", f.Name),
				zap.Int("priority", f.Priority),
				zap.Error(err))
			continue
		}
		report.Active = f.Name
		o.logger.Info("fallback candidate active",
			zap.String("kind", o.kind),
			zap.String("candidate", f.Name),
			zap.Int("skipped", len(report.Skipped)))
		return candidate, report, nil
	}
	return zero, report, fmt.Errorf("%w: %s: %d candidates tried", ErrExhausted, o.kind, len(ranked))
}

func try[T Checker](ctx context.Context, f Factory[T], timeout time.Duration) (T, error) {
	var zero T
	if f.New == nil {
		return zero, fmt.Errorf("%w: no constructor", ErrUnavailable)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candidate, err := f.New(pctx)
	if err != nil {
		return zero, fmt.Errorf("%w: construct: %v", ErrUnavailable, err)
	}
	if err := candidate.Available(pctx); err != nil {
		if c, ok := any(candidate).(io.Closer); ok {
			_ = c.Close()
		}
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return candidate, nil
}
