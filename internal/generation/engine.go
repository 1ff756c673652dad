package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/session"
)

var tracer = otel.Tracer("tutord.generation")

// Answer is the outcome of one generation.
type Answer struct {
	Text      string
	Generator string
	Mock      bool // produced by the offline responder
	Failed    bool // Text is Apology
}

// EngineConfig bounds model calls.
type EngineConfig struct {
	RequestTimeout     time.Duration // default 30s
	ReformulateTimeout time.Duration // default 15s
}

// Engine applies timeouts and the failure policy around one Generator.
// Safe for concurrent use when the Generator is.
type Engine struct {
	gen     Generator
	cfg     EngineConfig
	logger  *zap.Logger
	metrics *Metrics
}

// NewEngine wraps gen. logger and metrics may be nil.
func NewEngine(gen Generator, cfg EngineConfig, logger *zap.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ReformulateTimeout <= 0 {
		cfg.ReformulateTimeout = 15 * time.Second
	}
	return &Engine{gen: gen, cfg: cfg, logger: logger, metrics: metrics}
}

// Name returns the active generator's name.
func (e *Engine) Name() string { return e.gen.Name() }

// IsMock reports whether the active generator is the offline responder.
func (e *Engine) IsMock() bool { return e.gen.IsMock() }

// Generate answers query from chunks and history. It never returns an
// error: a failed, blank or timed-out completion yields Apology.
func (e *Engine) Generate(ctx context.Context, chunks []string, history []session.Turn, query string) Answer {
	ctx, span := tracer.Start(ctx, "Engine.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("generator", e.gen.Name()),
		attribute.Int("context_chunks", len(chunks)),
		attribute.Int("history_turns", len(history)),
	)

	text, err := e.complete(ctx, BuildAnswerPrompt(chunks, history, query), e.cfg.RequestTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("generation failed, returning apology",
			zap.String("generator", e.gen.Name()),
			zap.Error(err))
		return Answer{Text: Apology, Generator: e.gen.Name(), Mock: e.gen.IsMock(), Failed: true}
	}
	span.SetStatus(codes.Ok, "success")
	return Answer{Text: text, Generator: e.gen.Name(), Mock: e.gen.IsMock()}
}

// Reformulate asks the model for a standalone version of query. Errors wrap
// ErrGenerationFailed; callers fall back to the original query.
func (e *Engine) Reformulate(ctx context.Context, history []session.Turn, query string) (string, error) {
	ctx, span := tracer.Start(ctx, "Engine.Reformulate")
	defer span.End()
	span.SetAttributes(attribute.String("generator", e.gen.Name()))

	text, err := e.complete(ctx, BuildReformulationPrompt(history, query), e.cfg.ReformulateTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (e *Engine) complete(ctx context.Context, p Prompt, timeout time.Duration) (string, error) {
	kind := "answer"
	if p.Kind == KindReformulate {
		kind = "reformulate"
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, err := e.gen.Complete(cctx, p)
	if err == nil {
		text = cleanCompletion(text)
		if text == "" {
			err = errors.New("empty completion")
		}
	}
	if err != nil && !errors.Is(err, ErrGenerationFailed) {
		err = fmt.Errorf("%w: %s: %w", ErrGenerationFailed, e.gen.Name(), err)
	}
	e.metrics.record(ctx, e.gen.Name(), kind, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Close closes the generator.
func (e *Engine) Close() error { return e.gen.Close() }
