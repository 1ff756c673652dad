package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/tutord/internal/fallback"
	"go.uber.org/zap"
)

// Options configures every provider the chain can build.
type Options struct {
	// Chain lists provider names in priority order.
	Chain        []string
	Dimension    int // mock dimension
	CheckTimeout time.Duration
	TEI          TEIConfig
	FastEmbed    FastEmbedConfig
	Ollama       OllamaConfig
	Gemini       GeminiConfig
	Metrics      *Metrics
}

// Factories builds one fallback factory per chain entry. Priority is the
// position in the chain.
func Factories(opts Options) ([]fallback.Factory[Provider], error) {
	factories := make([]fallback.Factory[Provider], 0, len(opts.Chain))
	for i, name := range opts.Chain {
		priority := i
		var build func(ctx context.Context) (Provider, error)
		switch name {
		case "tei":
			build = func(context.Context) (Provider, error) { return NewTEIProvider(opts.TEI, priority) }
		case "fastembed":
			build = func(context.Context) (Provider, error) { return NewFastEmbedProvider(opts.FastEmbed, priority) }
		case "ollama":
			build = func(context.Context) (Provider, error) { return NewOllamaProvider(opts.Ollama, priority) }
		case "gemini":
			build = func(ctx context.Context) (Provider, error) { return NewGeminiProvider(ctx, opts.Gemini, priority) }
		case "mock":
			build = func(context.Context) (Provider, error) { return NewMockProvider(opts.Dimension, priority), nil }
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
		}
		factories = append(factories, fallback.Factory[Provider]{Name: name, Priority: priority, New: build})
	}
	return factories, nil
}

// Resolve builds the chain and returns the first available provider,
// instrumented with opts.Metrics.
func Resolve(ctx context.Context, opts Options, logger *zap.Logger) (Provider, fallback.Report, error) {
	factories, err := Factories(opts)
	if err != nil {
		return nil, fallback.Report{}, err
	}
	p, report, err := fallback.Resolve(ctx, factories,
		fallback.WithLogger(logger),
		fallback.WithKind("embeddings"),
		fallback.WithCheckTimeout(opts.CheckTimeout))
	if err != nil {
		return nil, report, err
	}
	return Instrument(p, opts.Metrics), report, nil
}
