package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/fallback"
)

// Options configures every generator the chain can build.
type Options struct {
	// Chain lists generator names in priority order.
	Chain        []string
	CheckTimeout time.Duration
	Gemini       GeminiConfig
	OpenAI       OpenAIConfig
	Ollama       OllamaConfig
}

// Factories builds one fallback factory per chain entry. Priority is the
// position in the chain.
func Factories(opts Options) ([]fallback.Factory[Generator], error) {
	factories := make([]fallback.Factory[Generator], 0, len(opts.Chain))
	for i, name := range opts.Chain {
		priority := i
		var build func(ctx context.Context) (Generator, error)
		switch name {
		case "gemini":
			build = func(ctx context.Context) (Generator, error) { return NewGeminiGenerator(ctx, opts.Gemini, priority) }
		case "openai":
			build = func(context.Context) (Generator, error) { return NewOpenAIGenerator(opts.OpenAI, priority) }
		case "ollama":
			build = func(context.Context) (Generator, error) { return NewOllamaGenerator(opts.Ollama, priority) }
		case "mock":
			build = func(context.Context) (Generator, error) { return NewMockGenerator(priority), nil }
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
		}
		factories = append(factories, fallback.Factory[Generator]{Name: name, Priority: priority, New: build})
	}
	return factories, nil
}

// Resolve builds the chain and returns the first available generator.
func Resolve(ctx context.Context, opts Options, logger *zap.Logger) (Generator, fallback.Report, error) {
	factories, err := Factories(opts)
	if err != nil {
		return nil, fallback.Report{}, err
	}
	return fallback.Resolve(ctx, factories,
		fallback.WithLogger(logger),
		fallback.WithKind("generation"),
		fallback.WithCheckTimeout(opts.CheckTimeout))
}
