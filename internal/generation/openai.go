package generation

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string // empty for api.openai.com
	Sampling Sampling
	Rate     RateLimit
}

// OpenAIGenerator completes prompts through langchaingo's OpenAI client.
type OpenAIGenerator struct {
	llm      *openai.LLM
	model    string
	sampling Sampling
	limiter  *rate.Limiter
	priority int
}

// NewOpenAIGenerator creates the client. It fails without an API key.
func NewOpenAIGenerator(cfg OpenAIConfig, priority int) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return &OpenAIGenerator{
		llm:      llm,
		model:    cfg.Model,
		sampling: cfg.Sampling.withDefaults(),
		limiter:  cfg.Rate.limiter(),
		priority: priority,
	}, nil
}

func (g *OpenAIGenerator) Name() string  { return "openai" }
func (g *OpenAIGenerator) Priority() int { return g.priority }
func (g *OpenAIGenerator) IsMock() bool  { return false }
func (g *OpenAIGenerator) Close() error  { return nil }

// Available reports a configured client. The API has no free check, so a
// bad key surfaces on the first request and degrades that request.
func (g *OpenAIGenerator) Available(context.Context) error {
	if g.llm == nil {
		return fmt.Errorf("%w: openai client not initialized", ErrInvalidConfig)
	}
	return nil
}

// Complete implements Generator.
func (g *OpenAIGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrGenerationFailed, err)
	}

	messages := make([]llms.MessageContent, 0, 2)
	if p.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, p.User))

	resp, err := g.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(g.sampling.Temperature),
		llms.WithMaxTokens(g.sampling.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrGenerationFailed)
	}
	return resp.Choices[0].Content, nil
}
