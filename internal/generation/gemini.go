package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Sampling Sampling
	Rate     RateLimit
}

// GeminiGenerator completes prompts with Google's Gemini models.
type GeminiGenerator struct {
	client   *genai.Client
	model    string
	sampling Sampling
	limiter  *rate.Limiter
	priority int
}

// NewGeminiGenerator creates a Gemini client. It fails without an API key.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, priority int) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY not set", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiGenerator{
		client:   client,
		model:    cfg.Model,
		sampling: cfg.Sampling.withDefaults(),
		limiter:  cfg.Rate.limiter(),
		priority: priority,
	}, nil
}

func (g *GeminiGenerator) Name() string  { return "gemini" }
func (g *GeminiGenerator) Priority() int { return g.priority }
func (g *GeminiGenerator) IsMock() bool  { return false }

// Available counts tokens of a short string, which checks the key and model
// without generating.
func (g *GeminiGenerator) Available(ctx context.Context) error {
	if _, err := g.client.GenerativeModel(g.model).CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("gemini availability check: %w", err)
	}
	return nil
}

// Complete implements Generator. A model is built per call because the
// system instruction lives on the model.
func (g *GeminiGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrGenerationFailed, err)
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(g.sampling.Temperature))
	model.SetMaxOutputTokens(int32(g.sampling.MaxTokens))
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", ErrGenerationFailed, err)
	}

	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				parts = append(parts, string(text))
			}
		}
		break // first candidate only
	}
	return strings.Join(parts, ""), nil
}

func (g *GeminiGenerator) Close() error { return g.client.Close() }
