package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaConfig points at an Ollama server.
type OllamaConfig struct {
	BaseURL  string
	Model    string
	Sampling Sampling
}

// OllamaGenerator completes prompts with a local Ollama model. Local models
// are not rate limited.
type OllamaGenerator struct {
	client   *ollama.Client
	model    string
	sampling Sampling
	priority int
}

// NewOllamaGenerator creates an Ollama chat client.
func NewOllamaGenerator(cfg OllamaConfig, priority int) (*OllamaGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama model required", ErrInvalidConfig)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	return &OllamaGenerator{
		client:   ollama.NewClient(parsed, &http.Client{Timeout: 120 * time.Second}),
		model:    cfg.Model,
		sampling: cfg.Sampling.withDefaults(),
		priority: priority,
	}, nil
}

func (g *OllamaGenerator) Name() string  { return "ollama" }
func (g *OllamaGenerator) Priority() int { return g.priority }
func (g *OllamaGenerator) IsMock() bool  { return false }
func (g *OllamaGenerator) Close() error  { return nil }

// Available pings the server and checks the model is pulled.
func (g *OllamaGenerator) Available(ctx context.Context) error {
	if err := g.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	if _, err := g.client.Show(ctx, &ollama.ShowRequest{Model: g.model}); err != nil {
		return fmt.Errorf("ollama model %s: %w", g.model, err)
	}
	return nil
}

// Complete implements Generator.
func (g *OllamaGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	messages := make([]ollama.Message, 0, 2)
	if p.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: p.System})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: p.User})

	stream := false
	var sb strings.Builder
	err := g.client.Chat(ctx, &ollama.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": g.sampling.Temperature,
			"num_predict": g.sampling.MaxTokens,
		},
	}, func(resp ollama.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: ollama: %v", ErrGenerationFailed, err)
	}
	return sb.String(), nil
}
