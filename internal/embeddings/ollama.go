package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaConfig points at an Ollama server.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaProvider embeds through a local Ollama server.
type OllamaProvider struct {
	client    *ollama.Client
	model     string
	priority  int
	e5        bool
	dimension atomic.Int64
}

// NewOllamaProvider creates an Ollama embedding client.
func NewOllamaProvider(cfg OllamaConfig, priority int) (*OllamaProvider, error) {
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
	p := &OllamaProvider{
		client:   ollama.NewClient(parsed, &http.Client{Timeout: 120 * time.Second}),
		model:    cfg.Model,
		priority: priority,
		e5:       isE5(cfg.Model),
	}
	p.dimension.Store(int64(detectDimension(cfg.Model)))
	return p, nil
}

func (p *OllamaProvider) Name() string   { return "ollama" }
func (p *OllamaProvider) Priority() int  { return p.priority }
func (p *OllamaProvider) IsMock() bool   { return false }
func (p *OllamaProvider) Dimension() int { return int(p.dimension.Load()) }

// Available pings the server and embeds a short string to learn the dimension.
func (p *OllamaProvider) Available(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: ollama heartbeat: %v", ErrEmbeddingFailed, err)
	}
	vec, err := p.EmbedQuery(ctx, "ping")
	if err != nil {
		return err
	}
	p.dimension.Store(int64(len(vec)))
	return nil
}

func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	inputs := texts
	if p.e5 {
		inputs = prefixed(passagePrefix, texts)
	}
	resp, err := p.client.Embed(ctx, &ollama.EmbedRequest{Model: p.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := checkTexts([]string{text}); err != nil {
		return nil, err
	}
	input := text
	if p.e5 {
		input = queryPrefix + text
	}
	resp, err := p.client.Embed(ctx, &ollama.EmbedRequest{Model: p.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrEmbeddingFailed)
	}
	return resp.Embeddings[0], nil
}

func (p *OllamaProvider) Close() error { return nil }
