package embeddings

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiConfig configures Google text embeddings.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiProvider embeds with Google's hosted embedding models.
type GeminiProvider struct {
	client   *genai.Client
	document *genai.EmbeddingModel
	query    *genai.EmbeddingModel
	priority int
}

// geminiDimension is the output size of text-embedding-004.
const geminiDimension = 768

// NewGeminiProvider creates a Gemini embedding client.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, priority int) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY not set", ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	document := client.EmbeddingModel(model)
	document.TaskType = genai.TaskTypeRetrievalDocument
	query := client.EmbeddingModel(model)
	query.TaskType = genai.TaskTypeRetrievalQuery

	return &GeminiProvider{client: client, document: document, query: query, priority: priority}, nil
}

func (p *GeminiProvider) Name() string   { return "gemini" }
func (p *GeminiProvider) Priority() int  { return p.priority }
func (p *GeminiProvider) IsMock() bool   { return false }
func (p *GeminiProvider) Dimension() int { return geminiDimension }

// Available embeds a short string; a bad key fails here.
func (p *GeminiProvider) Available(ctx context.Context) error {
	_, err := p.EmbedQuery(ctx, "ping")
	return err
}

func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	batch := p.document.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := p.document.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(res.Embeddings), len(texts))
	}
	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := checkTexts([]string{text}); err != nil {
		return nil, err
	}
	res, err := p.query.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return res.Embedding.Values, nil
}

func (p *GeminiProvider) Close() error { return p.client.Close() }
