package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// MockProvider returns deterministic placeholder vectors seeded from a hash
// of the text. Similarity between mock vectors carries no meaning.
type MockProvider struct {
	dimension int
	priority  int
}

// NewMockProvider creates a mock provider. A non-positive dimension uses 384.
func NewMockProvider(dimension, priority int) *MockProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{dimension: dimension, priority: priority}
}

func (p *MockProvider) Name() string                    { return "mock" }
func (p *MockProvider) Priority() int                   { return p.priority }
func (p *MockProvider) IsMock() bool                    { return true }
func (p *MockProvider) Dimension() int                  { return p.dimension }
func (p *MockProvider) Available(context.Context) error { return nil }
func (p *MockProvider) Close() error                    { return nil }

func (p *MockProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(passagePrefix + t)
	}
	return out, nil
}

func (p *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := checkTexts([]string{text}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(queryPrefix + text), nil
}

// vector returns a unit vector drawn from a PCG stream seeded by FNV-64a.
func (p *MockProvider) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	vec := make([]float32, p.dimension)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
