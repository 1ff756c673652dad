package generation

import (
	"context"
	"strings"
)

// MockGenerator answers without a model. Answers quote the top context
// chunk, or say NoAnswerMarker when there is none; reformulation returns
// the query unchanged.
type MockGenerator struct {
	priority int
}

// NewMockGenerator creates the offline responder.
func NewMockGenerator(priority int) *MockGenerator {
	return &MockGenerator{priority: priority}
}

func (g *MockGenerator) Name() string                    { return "mock" }
func (g *MockGenerator) Priority() int                   { return g.priority }
func (g *MockGenerator) IsMock() bool                    { return true }
func (g *MockGenerator) Available(context.Context) error { return nil }
func (g *MockGenerator) Close() error                    { return nil }

// Complete implements Generator.
func (g *MockGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Kind == KindReformulate {
		return p.Query, nil
	}
	for _, c := range p.Context {
		if c = strings.TrimSpace(c); c != "" {
			return "Here is what the course material says:\n\n" + c, nil
		}
	}
	return NoAnswerMarker, nil
}
