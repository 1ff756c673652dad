package embeddings

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrUnknownProvider is returned for a chain entry with no implementation.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// Provider generates embeddings.
type Provider interface {
	// EmbedDocuments embeds passages for indexing, one vector per text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector size. Zero until a check has run for
	// providers that discover it.
	Dimension() int
	Name() string
	Priority() int
	// IsMock reports a placeholder provider whose vectors carry no meaning.
	IsMock() bool
	// Available checks the backend.
	Available(ctx context.Context) error
	Close() error
}

const (
	queryPrefix   = "query: "
	passagePrefix = "passage: "
)

// isE5 reports whether model belongs to the E5 family.
func isE5(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "e5-") || strings.Contains(m, "/e5") || strings.Contains(m, "-e5")
}

func prefixed(prefix string, texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = prefix + t
	}
	return out
}

// detectDimension guesses a dimension from a model name. Used until a check
// reports the real size.
func detectDimension(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	case strings.Contains(m, "small"), strings.Contains(m, "mini"):
		return 384
	default:
		return 0
	}
}

func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return ErrEmptyInput
		}
	}
	return nil
}
