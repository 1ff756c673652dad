package generation

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/time/rate"
)

var (
	// ErrGenerationFailed wraps every per-request model failure.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownGenerator is returned for a chain entry with no implementation.
	ErrUnknownGenerator = errors.New("unknown generator")
)

// Generator completes prompts with one language model.
type Generator interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
	Priority() int
	// IsMock reports the offline responder, which never calls a model.
	IsMock() bool
	// Available checks the backend.
	Available(ctx context.Context) error
	Close() error
}

// Sampling holds the decoding parameters shared by hosted generators.
type Sampling struct {
	Temperature float64
	MaxTokens   int
}

func (s Sampling) withDefaults() Sampling {
	if s.MaxTokens <= 0 {
		s.MaxTokens = 512
	}
	if s.Temperature < 0 {
		s.Temperature = 0
	}
	return s
}

// RateLimit bounds requests per second to a hosted model. A zero Limit
// disables limiting.
type RateLimit struct {
	Limit float64
	Burst int
}

func (r RateLimit) limiter() *rate.Limiter {
	if r.Limit <= 0 {
		return nil
	}
	burst := r.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r.Limit), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// cleanCompletion trims model output. Some models echo the final prompt
// heading; it is dropped.
func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"### Answer:", "Standalone question:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return s
}
