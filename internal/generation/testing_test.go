package generation

import (
	"context"
	"sync"
)

// scripted is a Generator returning canned replies for tests.
type scripted struct {
	mu      sync.Mutex
	reply   func(ctx context.Context, p Prompt) (string, error)
	prompts []Prompt
}

func (s *scripted) Complete(ctx context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	return s.reply(ctx, p)
}

func (s *scripted) Name() string                    { return "scripted" }
func (s *scripted) Priority() int                   { return 0 }
func (s *scripted) IsMock() bool                    { return false }
func (s *scripted) Available(context.Context) error { return nil }
func (s *scripted) Close() error                    { return nil }

func (s *scripted) last() Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[len(s.prompts)-1]
}
