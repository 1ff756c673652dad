// Package session holds bounded per-session conversation memory.
//
// A Store keeps an ordered list of turns per session id and evicts the
// oldest turns once either the turn count or the approximate token budget
// is exceeded. Sequencer orders writes so that concurrent requests of one
// session reach the store in the order they were issued.
package session

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

// ErrEmptySessionID is returned for operations without a session id.
var ErrEmptySessionID = errors.New("session id cannot be empty")

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Store is per-session conversation memory.
type Store interface {
	// Append adds turns in order, then evicts oldest turns past the bounds.
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	// Snapshot returns an ordered copy of the session's turns.
	Snapshot(ctx context.Context, sessionID string) ([]Turn, error)
	// Clear forgets the session.
	Clear(ctx context.Context, sessionID string) error
}

// Bounds limits one session's memory. Zero fields mean no limit.
type Bounds struct {
	MaxTurns  int
	MaxTokens int
}

// DefaultBounds are 20 turns and about 2000 tokens.
var DefaultBounds = Bounds{MaxTurns: 20, MaxTokens: 2000}

// EstimateTokens approximates the token count of text: four ASCII bytes per
// token, one token per non-ASCII rune. Japanese text tokenizes close to one
// token per character.
func EstimateTokens(text string) int {
	var ascii, wide int
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			wide++
		}
	}
	return (ascii+3)/4 + wide
}

// evictions returns how many leading turns must go for turns to fit b. The
// newest turn is always kept.
func (b Bounds) evictions(turns []Turn) int {
	if len(turns) <= 1 {
		return 0
	}
	drop := 0
	if b.MaxTurns > 0 && len(turns) > b.MaxTurns {
		drop = len(turns) - b.MaxTurns
	}
	if b.MaxTokens > 0 {
		total := 0
		for _, t := range turns[drop:] {
			total += EstimateTokens(t.Text)
		}
		for total > b.MaxTokens && drop < len(turns)-1 {
			total -= EstimateTokens(turns[drop].Text)
			drop++
		}
	}
	return drop
}

func stamp(turns []Turn, now time.Time) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	for i := range out {
		if out[i].Time.IsZero() {
			out[i].Time = now
		}
	}
	return out
}
