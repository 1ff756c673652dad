package session

import (
	"context"
	"sync"
)

// Sequencer orders writes per session. A ticket reserved earlier is always
// applied (or aborted) before a ticket reserved later for the same session;
// different sessions never wait on each other.
type Sequencer struct {
	store Store

	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewSequencer wraps store.
func NewSequencer(store Store) *Sequencer {
	return &Sequencer{store: store, tails: make(map[string]chan struct{})}
}

// Store returns the wrapped store.
func (s *Sequencer) Store() Store { return s.store }

// Ticket is one reserved write slot. Exactly one of Commit or Abort takes
// effect; later calls are no-ops. A nil Ticket ignores both.
type Ticket struct {
	seq       *Sequencer
	sessionID string
	prev      <-chan struct{} // nil for the first ticket of a session
	done      chan struct{}
	once      sync.Once
}

// Reserve takes the next slot of sessionID.
func (s *Sequencer) Reserve(sessionID string) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Ticket{seq: s, sessionID: sessionID, done: make(chan struct{})}
	if prev, ok := s.tails[sessionID]; ok {
		t.prev = prev
	}
	s.tails[sessionID] = t.done
	return t
}

// Commit waits for every earlier ticket of the session, then appends turns.
// If ctx ends first nothing is written and the slot is released once the
// earlier tickets finish.
func (t *Ticket) Commit(ctx context.Context, turns ...Turn) error {
	if t == nil {
		return nil
	}
	var err error
	applied := false
	t.once.Do(func() {
		applied = true
		if t.prev != nil {
			select {
			case <-t.prev:
			case <-ctx.Done():
				err = ctx.Err()
				go t.releaseAfterPrev()
				return
			}
		}
		defer t.release()
		err = t.seq.store.Append(ctx, t.sessionID, turns...)
	})
	if !applied {
		return nil
	}
	return err
}

// Abort releases the slot without writing. It never blocks.
func (t *Ticket) Abort() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		go t.releaseAfterPrev()
	})
}

func (t *Ticket) releaseAfterPrev() {
	if t.prev != nil {
		<-t.prev
	}
	t.release()
}

func (t *Ticket) release() {
	close(t.done)
	t.seq.mu.Lock()
	if t.seq.tails[t.sessionID] == t.done {
		delete(t.seq.tails, t.sessionID)
	}
	t.seq.mu.Unlock()
}
