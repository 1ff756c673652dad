package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	bounds   Bounds
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(bounds Bounds) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
		bounds:   bounds,
	}
}

// Append implements Store. Turns without a time are stamped now.
func (m *MemoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(turns) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	buf := append(m.sessions[sessionID], stamp(turns, time.Now())...)
	if drop := m.bounds.evictions(buf); drop > 0 {
		buf = append([]Turn(nil), buf[drop:]...)
	}
	m.sessions[sessionID] = buf
	return nil
}

// Snapshot implements Store. An unknown session is empty.
func (m *MemoryStore) Snapshot(_ context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf := m.sessions[sessionID]
	out := make([]Turn, len(buf))
	copy(out, buf)
	return out, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// ActiveSessions returns the number of sessions holding turns.
func (m *MemoryStore) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
