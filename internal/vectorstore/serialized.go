package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Serialized wraps an Index with the guarantees callers rely on:
//   - at most one writer per namespace (Upsert, Replace, Delete and Drop
//     share a lock; Query and Count never take it)
//   - every vector written to a namespace has the dimension recorded for it
//   - Query degrades to an empty result instead of failing
type Serialized struct {
	inner   Index
	dims    DimensionRegistry
	logger  *zap.Logger
	metrics *Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// SerializedOption configures a Serialized index.
type SerializedOption func(*Serialized)

// WithDimensionRegistry records namespace dimensions in r. Without it the
// dimensions live in process memory.
func WithDimensionRegistry(r DimensionRegistry) SerializedOption {
	return func(s *Serialized) { s.dims = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SerializedOption {
	return func(s *Serialized) { s.logger = l }
}

// WithMetrics records operation metrics.
func WithMetrics(m *Metrics) SerializedOption {
	return func(s *Serialized) { s.metrics = m }
}

// NewSerialized wraps inner.
func NewSerialized(inner Index, opts ...SerializedOption) *Serialized {
	s := &Serialized{inner: inner, locks: make(map[string]*sync.Mutex)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.dims == nil {
		s.dims = newMemoryRegistry()
	}
	return s
}

func (s *Serialized) writer(namespace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[namespace]
	if !ok {
		l = &sync.Mutex{}
		s.locks[namespace] = l
	}
	return l
}

// Upsert writes entries under the namespace writer lock.
func (s *Serialized) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	return s.Replace(ctx, namespace, entries, nil)
}

// Replace upserts entries and then deletes the stale ids, both under one
// hold of the namespace writer lock, so no other writer observes a document
// between its two revisions. An id present in entries is never deleted.
func (s *Serialized) Replace(ctx context.Context, namespace string, entries []Entry, stale []string) (err error) {
	start, op := time.Now(), "upsert"
	if len(entries) == 0 {
		op = "delete"
	}
	defer func() { s.metrics.record(ctx, op, namespace, start, err) }()

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	stale = withoutIDs(stale, entries)
	if len(entries) == 0 && len(stale) == 0 {
		return nil
	}

	l := s.writer(namespace)
	l.Lock()
	defer l.Unlock()

	if len(entries) > 0 {
		if err := s.upsertLocked(ctx, namespace, entries); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		if err := s.inner.Delete(ctx, namespace, stale); err != nil {
			return wrapUnavailable(err)
		}
		s.logger.Debug("stale entries deleted", zap.String("namespace", namespace), zap.Int("entries", len(stale)))
	}
	return nil
}

// Delete removes entries by id under the namespace writer lock.
func (s *Serialized) Delete(ctx context.Context, namespace string, ids []string) error {
	return s.Replace(ctx, namespace, nil, ids)
}

func (s *Serialized) upsertLocked(ctx context.Context, namespace string, entries []Entry) error {
	dim, err := vectorDimension(entries)
	if err != nil {
		return err
	}
	recorded, ok, err := s.dims.Dimension(ctx, namespace)
	if err != nil {
		return fmt.Errorf("%w: reading dimension of %s: %v", ErrIndexUnavailable, namespace, err)
	}
	if ok && recorded != dim {
		return fmt.Errorf("%w: namespace %s holds %d-dimensional vectors, got %d; drop and reindex to switch providers",
			ErrDimensionMismatch, namespace, recorded, dim)
	}

	if err := s.inner.Upsert(ctx, namespace, entries); err != nil {
		s.logger.Error("upsert failed",
			zap.String("namespace", namespace),
			zap.Int("entries", len(entries)),
			zap.Error(err))
		return wrapUnavailable(err)
	}

	if !ok {
		if err := s.dims.SetDimension(ctx, namespace, dim); err != nil {
			return fmt.Errorf("%w: recording dimension of %s: %v", ErrIndexUnavailable, namespace, err)
		}
	}
	s.logger.Debug("entries upserted", zap.String("namespace", namespace), zap.Int("entries", len(entries)))
	return nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, ErrIndexUnavailable) || errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrInvalidNamespace) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
}

func withoutIDs(ids []string, keep []Entry) []string {
	if len(ids) == 0 || len(keep) == 0 {
		return ids
	}
	kept := make(map[string]struct{}, len(keep))
	for _, e := range keep {
		kept[e.ID] = struct{}{}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := kept[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Query returns the top k results. Backend failures, invalid namespaces and
// vectors of the wrong dimension yield an empty result and a log line.
func (s *Serialized) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Result, error) {
	start := time.Now()
	if k <= 0 || len(vector) == 0 {
		return []Result{}, nil
	}
	if err := ValidateNamespace(namespace); err != nil {
		s.logger.Warn("query on invalid namespace", zap.String("namespace", namespace))
		return []Result{}, nil
	}

	if recorded, ok, err := s.dims.Dimension(ctx, namespace); err == nil && ok && recorded != len(vector) {
		s.logger.Warn("query vector dimension mismatch",
			zap.String("namespace", namespace),
			zap.Int("namespace_dimension", recorded),
			zap.Int("query_dimension", len(vector)))
		s.metrics.degradedQuery(ctx, namespace)
		return []Result{}, nil
	}

	results, err := s.inner.Query(ctx, namespace, vector, k)
	s.metrics.record(ctx, "query", namespace, start, err)
	if err != nil {
		s.logger.Warn("query failed, returning empty result", zap.String("namespace", namespace), zap.Error(err))
		s.metrics.degradedQuery(ctx, namespace)
		return []Result{}, nil
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Exists reports whether namespace exists in the backend.
func (s *Serialized) Exists(ctx context.Context, namespace string) (bool, error) {
	return s.inner.Exists(ctx, namespace)
}

// Count returns the number of entries in namespace.
func (s *Serialized) Count(ctx context.Context, namespace string) (int, error) {
	return s.inner.Count(ctx, namespace)
}

// Drop deletes namespace and forgets its dimension.
func (s *Serialized) Drop(ctx context.Context, namespace string) (err error) {
	start := time.Now()
	defer func() { s.metrics.record(ctx, "drop", namespace, start, err) }()

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	l := s.writer(namespace)
	l.Lock()
	defer l.Unlock()

	if err := s.inner.Drop(ctx, namespace); err != nil {
		return err
	}
	if err := s.dims.ForgetDimension(ctx, namespace); err != nil {
		return fmt.Errorf("forgetting dimension of %s: %w", namespace, err)
	}
	return nil
}

// Quarantined lists namespaces the backend set aside as unreadable when it
// opened. Backends without quarantine report none.
func (s *Serialized) Quarantined() []string {
	if q, ok := s.inner.(interface{ Quarantined() []string }); ok {
		return q.Quarantined()
	}
	return nil
}

// Close closes the wrapped index.
func (s *Serialized) Close() error {
	return s.inner.Close()
}

type memoryRegistry struct {
	mu   sync.RWMutex
	dims map[string]int
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{dims: make(map[string]int)}
}

func (r *memoryRegistry) Dimension(_ context.Context, namespace string) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dims[namespace]
	return d, ok, nil
}

func (r *memoryRegistry) SetDimension(_ context.Context, namespace string, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dims[namespace] = dim
	return nil
}

func (r *memoryRegistry) ForgetDimension(_ context.Context, namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dims, namespace)
	return nil
}
