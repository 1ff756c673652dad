package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/tutord/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// peakIndex records the peak number of concurrent writers per namespace.
type peakIndex struct {
	Index
	mu       sync.Mutex
	inflight map[string]int
	peak     map[string]int
}

func newPeakIndex(inner Index) *peakIndex {
	return &peakIndex{Index: inner, inflight: map[string]int{}, peak: map[string]int{}}
}

func (p *peakIndex) Upsert(ctx context.Context, ns string, entries []Entry) error {
	p.mu.Lock()
	p.inflight[ns]++
	if p.inflight[ns] > p.peak[ns] {
		p.peak[ns] = p.inflight[ns]
	}
	p.mu.Unlock()

	time.Sleep(time.Millisecond)
	err := p.Index.Upsert(ctx, ns, entries)

	p.mu.Lock()
	p.inflight[ns]--
	p.mu.Unlock()
	return err
}

type brokenIndex struct {
	Index
	queries atomic.Int32
}

func (b *brokenIndex) Upsert(context.Context, string, []Entry) error {
	return errors.New("disk full")
}

func (b *brokenIndex) Query(context.Context, string, []float32, int) ([]Result, error) {
	b.queries.Add(1)
	return nil, errors.New("corrupt collection")
}

func TestSerialized_ConcurrentUpsertsNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	mem, err := NewChromemIndex(ChromemConfig{}, nil)
	require.NoError(t, err)
	peaks := newPeakIndex(mem)
	idx := NewSerialized(peaks, WithLogger(zaptest.NewLogger(t)))

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			entries := make([]Entry, 0, perWriter+1)
			for i := 0; i < perWriter; i++ {
				entries = append(entries, Entry{
					ID:      fmt.Sprintf("w%d:%d", w, i),
					Vector:  []float32{float32(w + 1), float32(i + 1), 1},
					Content: "chunk",
				})
			}
			// Every writer also touches one shared id.
			entries = append(entries, Entry{ID: "shared:0", Vector: []float32{1, 1, 1}, Content: "shared"})
			assert.NoError(t, idx.Upsert(ctx, DefaultNamespace, entries))
		}(w)
	}
	wg.Wait()

	n, err := idx.Count(ctx, DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter+1, n)
	assert.Equal(t, 1, peaks.peak[DefaultNamespace])
}

func TestSerialized_DifferentNamespacesInParallel(t *testing.T) {
	ctx := context.Background()
	mem, err := NewChromemIndex(ChromemConfig{}, nil)
	require.NoError(t, err)
	idx := NewSerialized(mem)

	var wg sync.WaitGroup
	for _, ns := range []string{"course_1", "course_2", "course_3"} {
		wg.Add(1)
		go func(ns string) {
			defer wg.Done()
			assert.NoError(t, idx.Upsert(ctx, ns, sampleEntries()))
		}(ns)
	}
	wg.Wait()

	for _, ns := range []string{"course_1", "course_2", "course_3"} {
		n, err := idx.Count(ctx, ns)
		require.NoError(t, err)
		assert.Equal(t, 3, n, ns)
	}
}

func TestSerialized_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	mem, err := NewChromemIndex(ChromemConfig{}, nil)
	require.NoError(t, err)
	idx := NewSerialized(mem)

	require.NoError(t, idx.Upsert(ctx, DefaultNamespace, sampleEntries()))

	err = idx.Upsert(ctx, DefaultNamespace, []Entry{{ID: "x:0", Vector: []float32{1, 2, 3, 4}, Content: "x"}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// A query with the wrong dimension degrades to empty.
	results, err := idx.Query(ctx, DefaultNamespace, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Dropping forgets the dimension, so a new provider can reindex.
	require.NoError(t, idx.Drop(ctx, DefaultNamespace))
	assert.NoError(t, idx.Upsert(ctx, DefaultNamespace, []Entry{{ID: "x:0", Vector: []float32{1, 2, 3, 4}, Content: "x"}}))
}

func TestSerialized_BrokenBackend(t *testing.T) {
	ctx := context.Background()
	broken := &brokenIndex{}
	tt := telemetry.NewTestTelemetry()
	idx := NewSerialized(broken, WithMetrics(NewMetrics(tt.Meter("test"), nil)))

	err := idx.Upsert(ctx, DefaultNamespace, sampleEntries())
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	results, err := idx.Query(ctx, DefaultNamespace, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(1), broken.queries.Load())

	assert.Equal(t, int64(1), tt.Sum(t, "tutord.vectorstore.degraded_queries_total"))
	assert.Equal(t, int64(2), tt.Sum(t, "tutord.vectorstore.errors_total"))
}

func TestSerialized_QueryShortCircuits(t *testing.T) {
	broken := &brokenIndex{}
	idx := NewSerialized(broken)
	ctx := context.Background()

	for _, tc := range []struct {
		ns  string
		vec []float32
		k   int
	}{
		{"Invalid Name", []float32{1}, 3},
		{DefaultNamespace, nil, 3},
		{DefaultNamespace, []float32{1}, 0},
	} {
		results, err := idx.Query(ctx, tc.ns, tc.vec, tc.k)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.Equal(t, int32(0), broken.queries.Load())
}

func TestNew_Providers(t *testing.T) {
	idx, err := New(context.Background(), Options{Chromem: ChromemConfig{Path: t.TempDir()}}, nil)
	require.NoError(t, err)
	assert.NoError(t, idx.Close())

	_, err = New(context.Background(), Options{Provider: "pinecone"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSerialized_ReplaceDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	mem, err := NewChromemIndex(ChromemConfig{}, nil)
	require.NoError(t, err)
	idx := NewSerialized(mem)

	require.NoError(t, idx.Upsert(ctx, DefaultNamespace, sampleEntries()))

	// A shorter revision keeps doc:0 and names doc:0 as stale too; the
	// rewritten id must survive.
	revision := []Entry{{ID: "doc:0", Vector: []float32{0, 0, 1}, Content: "revised"}}
	require.NoError(t, idx.Replace(ctx, DefaultNamespace, revision, []string{"doc:0", "doc:1", "doc:2"}))

	n, err := idx.Count(ctx, DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := idx.Query(ctx, DefaultNamespace, []float32{0, 0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "revised", results[0].Content)
}

func TestSerialized_DeleteMissing(t *testing.T) {
	ctx := context.Background()
	mem, err := NewChromemIndex(ChromemConfig{}, nil)
	require.NoError(t, err)
	idx := NewSerialized(mem)

	assert.NoError(t, idx.Delete(ctx, "course_9", []string{"doc:0"}), "missing namespace")
	require.NoError(t, idx.Upsert(ctx, DefaultNamespace, sampleEntries()))
	assert.NoError(t, idx.Delete(ctx, DefaultNamespace, []string{"other:7"}), "unknown id")
	assert.ErrorIs(t, idx.Delete(ctx, "Bad Name", []string{"doc:0"}), ErrInvalidNamespace)

	n, err := idx.Count(ctx, DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSerialized_Quarantined(t *testing.T) {
	mem, err := NewChromemIndex(ChromemConfig{}, nil)
	require.NoError(t, err)
	mem.quarantined = []string{"6f1ed002"}

	assert.Equal(t, []string{"6f1ed002"}, NewSerialized(mem).Quarantined())
	assert.Nil(t, NewSerialized(&brokenIndex{}).Quarantined())
}
