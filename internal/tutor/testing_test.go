package tutor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tutord/internal/analytics"
	"github.com/fyrsmithlabs/tutord/internal/embeddings"
	"github.com/fyrsmithlabs/tutord/internal/generation"
	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/manifest"
	"github.com/fyrsmithlabs/tutord/internal/session"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// keywordEmbedder maps texts onto topic axes so that similarity follows
// shared grammar topics.
type keywordEmbedder struct{}

var keywordAxes = [][]string{
	{"particle", "助詞", "は", "が"},
	{"conjugat", "食べ", "活用", "verb"},
	{"counter", "助数詞"},
}

func (keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(keywordAxes)+1)
	for i, words := range keywordAxes {
		for _, w := range words {
			if strings.Contains(lower, w) {
				v[i]++
			}
		}
	}
	v[len(keywordAxes)] = 0.1
	return v
}

func (e keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (keywordEmbedder) Dimension() int                  { return len(keywordAxes) + 1 }
func (keywordEmbedder) Name() string                    { return "keyword" }
func (keywordEmbedder) Priority() int                   { return 0 }
func (keywordEmbedder) IsMock() bool                    { return false }
func (keywordEmbedder) Available(context.Context) error { return nil }
func (keywordEmbedder) Close() error                    { return nil }

// scriptedGenerator is a real-looking Generator with canned behavior.
type scriptedGenerator struct {
	mu      sync.Mutex
	reply   func(ctx context.Context, p generation.Prompt) (string, error)
	prompts []generation.Prompt
}

func (g *scriptedGenerator) Complete(ctx context.Context, p generation.Prompt) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	return g.reply(ctx, p)
}

func (g *scriptedGenerator) Name() string                    { return "scripted" }
func (g *scriptedGenerator) Priority() int                   { return 0 }
func (g *scriptedGenerator) IsMock() bool                    { return false }
func (g *scriptedGenerator) Available(context.Context) error { return nil }
func (g *scriptedGenerator) Close() error                    { return nil }

// tutorReply reformulates by folding the previous user turn into the
// query and answers by quoting the first context chunk.
func tutorReply(_ context.Context, p generation.Prompt) (string, error) {
	if p.Kind == generation.KindReformulate {
		if strings.Contains(p.User, "conjugate") {
			return "How do I conjugate the verb " + p.Query, nil
		}
		return p.Query, nil
	}
	if len(p.Context) == 0 {
		return generation.NoAnswerMarker, nil
	}
	return "According to the lesson: " + p.Context[0], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingNotifier) UpdateUserAnalytics(_ context.Context, userID, messageType string, ev analytics.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.UserID, ev.MessageType = userID, messageType
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func (r *recordingNotifier) all() []analytics.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]analytics.Event(nil), r.events...)
}

type fixture struct {
	svc      *Service
	index    vectorstore.Index
	sessions *session.MemoryStore
	manifest *manifest.Store
	gen      *scriptedGenerator
	notifier *recordingNotifier
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	embedder  embeddings.Provider
	generator generation.Generator
	engine    generation.EngineConfig
}

func withMockChains() fixtureOption {
	return func(c *fixtureConfig) {
		c.embedder = embeddings.NewMockProvider(16, 0)
		c.generator = generation.NewMockGenerator(0)
	}
}

func withGenerator(g generation.Generator, cfg generation.EngineConfig) fixtureOption {
	return func(c *fixtureConfig) {
		c.generator = g
		c.engine = cfg
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	gen := &scriptedGenerator{reply: tutorReply}
	cfg := fixtureConfig{embedder: keywordEmbedder{}, generator: gen}
	for _, o := range opts {
		o(&cfg)
	}

	store, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)

	chromem, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	index := vectorstore.NewSerialized(chromem, vectorstore.WithDimensionRegistry(store))

	chunker, err := ingest.NewChunker(ingest.ChunkerConfig{})
	require.NoError(t, err)
	pipeline := ingest.NewPipeline(ingest.NewRegistry(nil), nil, chunker, cfg.embedder, index, store,
		ingest.PipelineConfig{}, nil)

	sessions := session.NewMemoryStore(session.DefaultBounds)
	notifier := &recordingNotifier{}
	svc, err := New(Options{AnalyticsTimeout: time.Second}, Deps{
		Embedder: cfg.embedder,
		Engine:   generation.NewEngine(cfg.generator, cfg.engine, nil, nil),
		Index:    index,
		Pipeline: pipeline,
		Manifest: store,
		Sessions: sessions,
		Notifier: notifier,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return &fixture{svc: svc, index: index, sessions: sessions, manifest: store, gen: gen, notifier: notifier}
}

const grammarLesson = `### Particles
The particle は marks the topic of a sentence. The particle が marks the subject.

### Verb Conjugation
Ichidan verbs such as 食べる conjugate by dropping る: 食べます, 食べない, 食べた.

### Counters
Counters (助数詞) follow numbers: 三本 (さんぼん), 二枚 (にまい).
`

func (f *fixture) ingestLesson(t *testing.T, metadata map[string]string) *DocumentResult {
	t.Helper()
	res := f.svc.ProcessDocument(context.Background(), DocumentRequest{
		Content:      grammarLesson,
		Filename:     "grammar.md",
		DocumentType: "markdown",
		Metadata:     metadata,
	})
	require.Equal(t, DocumentProcessed, res.Status, res.Error)
	return res
}
