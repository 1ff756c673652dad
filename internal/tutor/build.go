package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/analytics"
	"github.com/fyrsmithlabs/tutord/internal/config"
	"github.com/fyrsmithlabs/tutord/internal/embeddings"
	"github.com/fyrsmithlabs/tutord/internal/generation"
	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/logging"
	"github.com/fyrsmithlabs/tutord/internal/manifest"
	"github.com/fyrsmithlabs/tutord/internal/session"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// Build resolves both provider chains and opens every store named by cfg.
// meter may be nil. On error, whatever was already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, meter metric.Meter) (_ *Service, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var opened []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
	}()

	manifestPath, err := config.ExpandPath(cfg.Manifest.Path)
	if err != nil {
		return nil, err
	}
	store, err := manifest.Open(manifestPath)
	if err != nil {
		return nil, err
	}
	opened = append(opened, store)

	chromemPath, err := config.ExpandPath(cfg.VectorStore.Chromem.Path)
	if err != nil {
		return nil, err
	}
	q := cfg.VectorStore.Qdrant
	index, err := vectorstore.New(ctx, vectorstore.Options{
		Provider: cfg.VectorStore.Provider,
		Chromem:  vectorstore.ChromemConfig{Path: chromemPath, Compress: cfg.VectorStore.Chromem.Compress},
		Qdrant: vectorstore.QdrantConfig{
			Host:         q.Host,
			Port:         q.Port,
			UseTLS:       q.UseTLS,
			APIKey:       q.APIKey.Value(),
			MaxRetries:   q.MaxRetries,
			RetryBackoff: q.RetryBackoff.Duration(),
		},
		Registry: store,
		Metrics:  vectorstore.NewMetrics(meter, logger),
	}, logger.Named("vectorstore"))
	if err != nil {
		return nil, err
	}
	opened = append(opened, index)

	e := cfg.Embeddings
	embedder, embedReport, err := embeddings.Resolve(ctx, embeddings.Options{
		Chain:     e.Chain,
		Dimension: e.Dimension,
		TEI: embeddings.TEIConfig{
			BaseURL: e.TEI.BaseURL,
			Model:   e.TEI.Model,
			APIKey:  e.TEI.APIKey.Value(),
			Timeout: e.TEI.Timeout.Duration(),
		},
		FastEmbed: embeddings.FastEmbedConfig{Model: e.FastEmbed.Model, CacheDir: e.FastEmbed.CacheDir},
		Ollama:    embeddings.OllamaConfig{BaseURL: e.Ollama.BaseURL, Model: e.Ollama.Model},
		Gemini:    embeddings.GeminiConfig{APIKey: e.Gemini.APIKey.Value(), Model: e.Gemini.Model},
		Metrics:   embeddings.NewMetrics(meter, logger),
	}, logger.Named("embeddings"))
	if err != nil {
		return nil, err
	}
	opened = append(opened, embedder)

	g := cfg.Generation
	sampling := generation.Sampling{Temperature: g.Temperature, MaxTokens: g.MaxTokens}
	rate := generation.RateLimit{Limit: g.RateLimit, Burst: g.RateBurst}
	gen, genReport, err := generation.Resolve(ctx, generation.Options{
		Chain: g.Chain,
		Gemini: generation.GeminiConfig{
			APIKey: g.Gemini.APIKey.Value(), Model: g.Gemini.Model, Sampling: sampling, Rate: rate,
		},
		OpenAI: generation.OpenAIConfig{
			APIKey: g.OpenAI.APIKey.Value(), Model: g.OpenAI.Model, BaseURL: g.OpenAI.BaseURL, Sampling: sampling, Rate: rate,
		},
		Ollama: generation.OllamaConfig{BaseURL: g.Ollama.BaseURL, Model: g.Ollama.Model, Sampling: sampling},
	}, logger.Named("generation"))
	if err != nil {
		return nil, err
	}
	engine := generation.NewEngine(gen, generation.EngineConfig{
		RequestTimeout:     g.RequestTimeout.Duration(),
		ReformulateTimeout: g.ReformulateTimeout.Duration(),
	}, logger.Named("generation"), generation.NewMetrics(meter, logger))
	opened = append(opened, engine)

	sessions, err := openSessions(ctx, cfg.Session, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := sessions.(io.Closer); ok {
		opened = append(opened, c)
	}

	notifier, err := analytics.New(ctx, analytics.Config{
		Provider: cfg.Analytics.Provider,
		NATS:     analytics.NATSConfig{URL: cfg.Analytics.NATS.URL, Subject: cfg.Analytics.NATS.Subject},
		Kafka:    analytics.KafkaConfig{Brokers: cfg.Analytics.Kafka.Brokers, Topic: cfg.Analytics.Kafka.Topic},
	}, logger)
	if err != nil {
		return nil, err
	}
	opened = append(opened, notifier)

	in := cfg.Ingest
	urls := ingest.NewURLConverter(ingest.URLConfig{
		Timeout:   in.FetchTimeout.Duration(),
		MaxBytes:  in.MaxDocumentBytes,
		UserAgent: in.UserAgent,
	})
	chunker, err := ingest.NewChunker(ingest.ChunkerConfig{
		Headers:      in.Headers,
		ChunkSize:    in.ChunkSize,
		ChunkOverlap: in.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	pipeline := ingest.NewPipeline(ingest.NewRegistry(urls), urls, chunker, embedder, index, store,
		ingest.PipelineConfig{BatchSize: in.EmbedBatchSize, Concurrency: in.EmbedConcurrency},
		logger.Named("ingest"))

	svc, err := New(Options{
		DefaultNamespace: cfg.VectorStore.DefaultNamespace,
		TopK:             cfg.Tutor.TopK,
		Confidence:       cfg.Tutor.Confidence,
		AnalyticsTimeout: cfg.Analytics.Timeout.Duration(),
		SyllabusLimit:    in.SyllabusLimit,
	}, Deps{
		Embedder:        embedder,
		EmbeddingReport: embedReport,
		Engine:          engine,
		GeneratorReport: genReport,
		Index:           index,
		Pipeline:        pipeline,
		Manifest:        store,
		Sessions:        sessions,
		Notifier:        notifier,
		Logger:          logger,
		Meter:           meter,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("tutor service ready",
		zap.String("embeddings", embedder.Name()),
		zap.Bool("embeddings_mock", embedder.IsMock()),
		zap.String("generator", engine.Name()),
		zap.Bool("generator_mock", engine.IsMock()),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("analytics", cfg.Analytics.Provider),
		logging.Secret("gemini_api_key", cfg.Generation.Gemini.APIKey),
		logging.Secret("openai_api_key", cfg.Generation.OpenAI.APIKey))
	return svc, nil
}

func openSessions(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (session.Store, error) {
	bounds := session.Bounds{MaxTurns: cfg.MaxTurns, MaxTokens: cfg.MaxTokens}
	switch cfg.Backend {
	case "", "memory":
		return session.NewMemoryStore(bounds), nil
	case "redis":
		return session.NewRedisStore(ctx, session.RedisConfig{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TTL.Duration(),
		}, bounds, logger.Named("session"))
	default:
		return nil, errors.New("unsupported session backend " + cfg.Backend)
	}
}
