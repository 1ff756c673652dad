// Package config provides configuration loading for tutord.
//
// Configuration is read from an optional YAML file and then overridden by
// environment variables (see LoadWithFile). Every section has defaults, so an
// empty environment yields a working offline setup: chromem index, in-memory
// sessions and the mock ends of both provider chains.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Config holds the complete tutord configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Session     SessionConfig     `koanf:"session"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Manifest    ManifestConfig    `koanf:"manifest"`
	Analytics   AnalyticsConfig   `koanf:"analytics"`
	Tutor       TutorConfig       `koanf:"tutor"`
}

// LoggingConfig selects level and encoding. The full zap setup lives in
// internal/logging; this section only carries the operator-facing knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	MetricsEnabled bool     `koanf:"metrics_enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// EmbeddingsConfig configures the embedding fallback chain.
type EmbeddingsConfig struct {
	// Chain lists provider names in priority order.
	Chain     []string        `koanf:"chain"`
	Dimension int             `koanf:"dimension"` // mock vector size
	TEI       TEIConfig       `koanf:"tei"`
	FastEmbed FastEmbedConfig `koanf:"fastembed"`
	Ollama    OllamaConfig    `koanf:"ollama"`
	Gemini    GeminiConfig    `koanf:"gemini"`
}

// TEIConfig points at a HuggingFace Text Embeddings Inference server or the
// hosted inference API.
type TEIConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// FastEmbedConfig configures local ONNX embeddings.
type FastEmbedConfig struct {
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// OllamaConfig points at an Ollama server.
type OllamaConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// GeminiConfig configures Google Generative AI access.
type GeminiConfig struct {
	APIKey Secret `koanf:"api_key"`
	Model  string `koanf:"model"`
}

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey  Secret `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// GenerationConfig configures the generation fallback chain.
type GenerationConfig struct {
	Chain              []string     `koanf:"chain"`
	RequestTimeout     Duration     `koanf:"request_timeout"`
	ReformulateTimeout Duration     `koanf:"reformulate_timeout"`
	Temperature        float64      `koanf:"temperature"`
	MaxTokens          int          `koanf:"max_tokens"`
	RateLimit          float64      `koanf:"rate_limit"` // requests per second, hosted models
	RateBurst          int          `koanf:"rate_burst"`
	Gemini             GeminiConfig `koanf:"gemini"`
	OpenAI             OpenAIConfig `koanf:"openai"`
	Ollama             OllamaConfig `koanf:"ollama"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	Provider         string        `koanf:"provider"` // chromem or qdrant
	DefaultNamespace string        `koanf:"default_namespace"`
	Chromem          ChromemConfig `koanf:"chromem"`
	Qdrant           QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem index.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC index.
type QdrantConfig struct {
	Host         string   `koanf:"host"`
	Port         int      `koanf:"port"`
	UseTLS       bool     `koanf:"use_tls"`
	APIKey       Secret   `koanf:"api_key"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// SessionConfig configures session memory.
type SessionConfig struct {
	Backend   string      `koanf:"backend"` // memory or redis
	MaxTurns  int         `koanf:"max_turns"`
	MaxTokens int         `koanf:"max_tokens"`
	TTL       Duration    `koanf:"ttl"`
	Redis     RedisConfig `koanf:"redis"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	URL       string `koanf:"url"`
	KeyPrefix string `koanf:"key_prefix"`
}

// IngestConfig configures conversion and chunking.
type IngestConfig struct {
	Headers          []string `koanf:"headers"`
	ChunkSize        int      `koanf:"chunk_size"`
	ChunkOverlap     int      `koanf:"chunk_overlap"`
	EmbedBatchSize   int      `koanf:"embed_batch_size"`
	EmbedConcurrency int      `koanf:"embed_concurrency"`
	FetchTimeout     Duration `koanf:"fetch_timeout"`
	MaxDocumentBytes int64    `koanf:"max_document_bytes"`
	SyllabusLimit    int      `koanf:"syllabus_limit"`
	UserAgent        string   `koanf:"user_agent"`
}

// ManifestConfig locates the sqlite ingestion manifest.
type ManifestConfig struct {
	Path string `koanf:"path"`
}

// AnalyticsConfig selects the analytics collaborator.
type AnalyticsConfig struct {
	Provider string      `koanf:"provider"` // noop, log, nats, kafka
	Timeout  Duration    `koanf:"timeout"`
	NATS     NATSConfig  `koanf:"nats"`
	Kafka    KafkaConfig `koanf:"kafka"`
}

// NATSConfig configures the NATS analytics publisher.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// KafkaConfig configures the Kafka analytics publisher.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// TutorConfig holds request-level policy.
type TutorConfig struct {
	TopK int `koanf:"top_k"`
	// Confidence is reported for answers built by the full real pipeline.
	Confidence float64 `koanf:"confidence"`
}

var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Embeddings.Chain) == 0 {
		return errors.New("embeddings.chain must not be empty")
	}
	if len(c.Generation.Chain) == 0 {
		return errors.New("generation.chain must not be empty")
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Generation.RequestTimeout.Duration() <= 0 {
		return errors.New("generation.request_timeout must be positive")
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("generation.max_tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore.provider %q", c.VectorStore.Provider)
	}
	if !namespacePattern.MatchString(c.VectorStore.DefaultNamespace) {
		return fmt.Errorf("invalid vectorstore.default_namespace %q", c.VectorStore.DefaultNamespace)
	}
	if c.VectorStore.Provider == "qdrant" && (c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535) {
		return fmt.Errorf("invalid vectorstore.qdrant.port: %d (must be 1-65535)", c.VectorStore.Qdrant.Port)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session.backend %q", c.Session.Backend)
	}
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session.max_turns must be positive, got %d", c.Session.MaxTurns)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	switch c.Analytics.Provider {
	case "noop", "log", "nats", "kafka":
	default:
		return fmt.Errorf("unsupported analytics.provider %q", c.Analytics.Provider)
	}
	if c.Analytics.Provider == "kafka" && len(c.Analytics.Kafka.Brokers) == 0 {
		return errors.New("analytics.kafka.brokers required when analytics.provider is kafka")
	}
	if c.Tutor.TopK <= 0 {
		return fmt.Errorf("tutor.top_k must be positive, got %d", c.Tutor.TopK)
	}
	if c.Tutor.Confidence < 0 || c.Tutor.Confidence > 1 {
		return fmt.Errorf("tutor.confidence must be within [0,1], got %f", c.Tutor.Confidence)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "tutord"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}

	// Embeddings
	if len(cfg.Embeddings.Chain) == 0 {
		cfg.Embeddings.Chain = []string{"tei", "fastembed", "ollama", "gemini", "mock"}
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384 // multilingual-e5-small
	}
	if cfg.Embeddings.TEI.BaseURL == "" {
		cfg.Embeddings.TEI.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.TEI.Model == "" {
		cfg.Embeddings.TEI.Model = "Mohamed-Gamil/multilingual-e5-small-JapaneseTeacher"
	}
	cfg.Embeddings.TEI.APIKey = cfg.Embeddings.TEI.APIKey.OrEnv("HF_TOKEN", "HUGGINGFACE_API_KEY")
	if cfg.Embeddings.TEI.Timeout == 0 {
		cfg.Embeddings.TEI.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embeddings.FastEmbed.Model == "" {
		cfg.Embeddings.FastEmbed.Model = "BAAI/bge-small-zh-v1.5" // CJK coverage; fastembed ships no multilingual e5
	}
	if cfg.Embeddings.FastEmbed.CacheDir == "" {
		cfg.Embeddings.FastEmbed.CacheDir = "~/.config/tutord/models"
	}
	if cfg.Embeddings.Ollama.BaseURL == "" {
		cfg.Embeddings.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Embeddings.Ollama.Model == "" {
		cfg.Embeddings.Ollama.Model = "jeffh/intfloat-multilingual-e5-small:f16"
	}
	cfg.Embeddings.Gemini.APIKey = cfg.Embeddings.Gemini.APIKey.OrEnv("GOOGLE_API_KEY")
	if cfg.Embeddings.Gemini.Model == "" {
		cfg.Embeddings.Gemini.Model = "text-embedding-004"
	}

	// Generation
	if len(cfg.Generation.Chain) == 0 {
		cfg.Generation.Chain = []string{"gemini", "openai", "ollama", "mock"}
	}
	if cfg.Generation.RequestTimeout == 0 {
		cfg.Generation.RequestTimeout = Duration(30 * time.Second)
	}
	if cfg.Generation.ReformulateTimeout == 0 {
		cfg.Generation.ReformulateTimeout = Duration(15 * time.Second)
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 512
	}
	if cfg.Generation.RateLimit == 0 {
		cfg.Generation.RateLimit = 2
	}
	if cfg.Generation.RateBurst == 0 {
		cfg.Generation.RateBurst = 4
	}
	cfg.Generation.Gemini.APIKey = cfg.Generation.Gemini.APIKey.OrEnv("GOOGLE_API_KEY")
	if cfg.Generation.Gemini.Model == "" {
		cfg.Generation.Gemini.Model = "gemini-2.5-flash-lite"
	}
	cfg.Generation.OpenAI.APIKey = cfg.Generation.OpenAI.APIKey.OrEnv("OPENAI_API_KEY")
	if cfg.Generation.OpenAI.Model == "" {
		cfg.Generation.OpenAI.Model = "gpt-3.5-turbo"
	}
	if cfg.Generation.Ollama.BaseURL == "" {
		cfg.Generation.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Generation.Ollama.Model == "" {
		cfg.Generation.Ollama.Model = "qwen2.5:3b"
	}

	// VectorStore (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.DefaultNamespace == "" {
		cfg.VectorStore.DefaultNamespace = "japanese_grammar"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/tutord/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.MaxRetries == 0 {
		cfg.VectorStore.Qdrant.MaxRetries = 3
	}
	if cfg.VectorStore.Qdrant.RetryBackoff == 0 {
		cfg.VectorStore.Qdrant.RetryBackoff = Duration(200 * time.Millisecond)
	}

	// Session
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = 20
	}
	if cfg.Session.MaxTokens == 0 {
		cfg.Session.MaxTokens = 2000
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = Duration(24 * time.Hour)
	}
	if cfg.Session.Redis.URL == "" {
		cfg.Session.Redis.URL = envOr("REDIS_URL", "redis://localhost:6379")
	}
	if cfg.Session.Redis.KeyPrefix == "" {
		cfg.Session.Redis.KeyPrefix = "tutord:session:"
	}

	// Ingest
	if len(cfg.Ingest.Headers) == 0 {
		cfg.Ingest.Headers = []string{"###", "####"}
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 512
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Ingest.EmbedBatchSize == 0 {
		cfg.Ingest.EmbedBatchSize = 32
	}
	if cfg.Ingest.EmbedConcurrency == 0 {
		cfg.Ingest.EmbedConcurrency = 4
	}
	if cfg.Ingest.FetchTimeout == 0 {
		cfg.Ingest.FetchTimeout = Duration(30 * time.Second)
	}
	if cfg.Ingest.MaxDocumentBytes == 0 {
		cfg.Ingest.MaxDocumentBytes = 10 * 1024 * 1024 // 10MB
	}
	if cfg.Ingest.SyllabusLimit == 0 {
		cfg.Ingest.SyllabusLimit = 40
	}
	if cfg.Ingest.UserAgent == "" {
		cfg.Ingest.UserAgent = "tutord/1.0"
	}

	// Manifest
	if cfg.Manifest.Path == "" {
		cfg.Manifest.Path = "~/.config/tutord/manifest.db"
	}

	// Analytics
	if cfg.Analytics.Provider == "" {
		cfg.Analytics.Provider = "log"
	}
	if cfg.Analytics.Timeout == 0 {
		cfg.Analytics.Timeout = Duration(5 * time.Second)
	}
	if cfg.Analytics.NATS.URL == "" {
		cfg.Analytics.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Analytics.NATS.Subject == "" {
		cfg.Analytics.NATS.Subject = "tutord.analytics"
	}
	if cfg.Analytics.Kafka.Topic == "" {
		cfg.Analytics.Kafka.Topic = "tutord-analytics"
	}

	// Tutor
	if cfg.Tutor.TopK == 0 {
		cfg.Tutor.TopK = 3
	}
	if cfg.Tutor.Confidence == 0 {
		cfg.Tutor.Confidence = 0.85
	}
}
