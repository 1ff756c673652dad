package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the tutord config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "tutord")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"tei", "fastembed", "ollama", "gemini", "mock"}, cfg.Embeddings.Chain)
	assert.Equal(t, []string{"gemini", "openai", "ollama", "mock"}, cfg.Generation.Chain)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "japanese_grammar", cfg.VectorStore.DefaultNamespace)
	assert.Equal(t, 3, cfg.Tutor.TopK)
	assert.InDelta(t, 0.85, cfg.Tutor.Confidence, 1e-9)
	assert.Equal(t, 512, cfg.Generation.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Generation.RequestTimeout.Duration())
	assert.Equal(t, []string{"###", "####"}, cfg.Ingest.Headers)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Generation.Gemini.Model)
}

func TestLoadWithFile_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
embeddings:
  chain: [tei, mock]
  tei:
    base_url: http://tei.internal:8080
generation:
  request_timeout: 5s
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
session:
  max_turns: 8
tutor:
  top_k: 5
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"tei", "mock"}, cfg.Embeddings.Chain)
	assert.Equal(t, "http://tei.internal:8080", cfg.Embeddings.TEI.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Generation.RequestTimeout.Duration())
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, 8, cfg.Session.MaxTurns)
	assert.Equal(t, 5, cfg.Tutor.TopK)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "tutor:\n  top_k: 5\n")

	t.Setenv("TUTORD_TUTOR_TOP_K", "7")
	t.Setenv("TUTORD_SESSION_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("TUTORD_GENERATION_CHAIN", "openai,mock")
	t.Setenv("TUTORD_EMBEDDINGS_CHAIN", "tei, mock")
	t.Setenv("TUTORD_INGEST_HEADERS", "##,###")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Tutor.TopK)
	assert.Equal(t, "redis://cache:6379/2", cfg.Session.Redis.URL)
	assert.Equal(t, []string{"openai", "mock"}, cfg.Generation.Chain)
	assert.Equal(t, []string{"tei", "mock"}, cfg.Embeddings.Chain)
	assert.Equal(t, []string{"##", "###"}, cfg.Ingest.Headers)
}

func TestLoadWithFile_KafkaBrokersFromEnvironment(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("TUTORD_ANALYTICS_PROVIDER", "kafka")
	t.Setenv("TUTORD_ANALYTICS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Analytics.Kafka.Brokers)
}

func TestEnvValue(t *testing.T) {
	tests := []struct {
		name, value string
		wantKey     string
		want        any
	}{
		{"TUTORD_TUTOR_TOP_K", "4", "tutor.top_k", "4"},
		{"TUTORD_EMBEDDINGS_CHAIN", "tei,mock", "embeddings.chain", []string{"tei", "mock"}},
		{"TUTORD_GENERATION_CHAIN", " gemini , ,mock ", "generation.chain", []string{"gemini", "mock"}},
		{"TUTORD_ANALYTICS_KAFKA_BROKERS", "k:9092", "analytics.kafka.brokers", []string{"k:9092"}},
		{"TUTORD_GENERATION_OPENAI_MODEL", "gpt-4o,mini", "generation.openai.model", "gpt-4o,mini"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, got := envValue(tt.name, tt.value)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListKeys(t *testing.T) {
	for _, k := range []string{"embeddings.chain", "generation.chain", "ingest.headers", "analytics.kafka.brokers"} {
		assert.Contains(t, listKeys, k)
	}
	assert.NotContains(t, listKeys, "tutor.top_k")
}

func TestLoadWithFile_WellKnownAPIKeys(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "g-key", cfg.Generation.Gemini.APIKey.Value())
	assert.Equal(t, "g-key", cfg.Embeddings.Gemini.APIKey.Value())
	assert.Equal(t, "o-key", cfg.Generation.OpenAI.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Generation.OpenAI.APIKey.String())
}

func TestLoadWithFile_Rejections(t *testing.T) {
	t.Run("outside allowed directories", func(t *testing.T) {
		setupTestHome(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tutor:\n  top_k: 2\n"), 0600))

		_, err := LoadWithFile(path)
		assert.Error(t, err)
	})

	t.Run("world readable", func(t *testing.T) {
		dir := setupTestHome(t)
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tutor:\n  top_k: 2\n"), 0644))
		require.NoError(t, os.Chmod(path, 0644))

		_, err := LoadWithFile(path)
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "vectorstore:\n  provider: pinecone\n")

		_, err := LoadWithFile(path)
		assert.ErrorContains(t, err, "vectorstore.provider")
	})

	t.Run("path traversal", func(t *testing.T) {
		dir := setupTestHome(t)
		_, err := LoadWithFile(filepath.Join(dir, "..", "..", "..", "etc", "passwd"))
		assert.Error(t, err)
	})
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TUTORD_TUTOR_TOP_K", "tutor.top_k"},
		{"TUTORD_EMBEDDINGS_TEI_BASE_URL", "embeddings.tei.base_url"},
		{"TUTORD_EMBEDDINGS_CHAIN", "embeddings.chain"},
		{"TUTORD_GENERATION_OPENAI_API_KEY", "generation.openai.api_key"},
		{"TUTORD_ANALYTICS_KAFKA_BROKERS", "analytics.kafka.brokers"},
		{"TUTORD_LOGGING", "logging"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty embeddings chain", func(c *Config) { c.Embeddings.Chain = nil }, "embeddings.chain"},
		{"bad namespace", func(c *Config) { c.VectorStore.DefaultNamespace = "Bad-Name" }, "default_namespace"},
		{"overlap too large", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, "chunk_overlap"},
		{"kafka without brokers", func(c *Config) { c.Analytics.Provider = "kafka" }, "brokers"},
		{"confidence out of range", func(c *Config) { c.Tutor.Confidence = 1.5 }, "confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSecret(t *testing.T) {
	s := Secret("sk-123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-123", s.Value())
	assert.True(t, s.IsSet())

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())

	t.Setenv("TUTORD_TEST_SECRET", "from-env")
	assert.Equal(t, "from-env", empty.OrEnv("TUTORD_UNSET_SECRET", "TUTORD_TEST_SECRET").Value())
	assert.Equal(t, "sk-123", s.OrEnv("TUTORD_TEST_SECRET").Value())
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/learner")

	got, err := ExpandPath("~/.config/tutord/vectorstore")
	require.NoError(t, err)
	assert.Equal(t, "/home/learner/.config/tutord/vectorstore", got)

	got, err = ExpandPath("/var/lib/tutord")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tutord", got)
}
