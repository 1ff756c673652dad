package logging

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/tutord/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config is the resolved logger configuration. Operators set level and
// format through config.LoggingConfig; the rest is fixed by
// NewDefaultConfig and adjusted in code and tests.
type Config struct {
	Level      zapcore.Level
	Format     string // json or console
	Output     OutputConfig
	Sampling   SamplingConfig
	Caller     CallerConfig
	Stacktrace StacktraceConfig
	Fields     map[string]string // attached to every entry
	Redaction  RedactionConfig
}

// OutputConfig selects sinks. The CLI writes answers as JSON on stdout, so
// logs default to stderr.
type OutputConfig struct {
	Stdout, Stderr, OTEL bool
}

// SamplingConfig keeps the first Initial entries per message each Tick, then
// every Thereafter-th. Errors bypass sampling.
type SamplingConfig struct {
	Enabled    bool
	Tick       config.Duration
	Initial    int
	Thereafter int
}

type CallerConfig struct {
	Enabled bool
	Skip    int // extra frames for callers that wrap the *zap.Logger
}

// StacktraceConfig attaches stacks at Level and above.
type StacktraceConfig struct {
	Level zapcore.Level
}

// RedactionConfig masks string fields named in Fields and message or value
// substrings matching Patterns.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns the configuration every tutord command starts
// from: JSON on stderr, sampled, with provider credentials redacted.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stderr: true,
		},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: CallerConfig{
			Enabled: true,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "tutord",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"api_key", "gemini_api_key", "openai_api_key", "hf_token",
				"token", "password", "authorization",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`\bAIza[0-9A-Za-z_-]{30,}`,   // Gemini
				`\bsk-[A-Za-z0-9_-]{16,}`,    // OpenAI
				`\bhf_[A-Za-z0-9]{20,}`,      // Hugging Face
				`(redis://[^:/\s]*:)[^@\s]+@`, // redis URL password
			},
		},
	}
}

// ConfigFromSettings builds a logger config from the operator-facing
// logging section.
func ConfigFromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if s.Level != "" {
		lvl, err := LevelFromString(s.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
		}
		cfg.Level = lvl
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Format != "json" && c.Format != "console":
		return fmt.Errorf("log format %q: want json or console", c.Format)
	case !c.Output.Stdout && !c.Output.Stderr && !c.Output.OTEL:
		return errors.New("no log output enabled")
	case c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0:
		return errors.New("sampling enabled with a non-positive tick")
	case c.Caller.Enabled && c.Caller.Skip < 0:
		return fmt.Errorf("negative caller skip %d", c.Caller.Skip)
	}
	if c.Redaction.Enabled {
		if _, err := NewRedactingEncoder(newEncoder(c.Format), c.Redaction); err != nil {
			return err
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return errors.New("static field with empty key")
		}
		if v == "" {
			return fmt.Errorf("static field %q is empty", k)
		}
	}
	return nil
}
