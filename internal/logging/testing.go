package logging

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry down to TraceLevel.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger creates an observing logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{Logger: wrap(zap.New(core)), logs: logs}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry { return t.logs.All() }

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessageSnippet(msg)
}

// AssertLogged fails unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.logs.FilterLevelExact(level).FilterMessageSnippet(msg).Len() == 0 {
		tb.Errorf("no %v entry containing %q in %d entries", level, msg, t.logs.Len())
	}
}

// AssertField fails unless an entry containing msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessageSnippet(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && fmt.Sprint(got) == fmt.Sprint(want) {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%v", msg, key, want)
}

// Provider credentials that must never reach the log stream.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{30,}`),     // Gemini
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),      // OpenAI
	regexp.MustCompile(`\bhf_[A-Za-z0-9]{20,}`),        // Hugging Face / TEI
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]+`), // auth headers
	regexp.MustCompile(`redis://[^:/\s]*:[^@\s]+@`),    // redis URL password
}

// AssertNoSecrets fails if any message or string field looks like a
// provider credential.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	for _, e := range t.logs.All() {
		values := []string{e.Message}
		for k, v := range e.ContextMap() {
			if s, ok := v.(string); ok {
				values = append(values, k+"="+s)
			}
		}
		for _, v := range values {
			for _, re := range credentialPatterns {
				if re.MatchString(v) && !strings.Contains(v, redactedValue) {
					tb.Errorf("credential in log entry %q: %s", e.Message, v)
				}
			}
		}
	}
}
