// Package analytics hands per-response learning signals to the analytics
// collaborator. The core only publishes events; weakness tracking and
// reporting live with the consumer.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidConfig indicates an unusable notifier configuration.
var ErrInvalidConfig = errors.New("invalid analytics configuration")

// Event summarizes one tutor response.
type Event struct {
	UserID          string    `json:"user_id"`
	MessageType     string    `json:"message_type"`
	SessionID       string    `json:"session_id,omitempty"`
	CourseID        string    `json:"course_id,omitempty"`
	Namespace       string    `json:"namespace"`
	QueryType       string    `json:"query_type"`
	DifficultyLevel string    `json:"difficulty_level"`
	GrammarPoints   []string  `json:"grammar_points"`
	Vocabulary      []string  `json:"vocabulary"`
	JLPTLevel       string    `json:"jlpt_level,omitempty"`
	Confidence      float64   `json:"confidence"`
	Sources         int       `json:"sources"`
	Generator       string    `json:"generator"`
	Failed          bool      `json:"failed"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier delivers events to the analytics collaborator. ctx need not carry
// a deadline; implementations bound their own waits.
type Notifier interface {
	UpdateUserAnalytics(ctx context.Context, userID, messageType string, ev Event) error
	Close() error
}

// Config selects and configures a Notifier.
type Config struct {
	Provider string // noop, log, nats or kafka
	NATS     NATSConfig
	Kafka    KafkaConfig
}

// New builds the configured notifier.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "noop":
		return NoopNotifier{}, nil
	case "log":
		return NewLogNotifier(logger), nil
	case "nats":
		return NewNATSNotifier(ctx, cfg.NATS, logger)
	case "kafka":
		return NewKafkaNotifier(cfg.Kafka, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NoopNotifier drops events.
type NoopNotifier struct{}

func (NoopNotifier) UpdateUserAnalytics(context.Context, string, string, Event) error { return nil }
func (NoopNotifier) Close() error                                                     { return nil }

// LogNotifier writes events to the log at info.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("analytics")}
}

// UpdateUserAnalytics implements Notifier.
func (n *LogNotifier) UpdateUserAnalytics(_ context.Context, userID, messageType string, ev Event) error {
	n.logger.Info("user analytics",
		zap.String("user_id", userID),
		zap.String("message_type", messageType),
		zap.String("query_type", ev.QueryType),
		zap.Strings("grammar_points", ev.GrammarPoints),
		zap.Float64("confidence", ev.Confidence),
		zap.Bool("failed", ev.Failed))
	return nil
}

func (n *LogNotifier) Close() error { return nil }
