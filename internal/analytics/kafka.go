package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures KafkaNotifier.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaNotifier writes events to a topic, keyed by user id so one user's
// events stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaNotifier creates the writer. Brokers are dialed lazily on the
// first write.
func NewKafkaNotifier(cfg KafkaConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers required", ErrInvalidConfig)
	}
	if cfg.Topic == "" {
		cfg.Topic = "tutord-analytics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

// UpdateUserAnalytics implements Notifier.
func (n *KafkaNotifier) UpdateUserAnalytics(ctx context.Context, userID, messageType string, ev Event) error {
	ev.UserID, ev.MessageType = userID, messageType
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := n.writer.WriteMessages(ctx, kafka.Message{Key: []byte(userID), Value: data}); err != nil {
		return fmt.Errorf("writing event to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
