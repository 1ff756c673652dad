package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// flushTimeout bounds the server acknowledgement when ctx has no deadline.
const flushTimeout = 5 * time.Second

// NATSConfig configures NATSNotifier.
type NATSConfig struct {
	URL     string
	Subject string // events go to <Subject>.<message type>
}

// NATSNotifier publishes events as JSON on a NATS subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier connects to cfg.URL.
func NewNATSNotifier(ctx context.Context, cfg NATSConfig, logger *zap.Logger) (*NATSNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats url required", ErrInvalidConfig)
	}
	if cfg.Subject == "" {
		cfg.Subject = "tutord.analytics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("tutord"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	return &NATSNotifier{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Subject returns the subject events of messageType go to.
func (n *NATSNotifier) Subject(messageType string) string {
	if messageType == "" {
		messageType = "question"
	}
	return n.subject + "." + messageType
}

// UpdateUserAnalytics implements Notifier. It returns once the server has
// acknowledged the publish, waiting at most flushTimeout when ctx carries
// no deadline.
func (n *NATSNotifier) UpdateUserAnalytics(ctx context.Context, userID, messageType string, ev Event) error {
	ev.UserID, ev.MessageType = userID, messageType
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := n.nc.Publish(n.Subject(messageType), data); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing event: %w", err)
	}
	return nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() error {
	return n.nc.Drain()
}
