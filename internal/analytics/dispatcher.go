package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher delivers events in the background. Notify never blocks the
// caller and delivery failures are only logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher wraps n. Each delivery gets its own timeout, default 5s.
func NewDispatcher(n Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifier: n, timeout: timeout, logger: logger}
}

// Notify schedules one delivery. Events after Close are dropped.
func (d *Dispatcher) Notify(userID, messageType string, ev Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("analytics dispatcher closed, dropping event", zap.String("user_id", userID))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.UpdateUserAnalytics(ctx, userID, messageType, ev); err != nil {
			d.logger.Warn("analytics update failed",
				zap.String("user_id", userID),
				zap.String("message_type", messageType),
				zap.Error(err))
		}
	}()
}

// Close waits for in-flight deliveries, then closes the notifier.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	return d.notifier.Close()
}
