package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	URL       string // redis://[:password@]host:port/db
	KeyPrefix string
	TTL       time.Duration // refreshed on every append; zero keeps keys forever
}

// RedisStore keeps each session as a redis list of JSON turns. Eviction is
// computed client-side, so appends of one session are serialized in process.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	bounds Bounds
	locks  *keyedMutex
	logger *zap.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig, bounds Bounds, logger *zap.Logger) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tutord:session:"
	}
	logger.Info("redis session store connected", zap.String("addr", opts.Addr))
	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		bounds: bounds,
		locks:  newKeyedMutex(),
		logger: logger,
	}, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range stamp(turns, time.Now()) {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
		values = append(values, b)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	key := s.key(sessionID)
	var all *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		all = pipe.LRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending to session %s: %w", sessionID, err)
	}

	buf, err := decodeTurns(all.Val())
	if err != nil {
		return err
	}
	if drop := s.bounds.evictions(buf); drop > 0 {
		if err := s.client.LTrim(ctx, key, int64(drop), -1).Err(); err != nil {
			return fmt.Errorf("evicting from session %s: %w", sessionID, err)
		}
		s.logger.Debug("session turns evicted", zap.String("session_id", sessionID), zap.Int("evicted", drop))
	}
	return nil
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	return decodeTurns(raw)
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clearing session %s: %w", sessionID, err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeTurns(raw []string) ([]Turn, error) {
	out := make([]Turn, 0, len(raw))
	for _, r := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
