package session

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var redisPrefixSeq atomic.Int64

func newMiniredisStore(t *testing.T, b Bounds, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "tutord:test:", TTL: ttl}, b, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, b Bounds) Store {
		s, _ := newMiniredisStore(t, b, time.Minute)
		return s
	})
}

// TestRedisStore_LiveServer repeats the contract against the server named by
// TUTORD_TEST_REDIS, e.g. redis://localhost:6379/15.
func TestRedisStore_LiveServer(t *testing.T) {
	url := os.Getenv("TUTORD_TEST_REDIS")
	if url == "" {
		t.Skip("TUTORD_TEST_REDIS not set")
	}

	runStoreContract(t, func(t *testing.T, b Bounds) Store {
		prefix := fmt.Sprintf("tutord:test:%d:%d:", time.Now().UnixNano(), redisPrefixSeq.Add(1))
		s, err := NewRedisStore(context.Background(), RedisConfig{URL: url, KeyPrefix: prefix, TTL: time.Minute}, b, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore_TrimsListOnServer(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, Bounds{MaxTurns: 2}, 0)

	require.NoError(t, s.Append(ctx, "s", Turn{Role: RoleUser, Text: "一"}))
	require.NoError(t, s.Append(ctx, "s", Turn{Role: RoleAssistant, Text: "二"}, Turn{Role: RoleUser, Text: "三"}))

	raw, err := mr.List("tutord:test:s")
	require.NoError(t, err)
	require.Len(t, raw, 2, "evicted turns must leave the redis list")

	got, err := s.Snapshot(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "二", got[0].Text)
	assert.Equal(t, "三", got[1].Text)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, Bounds{}, time.Minute)

	require.NoError(t, s.Append(ctx, "s", Turn{Role: RoleUser, Text: "x"}))
	assert.Equal(t, time.Minute, mr.TTL("tutord:test:s"))

	mr.FastForward(30 * time.Second)
	require.NoError(t, s.Append(ctx, "s", Turn{Role: RoleUser, Text: "y"}))
	assert.Equal(t, time.Minute, mr.TTL("tutord:test:s"), "append refreshes the ttl")

	mr.FastForward(2 * time.Minute)
	got, err := s.Snapshot(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_NoTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, Bounds{}, 0)

	require.NoError(t, s.Append(ctx, "s", Turn{Role: RoleUser, Text: "x"}))
	assert.Zero(t, mr.TTL("tutord:test:s"))
}

func TestRedisStore_DefaultKeyPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(ctx, RedisConfig{URL: "redis://" + mr.Addr()}, DefaultBounds, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Append(ctx, "abc", Turn{Role: RoleUser, Text: "x"}))
	assert.True(t, mr.Exists("tutord:session:abc"))
}

func TestNewRedisStore_InvalidConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := NewRedisStore(ctx, RedisConfig{}, DefaultBounds, nil)
	assert.Error(t, err)

	_, err = NewRedisStore(ctx, RedisConfig{URL: "not-a-url"}, DefaultBounds, nil)
	assert.Error(t, err)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(context.Background(), RedisConfig{URL: "redis://127.0.0.1:1"}, DefaultBounds, nil)
	assert.Error(t, err)
}

func TestDecodeTurns(t *testing.T) {
	t.Parallel()

	got, err := decodeTurns([]string{`{"role":"user","text":"食べる","time":"2024-01-02T03:04:05Z"}`})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "食べる", got[0].Text)

	_, err = decodeTurns([]string{"{"})
	assert.Error(t, err)
}
