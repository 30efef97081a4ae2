package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSubmissionGuard(t *testing.T) {
	mr, client := newTestRedis(t)
	guard := NewSubmissionGuard(client, 10*time.Second)
	ctx := context.Background()

	release, ok, err := guard.Acquire(ctx, "u1", "2025", "lang")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = guard.Acquire(ctx, "u1", "2025", "lang")
	require.NoError(t, err)
	assert.False(t, ok, "second submission for the same section must wait")

	_, ok, err = guard.Acquire(ctx, "u1", "2025", "logic")
	require.NoError(t, err)
	assert.True(t, ok, "other sections are independent")

	release()
	_, ok, err = guard.Acquire(ctx, "u1", "2025", "lang")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(11 * time.Second)
	_, ok, err = guard.Acquire(ctx, "u1", "2025", "lang")
	require.NoError(t, err)
	assert.True(t, ok, "guard expires after its ttl")
}

func TestSubmissionGuardReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	guard := NewSubmissionGuard(client, time.Second)
	ctx := context.Background()

	release, ok, err := guard.Acquire(ctx, "u1", "2025", "lang")
	require.NoError(t, err)
	require.True(t, ok)

	// first holder expires, second holder takes over
	mr.FastForward(2 * time.Second)
	_, ok, err = guard.Acquire(ctx, "u1", "2025", "lang")
	require.NoError(t, err)
	require.True(t, ok)

	release()
	assert.True(t, mr.Exists("guard:grade:u1:2025:lang"))
}

func TestSubmissionGuardReleaseFailureIsLogged(t *testing.T) {
	mr, client := newTestRedis(t)
	guard := NewSubmissionGuard(client, 10*time.Second)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	release, ok, err := guard.Acquire(context.Background(), "u1", "2025", "lang")
	require.NoError(t, err)
	require.True(t, ok)

	mr.SetError("ERR server unavailable")
	release()
	mr.SetError("")

	assert.Contains(t, logs.String(), "Failed to release submission guard")
	assert.Contains(t, logs.String(), "guard:grade:u1:2025:lang")
	assert.True(t, mr.Exists("guard:grade:u1:2025:lang"), "the key stays until its ttl")
}

func TestSubmissionGuardWithoutRedis(t *testing.T) {
	guard := NewSubmissionGuard(nil, 0)
	release, ok, err := guard.Acquire(context.Background(), "u1", "2025", "lang")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
	assert.False(t, guard.Enabled())
}

func TestCacheOrExecute(t *testing.T) {
	_, client := newTestRedis(t)
	cm := NewCacheManager(client)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return map[string]int{"raw_score": 21}, nil
	}

	var got map[string]int
	require.NoError(t, cm.Attempt.CacheOrExecute(ctx, "id:1", &got, time.Minute, fetch))
	require.NoError(t, cm.Attempt.CacheOrExecute(ctx, "id:1", &got, time.Minute, fetch))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 21, got["raw_score"])

	InvalidateAttemptCache(ctx, cm, 1, "")
	require.NoError(t, cm.Attempt.CacheOrExecute(ctx, "id:1", &got, time.Minute, fetch))
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	err := cm.Attempt.CacheOrExecute(ctx, "id:2", &got, time.Minute, func() (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestInvalidateAttemptCachePattern(t *testing.T) {
	mr, client := newTestRedis(t)
	cm := NewCacheManager(client)
	ctx := context.Background()

	require.NoError(t, cm.Attempt.Set(ctx, "user:u1:list:50", []int{1}, time.Minute))
	require.NoError(t, cm.Attempt.Set(ctx, "user:u1:list:10", []int{1}, time.Minute))
	require.NoError(t, cm.Attempt.Set(ctx, "user:u2:list:50", []int{2}, time.Minute))

	InvalidateAttemptCache(ctx, cm, 0, "u1")

	assert.False(t, mr.Exists("attempt:user:u1:list:50"))
	assert.False(t, mr.Exists("attempt:user:u1:list:10"))
	assert.True(t, mr.Exists("attempt:user:u2:list:50"))
}

func TestCacheManagerWithoutRedis(t *testing.T) {
	cm := NewCacheManager(nil)
	assert.ErrorIs(t, cm.HealthCheck(context.Background()), ErrCacheNotAvailable)

	var v int
	assert.ErrorIs(t, cm.Attempt.Get(context.Background(), "x", &v), ErrCacheNotAvailable)
	assert.NoError(t, cm.Attempt.Set(context.Background(), "x", 1, time.Minute))
}
