package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		s.Close()
	})
	return s, rdb
}

func TestAllow_BurstThenDeny(t *testing.T) {
	_, rdb := newMiniRedis(t)
	now := time.Unix(1_700_000_000, 0)
	l := New(rdb, "login", 6, 2).WithClock(func() time.Time { return now })

	ok, _ := l.Allow(context.Background(), "ip:10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow(context.Background(), "ip:10.0.0.1")
	assert.True(t, ok)

	ok, wait := l.Allow(context.Background(), "ip:10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 10*time.Second)

	// other keys have their own bucket
	ok, _ = l.Allow(context.Background(), "ip:10.0.0.2")
	assert.True(t, ok)
}

func TestAllow_Refills(t *testing.T) {
	_, rdb := newMiniRedis(t)
	now := time.Unix(1_700_000_000, 0)
	l := New(rdb, "public", 60, 1).WithClock(func() time.Time { return now })

	ok, _ := l.Allow(context.Background(), "k")
	require.True(t, ok)
	ok, _ = l.Allow(context.Background(), "k")
	require.False(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, _ = l.Allow(context.Background(), "k")
	assert.True(t, ok)
}

func TestAllow_FailsOpen(t *testing.T) {
	s, rdb := newMiniRedis(t)
	l := New(rdb, "login", 1, 1)
	s.Close()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow(context.Background(), "k")
		assert.True(t, ok)
	}
}

func TestAllow_NilOrDisabled(t *testing.T) {
	var l *Limiter
	ok, _ := l.Allow(context.Background(), "k")
	assert.True(t, ok)

	_, rdb := newMiniRedis(t)
	ok, _ = New(rdb, "x", 0, 0).Allow(context.Background(), "k")
	assert.True(t, ok)
}
