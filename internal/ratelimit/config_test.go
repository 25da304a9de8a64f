package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilzee/dms-sync/internal/config"
)

func TestNew_InMemoryWithoutRedis(t *testing.T) {
	l, closer, err := New(context.Background(), config.RateLimit{})

	require.NoError(t, err)
	assert.IsType(t, &InMemory{}, l)
	assert.NoError(t, closer.Close())
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	l, closer, err := New(context.Background(), config.RateLimit{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	require.IsType(t, &Redis{}, l)
	d, err := l.Allow(context.Background(), Key(ScopePull, "tablet-3"), 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, mr.Exists(redisKeyPrefix+"pull:tablet-3"))
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, closer, err := New(ctx, config.RateLimit{RedisAddr: addr})

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, l)
	assert.Nil(t, closer)
}
