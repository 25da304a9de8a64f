package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/bilzee/dms-sync/internal/config"
)

// ErrStoreUnavailable is returned by New when the configured Redis store
// does not answer PING.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// New selects the Redis store when cfg.RedisAddr is set and [InMemory]
// otherwise. The returned closer releases the Redis connection; it is a
// no-op for the in-memory store.
func New(ctx context.Context, cfg config.RateLimit) (Limiter, io.Closer, error) {
	if cfg.RedisAddr == "" {
		return NewInMemory(), nopCloser{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return NewRedis(client), client, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
