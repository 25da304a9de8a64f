package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow increments the counter and starts the window on first use.
// It returns the count and the remaining window in milliseconds.
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

const redisKeyPrefix = "dms-sync:ratelimit:"

// Redis is a Limiter shared by every server replica that points at the same
// Redis database.
type Redis struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Allow counts a request against key. When Redis is unreachable the request
// is allowed and the error is returned for logging.
func (l *Redis) Allow(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	now := l.now()

	res, err := incrWindow.Run(ctx, l.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{Allowed: true, ResetAt: now.Add(window)}, fmt.Errorf("rate limit store: %w", err)
	}
	if len(res) != 2 {
		return Decision{Allowed: true, ResetAt: now.Add(window)}, fmt.Errorf("rate limit store: unexpected reply %v", res)
	}

	count := int(res[0])
	return Decision{
		Allowed: count <= max,
		Count:   count,
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
