package ratelimit

import (
	"context"
	"time"
)

// Key namespaces of the endpoint groups. Each group has its own window per
// client.
const (
	ScopePush      = "push"
	ScopePull      = "pull"
	ScopeResolve   = "resolve"
	ScopeConflicts = "conflicts"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// Count is the number of requests counted in the current window.
	Count int
	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(d.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter decides whether the request identified by key fits into a window
// of max requests.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (Decision, error)
}

// Key builds the store key of clientID within scope.
func Key(scope, clientID string) string {
	return scope + ":" + clientID
}
