package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// InMemory is a process-local Limiter. Its state is lost on restart, which
// only ever lets extra requests through.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts a request against key. A window covers [start, resetAt). A
// denied request is not counted, so the count never exceeds max within a
// window.
func (l *InMemory) Allow(_ context.Context, key string, max int, windowLen time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowLen)}
		l.windows[key] = w
		return Decision{Allowed: max > 0, Count: w.count, ResetAt: w.resetAt}, nil
	}

	if w.count >= max {
		return Decision{Allowed: false, Count: w.count, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Decision{Allowed: true, Count: w.count, ResetAt: w.resetAt}, nil
}

// Sweep drops windows that ended at or before now and returns how many were
// removed. Allow never depends on it.
func (l *InMemory) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
