package workers

import (
	"context"
	"time"

	"github.com/bilzee/dms-sync/internal/logger"
)

const defaultSweepInterval = time.Minute

// Sweeper drops expired state. ratelimit.InMemory implements it.
type Sweeper interface {
	Sweep(now time.Time) int
}

type limiterSweeper struct {
	store    Sweeper
	interval time.Duration
	now      func() time.Time

	logger *logger.Logger
}

// NewLimiterSweeper returns a Worker that evicts expired rate-limit windows
// every interval. A non-positive interval defaults to one minute.
func NewLimiterSweeper(store Sweeper, interval time.Duration, logger *logger.Logger) Worker {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &limiterSweeper{
		store:    store,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *limiterSweeper) Run(ctx context.Context) {
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if removed := s.store.Sweep(s.now()); removed > 0 {
					s.logger.Debug().Int("removed", removed).Msg("expired rate limit windows swept")
				}
			}
		}
	}()
}
