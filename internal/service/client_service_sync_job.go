package service

import (
	"context"
	"sync"
	"time"

	"github.com/bilzee/dms-sync/internal/logger"
)

const defaultSyncInterval = 5 * time.Minute

// clientSyncJob drives FullSync from a ticker. At most one loop runs at a
// time; Start replaces a running loop.
type clientSyncJob struct {
	syncService ClientSyncService

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger *logger.Logger
}

func NewClientSyncJob(syncService ClientSyncService, logger *logger.Logger) ClientSyncJob {
	return &clientSyncJob{syncService: syncService, logger: logger}
}

func (j *clientSyncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	j.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	j.mu.Lock()
	j.cancel, j.done = cancel, done
	j.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				j.runCycle(loopCtx)
			}
		}
	}()
}

// runCycle performs one FullSync. Failures leave the outbox pending for the
// next tick.
func (j *clientSyncJob) runCycle(ctx context.Context) {
	report, err := j.syncService.FullSync(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Err(err).
				Int("synced", report.Push.Synced).
				Msg("sync cycle failed")
		}
		return
	}

	j.logger.Debug().
		Int("synced", report.Push.Synced).
		Int("conflicts", report.Push.Conflicts).
		Int("pulled", report.Pull.Applied).
		Bool("stalled", report.Pull.Stalled).
		Msg("sync cycle finished")
}

// Stop cancels the loop and waits for it to exit. It is a no-op when
// nothing runs.
func (j *clientSyncJob) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
