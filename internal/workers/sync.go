package workers

import (
	"context"
	"time"

	"github.com/bilzee/dms-sync/internal/service"
)

type clientSyncWorker struct {
	job      service.ClientSyncJob
	interval time.Duration
}

// NewClientSyncWorker runs job every interval for as long as the context of
// Run lives. The job owns its goroutine.
func NewClientSyncWorker(job service.ClientSyncJob, interval time.Duration) Worker {
	return &clientSyncWorker{job: job, interval: interval}
}

func (w *clientSyncWorker) Run(ctx context.Context) {
	w.job.Start(ctx, w.interval)
}
