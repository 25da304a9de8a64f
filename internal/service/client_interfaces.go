package service

import (
	"context"
	"time"

	"github.com/bilzee/dms-sync/models"
)

// ClientOutboxService records changes made on the field device.
type ClientOutboxService interface {
	// Record validates ch, mints an offline client id when ch has none and
	// queues it as pending.
	Record(ctx context.Context, ch models.Change) (models.OutboxEntry, error)

	// Get returns a queued entry by offline client id.
	Get(ctx context.Context, offlineClientID string) (models.OutboxEntry, error)

	// Status counts queued entries per status.
	Status(ctx context.Context) (map[models.OutboxStatus]int, error)
}

// ClientSyncService exchanges the device outbox and change feed with the
// sync server.
type ClientSyncService interface {
	// FullSync pushes every pending entry, then pulls the feed from the
	// saved cursor. The pull runs even when the push was rejected by the
	// server, but not after a transport failure.
	FullSync(ctx context.Context) (models.SyncReport, error)

	// PushPending sends pending entries in batches and reconciles the
	// results by offline client id.
	PushPending(ctx context.Context) (models.PushReport, error)

	// PullChanges pages through the change feed and persists the cursor
	// after every page.
	PullChanges(ctx context.Context) (models.PullReport, error)

	// Resolve forwards conflict resolutions to the server.
	Resolve(ctx context.Context, resolutions ...models.Resolution) ([]models.ResolutionResult, error)
}

// ClientSyncJob defines the contract for a background sync worker that
// periodically calls FullSync.
type ClientSyncJob interface {
	// Start launches the background sync goroutine. It syncs every interval,
	// defaulting to 5 minutes if interval is zero or negative. Any previously
	// running job is stopped before the new one begins.
	Start(ctx context.Context, interval time.Duration)

	// Stop signals the background goroutine to exit and blocks until it has
	// fully terminated.
	Stop()
}
