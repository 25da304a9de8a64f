package store

import (
	"context"
	"time"

	"github.com/bilzee/dms-sync/models"
)

//go:generate mockgen -source=client_interfaces.go -destination=../mock/client_store_mock.go -package=mock

// OutboxRepository is the field device's queue of changes waiting to be
// pushed.
type OutboxRepository interface {
	Enqueue(ctx context.Context, entries ...models.OutboxEntry) error
	Get(ctx context.Context, offlineClientID string) (models.OutboxEntry, error)
	Pending(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkSynced(ctx context.Context, offlineClientID, serverID string) error
	MarkConflict(ctx context.Context, offlineClientID, conflictID, message string) error
	MarkFailed(ctx context.Context, offlineClientID, message string) error
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
}

// LocalEntityRepository holds the server state pulled onto the device.
type LocalEntityRepository interface {
	// ApplyPulled stores feed items not seen before and returns how many
	// were new.
	ApplyPulled(ctx context.Context, items []models.SyncItem) (int, error)
	GetLocalEntity(ctx context.Context, entityUUID string) (models.Entity, error)
}

// SyncStateRepository persists the pull cursor.
type SyncStateRepository interface {
	// GetCursor returns false when the device never pulled.
	GetCursor(ctx context.Context) (time.Time, bool, error)
	SaveCursor(ctx context.Context, cursor time.Time) error
}
