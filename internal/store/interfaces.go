package store

import (
	"context"

	"github.com/bilzee/dms-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mock.go -package=mock

// ErrorClassificator decides whether a failed database call may be retried.
type ErrorClassificator interface {
	Classify(err error) ErrorClassification
}

// EntityRepository reads the authoritative entity state.
type EntityRepository interface {
	// GetEntity returns the entity with the given UUID, tombstones included,
	// or [ErrEntityNotFound].
	GetEntity(ctx context.Context, entityUUID string) (models.Entity, error)
}

// ChangeStore applies and compensates single entity writes.
//
// Apply is atomic per write: the entity row, its change-feed row and the
// idempotency receipt are stored together or not at all. The entity is only
// written while its stored version equals [models.EntityWrite.ExpectedVersion];
// otherwise [ErrVersionConflict] (or [ErrEntityAlreadyExists] for creates) is
// returned. Rollback restores the snapshot captured by Apply.
type ChangeStore interface {
	Apply(ctx context.Context, write models.EntityWrite) (models.AppliedChange, error)
	Rollback(ctx context.Context, applied models.AppliedChange) error
}

// ReceiptRepository looks up idempotency receipts of applied device changes.
type ReceiptRepository interface {
	GetReceipt(ctx context.Context, offlineClientID string, declaredVersion int64) (models.ChangeReceipt, error)
}

// EntityStore is the full write side of the entity store.
type EntityStore interface {
	EntityRepository
	ChangeStore
	ReceiptRepository
}

// ChangeFeed reads applied changes ordered by (last_modified, id).
type ChangeFeed interface {
	ListChanges(ctx context.Context, query models.FeedQuery) ([]models.SyncItem, error)
	CountChanges(ctx context.Context, query models.FeedQuery) (int, error)
}

// AccessRepository stores which entities a user may read and write.
type AccessRepository interface {
	AuthorizedEntityIDs(ctx context.Context, userID string) ([]string, error)
	GrantEntities(ctx context.Context, userID string, entityUUIDs ...string) error
}

// ConflictRepository is the Conflict Ledger.
type ConflictRepository interface {
	Record(ctx context.Context, conflicts ...models.Conflict) error
	Get(ctx context.Context, conflictID string) (models.Conflict, error)

	// FindOpen returns the entry a retried change should be answered with:
	// an unresolved entry, or one resolved automatically at push time.
	FindOpen(ctx context.Context, offlineClientID string, declaredVersion int64) (models.Conflict, error)

	List(ctx context.Context, filter models.ConflictFilter) ([]models.Conflict, int, error)
	Stats(ctx context.Context) (models.ConflictStats, error)

	// MarkResolved performs the single transition to resolved. When the entry
	// was already resolved, the stored entry is returned together with
	// [ErrConflictAlreadyResolved].
	MarkResolved(ctx context.Context, conflictID string, resolution models.ConflictResolution) (models.Conflict, error)
}
