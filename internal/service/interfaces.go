package service

import (
	"context"
	"io"

	"github.com/bilzee/dms-sync/models"
)

// AccessService resolves the entities a user may read and write.
type AccessService interface {
	AuthorizedEntityIDs(ctx context.Context, userID string) (models.EntitySet, error)

	// Authorize fails with an *EntityAccessError when any change targets an
	// entity outside the user's grant.
	Authorize(ctx context.Context, userID string, changes []models.Change) error

	Grant(ctx context.Context, userID string, entityUUIDs ...string) error
}

// SyncService is the push and pull side of the sync protocol.
type SyncService interface {
	// Push applies changes as one atomic batch and returns one result per
	// change, in request order.
	Push(ctx context.Context, userID string, changes []models.Change) ([]models.SyncResult, error)

	// Pull returns one page of the change feed scoped to the user's grant.
	Pull(ctx context.Context, req models.PullRequest) (models.PullResponse, error)
}

// ConflictService resolves and reports Conflict Ledger entries.
type ConflictService interface {
	Resolve(ctx context.Context, userID string, resolution models.Resolution) (models.ResolutionResult, error)

	// ResolveBatch resolves every entry independently; failures are reported
	// in the per-item result.
	ResolveBatch(ctx context.Context, userID string, resolutions []models.Resolution) []models.ResolutionResult

	// Get, List and Export only see entries of entities granted to userID.
	Get(ctx context.Context, userID, conflictID string) (models.Conflict, error)
	List(ctx context.Context, userID string, filter models.ConflictFilter, page int) (models.ConflictPage, error)
	Export(ctx context.Context, userID string, w io.Writer) error

	// Summary and ExportAll cover the whole ledger.
	Summary(ctx context.Context) (models.ConflictStats, error)
	ExportAll(ctx context.Context, w io.Writer) error
}

type AuthService interface {
	CreateToken(ctx context.Context, userID string) (models.Token, error)
	ParseToken(ctx context.Context, tokenString string) (models.Token, error)
}

type AppInfoService interface {
	GetAppVersion(ctx context.Context) string
}

// IDGenerator issues identifiers for changes and conflicts.
type IDGenerator interface {
	Generate() string
}
