package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bilzee/dms-sync/internal/logger"
)

type accessRepository struct {
	*DB
	now func() time.Time
}

// NewAccessRepository returns the PostgreSQL [AccessRepository] over the
// entity_grants table.
func NewAccessRepository(db *DB) AccessRepository {
	return &accessRepository{DB: db, now: time.Now}
}

func (a *accessRepository) AuthorizedEntityIDs(ctx context.Context, userID string) ([]string, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectGrantsQuery(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := a.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "accessRepository.AuthorizedEntityIDs").Msg("failed to query grants")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			log.Err(err).Str("func", "accessRepository.AuthorizedEntityIDs").Msg("failed to scan grant")
			return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return ids, nil
}

// GrantEntities is idempotent: existing grants are left untouched.
func (a *accessRepository) GrantEntities(ctx context.Context, userID string, entityUUIDs ...string) error {
	if len(entityUUIDs) == 0 {
		return ErrNothingToSave
	}

	query, args, err := buildInsertGrantsQuery(ctx, userID, entityUUIDs, a.now().UTC())
	if err != nil {
		return err
	}

	if _, err = a.DB.ExecContext(ctx, query, args...); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "accessRepository.GrantEntities").
			Str("user_id", userID).
			Msg("failed to insert grants")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	logger.FromContext(ctx).Info().
		Str("func", "accessRepository.GrantEntities").
		Str("user_id", userID).
		Int("entities", len(entityUUIDs)).
		Msg("entities granted")

	return nil
}
