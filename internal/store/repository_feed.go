package store

import (
	"context"
	"fmt"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
)

type feedRepository struct {
	*DB
}

// NewFeedRepository returns the PostgreSQL [ChangeFeed].
func NewFeedRepository(db *DB) ChangeFeed {
	return &feedRepository{db}
}

func (f *feedRepository) ListChanges(ctx context.Context, q models.FeedQuery) ([]models.SyncItem, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildListChangesQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	rows, err := f.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "feedRepository.ListChanges").Msg("failed to query change feed")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	items := make([]models.SyncItem, 0, max(q.Limit, 0))
	for rows.Next() {
		var (
			item       models.SyncItem
			entityType string
			action     string
			payload    []byte
		)
		if err = rows.Scan(
			&item.ID,
			&entityType,
			&item.EntityUUID,
			&payload,
			&item.Version,
			&item.LastModified,
			&action,
			&item.CreatedBy,
			&item.UpdatedBy,
		); err != nil {
			log.Err(err).Str("func", "feedRepository.ListChanges").Msg("failed to scan change row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}

		item.EntityType = models.EntityType(entityType)
		item.Action = models.Action(action)
		item.Payload = payload
		item.LastModified = item.LastModified.UTC()
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		log.Err(err).Str("func", "feedRepository.ListChanges").Msg("error iterating change rows")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return items, nil
}

func (f *feedRepository) CountChanges(ctx context.Context, q models.FeedQuery) (int, error) {
	query, args, err := buildCountChangesQuery(ctx, q)
	if err != nil {
		return 0, err
	}

	var total int
	if err = f.DB.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "feedRepository.CountChanges").Msg("failed to count changes")
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return total, nil
}
