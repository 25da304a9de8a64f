package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type conflictRepository struct {
	*DB
}

// NewConflictRepository returns the PostgreSQL Conflict Ledger.
func NewConflictRepository(db *DB) ConflictRepository {
	return &conflictRepository{db}
}

// Record stores new ledger entries in a single statement.
func (c *conflictRepository) Record(ctx context.Context, conflicts ...models.Conflict) error {
	log := logger.FromContext(ctx)

	if len(conflicts) == 0 {
		return nil
	}

	query, args, err := buildInsertConflictsQuery(ctx, conflicts)
	if err != nil {
		return err
	}

	res, err := c.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "conflictRepository.Record").
			Str("pg_code", postgresError(err)).
			Msg("failed to record conflicts")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected != int64(len(conflicts)) {
		log.Error().
			Str("func", "conflictRepository.Record").
			Int64("affected", affected).
			Int("expected", len(conflicts)).
			Msg("not every conflict was recorded")
		return ErrNothingToSave
	}

	log.Debug().Str("func", "conflictRepository.Record").Int("count", len(conflicts)).Msg("conflicts recorded")
	return nil
}

func (c *conflictRepository) Get(ctx context.Context, conflictID string) (models.Conflict, error) {
	query, args, err := buildSelectConflictQuery(ctx, conflictID)
	if err != nil {
		return models.Conflict{}, err
	}
	return c.queryOne(ctx, "conflictRepository.Get", query, args...)
}

func (c *conflictRepository) FindOpen(ctx context.Context, offlineClientID string, declaredVersion int64) (models.Conflict, error) {
	query, args, err := buildFindOpenConflictQuery(ctx, offlineClientID, declaredVersion)
	if err != nil {
		return models.Conflict{}, err
	}
	return c.queryOne(ctx, "conflictRepository.FindOpen", query, args...)
}

// List returns one page of entries, newest first, and the number of entries
// matching the filter.
func (c *conflictRepository) List(ctx context.Context, filter models.ConflictFilter) ([]models.Conflict, int, error) {
	log := logger.FromContext(ctx)

	countQuery, countArgs, err := buildCountConflictsQuery(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err = c.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		log.Err(err).Str("func", "conflictRepository.List").Msg("failed to count conflicts")
		return nil, 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	query, args, err := buildListConflictsQuery(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "conflictRepository.List").Msg("failed to query conflicts")
		return nil, 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	conflicts := make([]models.Conflict, 0)
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			log.Err(err).Str("func", "conflictRepository.List").Msg("failed to scan conflict row")
			return nil, 0, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}
		conflicts = append(conflicts, conflict)
	}
	if err = rows.Err(); err != nil {
		log.Err(err).Str("func", "conflictRepository.List").Msg("error iterating conflict rows")
		return nil, 0, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return conflicts, total, nil
}

// Stats returns the ledger counters; ResolutionRate is left to the caller.
func (c *conflictRepository) Stats(ctx context.Context) (models.ConflictStats, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildConflictStatsQuery(ctx)
	if err != nil {
		return models.ConflictStats{}, err
	}

	stats := models.ConflictStats{ByType: make(map[models.EntityType]int)}
	if err = c.DB.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Unresolved,
		&stats.AutoResolved,
		&stats.ManuallyResolved,
	); err != nil {
		log.Err(err).Str("func", "conflictRepository.Stats").Msg("failed to read conflict totals")
		return models.ConflictStats{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	query, args, err = buildConflictsByTypeQuery(ctx)
	if err != nil {
		return models.ConflictStats{}, err
	}

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "conflictRepository.Stats").Msg("failed to query conflicts by type")
		return models.ConflictStats{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entityType string
			count      int
		)
		if err = rows.Scan(&entityType, &count); err != nil {
			return models.ConflictStats{}, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}
		stats.ByType[models.EntityType(entityType)] = count
	}
	if err = rows.Err(); err != nil {
		return models.ConflictStats{}, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return stats, nil
}

func (c *conflictRepository) MarkResolved(ctx context.Context, conflictID string, resolution models.ConflictResolution) (models.Conflict, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildMarkResolvedQuery(ctx, conflictID, resolution)
	if err != nil {
		return models.Conflict{}, err
	}

	resolved, err := c.queryOne(ctx, "conflictRepository.MarkResolved", query, args...)
	if err == nil {
		log.Info().
			Str("func", "conflictRepository.MarkResolved").
			Str("conflict_id", conflictID).
			Str("strategy", resolution.Strategy.String()).
			Msg("conflict resolved")
		return resolved, nil
	}
	if !errors.Is(err, ErrConflictNotFound) {
		return models.Conflict{}, err
	}

	// nothing updated: either unknown or resolved by someone else first
	stored, err := c.Get(ctx, conflictID)
	if err != nil {
		return models.Conflict{}, err
	}
	return stored, ErrConflictAlreadyResolved
}

func (c *conflictRepository) queryOne(ctx context.Context, fn, query string, args ...any) (models.Conflict, error) {
	conflict, err := scanConflict(c.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conflict{}, ErrConflictNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to scan conflict")
		return models.Conflict{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	return conflict, nil
}

func scanConflict(row rowScanner) (models.Conflict, error) {
	var (
		c          models.Conflict
		entityType string
		strategy   string
		resolvedAt sql.NullTime
		localData  []byte
		serverData []byte
		resolved   []byte
		metadata   []byte
	)

	err := row.Scan(
		&c.ConflictID,
		&c.OfflineClientID,
		&entityType,
		&c.EntityUUID,
		&c.LocalVersion,
		&c.ServerVersion,
		&localData,
		&serverData,
		&strategy,
		&c.IsResolved,
		&c.CreatedAt,
		&resolvedAt,
		&c.ResolvedBy,
		&resolved,
		&c.ResolvedVersion,
		&metadata,
		&c.Metadata.ConflictReason,
		&c.Metadata.AutoResolved,
	)
	if err != nil {
		return models.Conflict{}, err
	}

	if strategy != "" {
		if c.ResolutionStrategy, err = models.ParseResolutionStrategy(strategy); err != nil {
			return models.Conflict{}, err
		}
	}

	c.EntityType = models.EntityType(entityType)
	c.LocalData = localData
	c.ServerData = serverData
	c.ResolvedData = resolved
	c.ResolutionMetadata = metadata
	c.CreatedAt = c.CreatedAt.UTC()
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		c.ResolvedAt = &t
	}

	return c, nil
}
