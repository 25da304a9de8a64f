package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
)

const cursorStateKey = "pull_cursor"

// localRepository is the SQLite implementation of [OutboxRepository],
// [LocalEntityRepository] and [SyncStateRepository].
type localRepository struct {
	*DB
	now func() time.Time
}

// LocalRepository is the complete local store of a field device.
type LocalRepository interface {
	OutboxRepository
	LocalEntityRepository
	SyncStateRepository
}

func NewLocalRepository(db *DB) LocalRepository {
	return &localRepository{DB: db, now: time.Now}
}

func (l *localRepository) Enqueue(ctx context.Context, entries ...models.OutboxEntry) error {
	log := logger.FromContext(ctx)

	if len(entries) == 0 {
		return ErrNothingToSave
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).Str("func", "localRepository.Enqueue").Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, enqueueOutboxEntry)
	if err != nil {
		log.Err(err).Str("func", "localRepository.Enqueue").Msg("failed to prepare statement")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	defer stmt.Close()

	now := l.now().UTC()
	for _, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err = stmt.ExecContext(ctx,
			e.OfflineClientID,
			string(e.EntityType),
			string(e.Action),
			e.EntityUUID,
			e.DeclaredVersion,
			jsonText(e.Payload),
			string(models.OutboxStatusPending),
			createdAt.UTC(),
			now,
		); err != nil {
			log.Err(err).
				Str("func", "localRepository.Enqueue").
				Str("offline_client_id", e.OfflineClientID).
				Msg("failed to enqueue change")
			return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
	}

	if err = tx.Commit(); err != nil {
		log.Err(err).Str("func", "localRepository.Enqueue").Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}

	log.Debug().Str("func", "localRepository.Enqueue").Int("count", len(entries)).Msg("changes enqueued")
	return nil
}

func (l *localRepository) Get(ctx context.Context, offlineClientID string) (models.OutboxEntry, error) {
	entry, err := scanOutboxEntry(l.DB.QueryRowContext(ctx, getOutboxEntry, offlineClientID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.OutboxEntry{}, ErrOutboxEntryNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "localRepository.Get").Msg("failed to scan outbox entry")
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	return entry, nil
}

// Pending returns the oldest pending entries first.
func (l *localRepository) Pending(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	log := logger.FromContext(ctx)

	rows, err := l.DB.QueryContext(ctx, getPendingOutboxEntries, limit)
	if err != nil {
		log.Err(err).Str("func", "localRepository.Pending").Msg("failed to query outbox")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			log.Err(err).Str("func", "localRepository.Pending").Msg("failed to scan outbox entry")
			return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return entries, nil
}

func (l *localRepository) MarkSynced(ctx context.Context, offlineClientID, serverID string) error {
	return l.mark(ctx, "localRepository.MarkSynced", markOutboxSynced, serverID, l.now().UTC(), offlineClientID)
}

func (l *localRepository) MarkConflict(ctx context.Context, offlineClientID, conflictID, message string) error {
	return l.mark(ctx, "localRepository.MarkConflict", markOutboxConflict, conflictID, message, l.now().UTC(), offlineClientID)
}

// MarkFailed keeps the entry pending for the next cycle.
func (l *localRepository) MarkFailed(ctx context.Context, offlineClientID, message string) error {
	return l.mark(ctx, "localRepository.MarkFailed", markOutboxFailed, message, l.now().UTC(), offlineClientID)
}

func (l *localRepository) mark(ctx context.Context, fn, query string, args ...any) error {
	res, err := l.DB.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to update outbox entry")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected == 0 {
		return ErrOutboxEntryNotFound
	}
	return nil
}

func (l *localRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows, err := l.DB.QueryContext(ctx, countOutboxByStatus)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "localRepository.CountByStatus").Msg("failed to count outbox")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	counts := make(map[models.OutboxStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}
		counts[models.OutboxStatus(status)] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return counts, nil
}

// ApplyPulled de-duplicates feed items by change id; a new item replaces the
// local entity only when it carries a newer version.
func (l *localRepository) ApplyPulled(ctx context.Context, items []models.SyncItem) (int, error) {
	log := logger.FromContext(ctx)

	if len(items) == 0 {
		return 0, nil
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).Str("func", "localRepository.ApplyPulled").Msg("failed to begin transaction")
		return 0, fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	now := l.now().UTC()
	applied := 0
	for _, item := range items {
		res, err := tx.ExecContext(ctx, insertPulledChange, item.ID, now)
		if err != nil {
			log.Err(err).Str("func", "localRepository.ApplyPulled").Str("id", item.ID).Msg("failed to record pulled change")
			return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// seen on a previous page
			continue
		}

		if _, err = tx.ExecContext(ctx, upsertLocalEntity,
			item.EntityUUID,
			string(item.EntityType),
			jsonText(item.Payload),
			item.Version,
			item.Action == models.ActionDelete,
			item.LastModified.UTC(),
		); err != nil {
			log.Err(err).Str("func", "localRepository.ApplyPulled").Str("id", item.ID).Msg("failed to store pulled entity")
			return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
		applied++
	}

	if err = tx.Commit(); err != nil {
		log.Err(err).Str("func", "localRepository.ApplyPulled").Msg("failed to commit transaction")
		return 0, fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}

	return applied, nil
}

func (l *localRepository) GetLocalEntity(ctx context.Context, entityUUID string) (models.Entity, error) {
	var (
		e          models.Entity
		entityType string
		payload    []byte
	)
	err := l.DB.QueryRowContext(ctx, getLocalEntity, entityUUID).Scan(
		&e.EntityUUID,
		&entityType,
		&payload,
		&e.Version,
		&e.Deleted,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, ErrEntityNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "localRepository.GetLocalEntity").Msg("failed to scan local entity")
		return models.Entity{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	e.EntityType = models.EntityType(entityType)
	e.Payload = payload
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (l *localRepository) GetCursor(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := l.DB.QueryRowContext(ctx, getSyncState, cursorStateKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "localRepository.GetCursor").Msg("failed to read pull cursor")
		return time.Time{}, false, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	cursor, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid stored cursor %q: %w", value, err)
	}
	return cursor.UTC(), true, nil
}

func (l *localRepository) SaveCursor(ctx context.Context, cursor time.Time) error {
	if _, err := l.DB.ExecContext(ctx, saveSyncState, cursorStateKey, cursor.UTC().Format(time.RFC3339Nano)); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "localRepository.SaveCursor").Msg("failed to save pull cursor")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func scanOutboxEntry(row rowScanner) (models.OutboxEntry, error) {
	var (
		e          models.OutboxEntry
		entityType string
		action     string
		status     string
		payload    []byte
	)
	err := row.Scan(
		&e.OfflineClientID,
		&entityType,
		&action,
		&e.EntityUUID,
		&e.DeclaredVersion,
		&payload,
		&status,
		&e.Attempts,
		&e.LastError,
		&e.ServerID,
		&e.ConflictID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return models.OutboxEntry{}, err
	}

	e.EntityType = models.EntityType(entityType)
	e.Action = models.Action(action)
	e.Status = models.OutboxStatus(status)
	e.Payload = payload
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}
