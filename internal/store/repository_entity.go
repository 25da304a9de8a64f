package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
)

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// entityRepository is the PostgreSQL implementation of [EntityRepository],
// [ChangeStore] and [ReceiptRepository].
type entityRepository struct {
	*DB
}

// NewEntityRepository returns the entity, change and receipt repository
// backed by db.
func NewEntityRepository(db *DB) EntityStore {
	return &entityRepository{db}
}

func (r *entityRepository) GetEntity(ctx context.Context, entityUUID string) (models.Entity, error) {
	entity, err := r.selectEntity(ctx, r.DB.DB, entityUUID, false)
	if err != nil {
		return models.Entity{}, err
	}
	return *entity, nil
}

// Apply writes the entity, its feed row and its receipt in one transaction.
// The current row is locked first so the version guard and the undo snapshot
// see the same state.
func (r *entityRepository) Apply(ctx context.Context, w models.EntityWrite) (models.AppliedChange, error) {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).Str("func", "entityRepository.Apply").Msg("failed to begin transaction")
		return models.AppliedChange{}, fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	previous, err := r.selectEntity(ctx, tx, w.EntityUUID, true)
	if err != nil && !errors.Is(err, ErrEntityNotFound) {
		return models.AppliedChange{}, err
	}

	next := nextEntity(w, previous)

	switch {
	case w.Action == models.ActionCreate && previous != nil:
		return models.AppliedChange{}, ErrEntityAlreadyExists
	case w.Action == models.ActionCreate:
		err = r.insertEntity(ctx, tx, next)
	case previous == nil || previous.Version != w.ExpectedVersion:
		log.Warn().
			Str("func", "entityRepository.Apply").
			Str("entity_uuid", w.EntityUUID).
			Int64("expected_version", w.ExpectedVersion).
			Msg("optimistic lock failed: version mismatch")
		return models.AppliedChange{}, ErrVersionConflict
	default:
		err = r.updateEntity(ctx, tx, next, w.ExpectedVersion)
	}
	if err != nil {
		return models.AppliedChange{}, err
	}

	if err = r.insertChange(ctx, tx, feedItem(w, next)); err != nil {
		return models.AppliedChange{}, err
	}

	if w.OfflineClientID != "" {
		if err = r.insertReceipt(ctx, tx, receiptFor(w)); err != nil {
			return models.AppliedChange{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		log.Err(err).Str("func", "entityRepository.Apply").Msg("failed to commit transaction")
		return models.AppliedChange{}, fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}

	log.Debug().
		Str("func", "entityRepository.Apply").
		Str("entity_uuid", w.EntityUUID).
		Str("change_id", w.ChangeID).
		Int64("version", w.NextVersion).
		Msg("change applied")

	return models.AppliedChange{Write: w, Previous: previous}, nil
}

// Rollback compensates an applied change: the receipt and the feed row are
// removed and the entity is restored to its snapshot (or removed when the
// change created it). It fails with [ErrVersionConflict] if the entity has
// moved past the applied version since.
func (r *entityRepository) Rollback(ctx context.Context, applied models.AppliedChange) error {
	log := logger.FromContext(ctx)
	w := applied.Write

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).Str("func", "entityRepository.Rollback").Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	if w.OfflineClientID != "" {
		query, args, err := buildDeleteReceiptQuery(ctx, w.OfflineClientID, w.DeclaredVersion)
		if err != nil {
			return err
		}
		if _, err = r.exec(ctx, tx, "entityRepository.Rollback", query, args...); err != nil {
			return err
		}
	}

	query, args, err := buildDeleteChangeQuery(ctx, w.ChangeID)
	if err != nil {
		return err
	}
	if _, err = r.exec(ctx, tx, "entityRepository.Rollback", query, args...); err != nil {
		return err
	}

	if applied.Previous == nil {
		query, args, err = buildDeleteEntityQuery(ctx, w.EntityUUID, w.NextVersion)
	} else {
		query, args, err = buildUpdateEntityQuery(ctx, *applied.Previous, w.NextVersion)
	}
	if err != nil {
		return err
	}

	affected, err := r.exec(ctx, tx, "entityRepository.Rollback", query, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		log.Warn().
			Str("func", "entityRepository.Rollback").
			Str("entity_uuid", w.EntityUUID).
			Int64("applied_version", w.NextVersion).
			Msg("entity moved since the change was applied")
		return fmt.Errorf("failed to roll back change %s: %w", w.ChangeID, ErrVersionConflict)
	}

	if err = tx.Commit(); err != nil {
		log.Err(err).Str("func", "entityRepository.Rollback").Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}

	log.Debug().
		Str("func", "entityRepository.Rollback").
		Str("entity_uuid", w.EntityUUID).
		Str("change_id", w.ChangeID).
		Msg("change rolled back")

	return nil
}

func (r *entityRepository) GetReceipt(ctx context.Context, offlineClientID string, declaredVersion int64) (models.ChangeReceipt, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectReceiptQuery(ctx, offlineClientID, declaredVersion)
	if err != nil {
		return models.ChangeReceipt{}, err
	}

	var receipt models.ChangeReceipt
	err = r.DB.QueryRowContext(ctx, query, args...).Scan(
		&receipt.OfflineClientID,
		&receipt.EntityUUID,
		&receipt.DeclaredVersion,
		&receipt.ChangeID,
		&receipt.ResultVersion,
		&receipt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChangeReceipt{}, ErrReceiptNotFound
	}
	if err != nil {
		log.Err(err).Str("func", "entityRepository.GetReceipt").Msg("failed to scan receipt")
		return models.ChangeReceipt{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	receipt.CreatedAt = receipt.CreatedAt.UTC()
	return receipt, nil
}

func (r *entityRepository) selectEntity(ctx context.Context, q queryRower, entityUUID string, forUpdate bool) (*models.Entity, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectEntityQuery(ctx, entityUUID, forUpdate)
	if err != nil {
		return nil, err
	}

	var (
		e          models.Entity
		entityType string
		payload    []byte
	)
	err = q.QueryRowContext(ctx, query, args...).Scan(
		&e.ServerID,
		&entityType,
		&e.EntityUUID,
		&payload,
		&e.Version,
		&e.Deleted,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.CreatedBy,
		&e.UpdatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		log.Err(err).
			Str("func", "entityRepository.selectEntity").
			Str("entity_uuid", entityUUID).
			Bool("retryable", r.retryable(err)).
			Msg("failed to scan entity")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	e.EntityType = models.EntityType(entityType)
	e.Payload = payload
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	return &e, nil
}

func (r *entityRepository) insertEntity(ctx context.Context, tx execer, e models.Entity) error {
	query, args, err := buildInsertEntityQuery(ctx, e)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrEntityAlreadyExists
		}
		logger.FromContext(ctx).Err(err).
			Str("func", "entityRepository.insertEntity").
			Str("pg_code", postgresError(err)).
			Msg("failed to insert entity")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (r *entityRepository) updateEntity(ctx context.Context, tx execer, e models.Entity, expectedVersion int64) error {
	query, args, err := buildUpdateEntityQuery(ctx, e, expectedVersion)
	if err != nil {
		return err
	}

	affected, err := r.exec(ctx, tx, "entityRepository.updateEntity", query, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *entityRepository) insertChange(ctx context.Context, tx execer, item models.SyncItem) error {
	query, args, err := buildInsertChangeQuery(ctx, item)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, tx, "entityRepository.insertChange", query, args...)
	return err
}

func (r *entityRepository) insertReceipt(ctx context.Context, tx execer, receipt models.ChangeReceipt) error {
	query, args, err := buildInsertReceiptQuery(ctx, receipt)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, tx, "entityRepository.insertReceipt", query, args...)
	return err
}

// exec runs a DML statement and returns the number of affected rows.
func (r *entityRepository) exec(ctx context.Context, tx execer, fn, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", fn).
			Str("pg_code", postgresError(err)).
			Bool("retryable", r.retryable(err)).
			Msg("failed to execute statement")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return affected, nil
}

// nextEntity is the state an entity has once w is applied on top of previous.
func nextEntity(w models.EntityWrite, previous *models.Entity) models.Entity {
	next := models.Entity{
		ServerID:   w.ChangeID,
		EntityType: w.EntityType,
		EntityUUID: w.EntityUUID,
		Payload:    w.Payload,
		Version:    w.NextVersion,
		Deleted:    w.Action == models.ActionDelete,
		CreatedAt:  w.ModifiedAt,
		UpdatedAt:  w.ModifiedAt,
		CreatedBy:  w.UserID,
		UpdatedBy:  w.UserID,
	}
	if previous != nil {
		next.ServerID = previous.ServerID
		next.EntityType = previous.EntityType
		next.CreatedAt = previous.CreatedAt
		next.CreatedBy = previous.CreatedBy
	}
	return next
}

func feedItem(w models.EntityWrite, e models.Entity) models.SyncItem {
	return models.SyncItem{
		ID:           w.ChangeID,
		EntityType:   e.EntityType,
		EntityUUID:   e.EntityUUID,
		Payload:      e.Payload,
		Version:      e.Version,
		LastModified: w.ModifiedAt,
		Action:       w.Action,
		CreatedBy:    e.CreatedBy,
		UpdatedBy:    e.UpdatedBy,
	}
}

func receiptFor(w models.EntityWrite) models.ChangeReceipt {
	return models.ChangeReceipt{
		OfflineClientID: w.OfflineClientID,
		EntityUUID:      w.EntityUUID,
		DeclaredVersion: w.DeclaredVersion,
		ChangeID:        w.ChangeID,
		ResultVersion:   w.NextVersion,
		CreatedAt:       w.ModifiedAt,
	}
}
