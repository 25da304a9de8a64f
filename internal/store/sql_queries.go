package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
	"github.com/lib/pq"
)

const (
	tableEntities  = "sync_entities"
	tableChanges   = "entity_changes"
	tableReceipts  = "change_receipts"
	tableGrants    = "entity_grants"
	tableConflicts = "sync_conflicts"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var entityColumns = []string{
	"server_id", "entity_type", "entity_uuid", "payload", "version",
	"deleted", "created_at", "updated_at", "created_by", "updated_by",
}

var changeColumns = []string{
	"id", "entity_type", "entity_uuid", "payload", "version",
	"last_modified", "action", "created_by", "updated_by",
}

var receiptColumns = []string{
	"offline_client_id", "entity_uuid", "declared_version",
	"change_id", "result_version", "created_at",
}

var conflictColumns = []string{
	"conflict_id", "offline_client_id", "entity_type", "entity_uuid",
	"local_version", "server_version", "local_data", "server_data",
	"resolution_strategy", "is_resolved", "created_at", "resolved_at",
	"resolved_by", "resolved_data", "resolved_version", "resolution_metadata",
	"conflict_reason", "auto_resolved",
}

// toSQL renders a squirrel builder and wraps failures in [ErrBuildingSQLQuery].
func toSQL(ctx context.Context, fn string, b sq.Sqlizer) (string, []any, error) {
	query, args, err := b.ToSql()
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to build sql query")
		return "", nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return query, args, nil
}

// jsonText renders a document for a NOT NULL JSONB column.
func jsonText(doc json.RawMessage) string {
	if len(doc) == 0 {
		return "null"
	}
	return string(doc)
}

// nullableJSON renders a document for a nullable JSONB column.
func nullableJSON(doc json.RawMessage) any {
	if len(doc) == 0 {
		return nil
	}
	return string(doc)
}

func typeStrings(types []models.EntityType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// ── entities ──

func buildSelectEntityQuery(ctx context.Context, entityUUID string, forUpdate bool) (string, []any, error) {
	b := psql.Select(entityColumns...).
		From(tableEntities).
		Where(sq.Eq{"entity_uuid": entityUUID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	return toSQL(ctx, "buildSelectEntityQuery", b)
}

func buildInsertEntityQuery(ctx context.Context, e models.Entity) (string, []any, error) {
	b := psql.Insert(tableEntities).
		Columns(entityColumns...).
		Values(e.ServerID, string(e.EntityType), e.EntityUUID, jsonText(e.Payload), e.Version,
			e.Deleted, e.CreatedAt, e.UpdatedAt, e.CreatedBy, e.UpdatedBy)
	return toSQL(ctx, "buildInsertEntityQuery", b)
}

// buildUpdateEntityQuery overwrites the mutable columns of an entity while
// its stored version still equals expectedVersion.
func buildUpdateEntityQuery(ctx context.Context, e models.Entity, expectedVersion int64) (string, []any, error) {
	b := psql.Update(tableEntities).
		Set("payload", jsonText(e.Payload)).
		Set("version", e.Version).
		Set("deleted", e.Deleted).
		Set("updated_at", e.UpdatedAt).
		Set("updated_by", e.UpdatedBy).
		Where(sq.Eq{"entity_uuid": e.EntityUUID, "version": expectedVersion})
	return toSQL(ctx, "buildUpdateEntityQuery", b)
}

func buildDeleteEntityQuery(ctx context.Context, entityUUID string, version int64) (string, []any, error) {
	b := psql.Delete(tableEntities).
		Where(sq.Eq{"entity_uuid": entityUUID, "version": version})
	return toSQL(ctx, "buildDeleteEntityQuery", b)
}

// ── change feed ──

func buildInsertChangeQuery(ctx context.Context, item models.SyncItem) (string, []any, error) {
	b := psql.Insert(tableChanges).
		Columns(changeColumns...).
		Values(item.ID, string(item.EntityType), item.EntityUUID, jsonText(item.Payload), item.Version,
			item.LastModified, string(item.Action), item.CreatedBy, item.UpdatedBy)
	return toSQL(ctx, "buildInsertChangeQuery", b)
}

func buildDeleteChangeQuery(ctx context.Context, changeID string) (string, []any, error) {
	b := psql.Delete(tableChanges).Where(sq.Eq{"id": changeID})
	return toSQL(ctx, "buildDeleteChangeQuery", b)
}

func feedFilter(q models.FeedQuery) sq.And {
	where := sq.And{sq.GtOrEq{"last_modified": q.Since}}
	if q.EntityUUIDs != nil {
		where = append(where, sq.Expr("entity_uuid = ANY(?)", pq.Array(q.EntityUUIDs)))
	}
	if len(q.EntityTypes) > 0 {
		where = append(where, sq.Expr("entity_type = ANY(?)", pq.Array(typeStrings(q.EntityTypes))))
	}
	return where
}

// buildListChangesQuery selects one page of the feed ordered by the
// (last_modified, id) cursor.
func buildListChangesQuery(ctx context.Context, q models.FeedQuery) (string, []any, error) {
	b := psql.Select(changeColumns...).
		From(tableChanges).
		Where(feedFilter(q)).
		OrderBy("last_modified ASC", "id ASC")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return toSQL(ctx, "buildListChangesQuery", b)
}

func buildCountChangesQuery(ctx context.Context, q models.FeedQuery) (string, []any, error) {
	b := psql.Select("COUNT(*)").
		From(tableChanges).
		Where(feedFilter(q))
	return toSQL(ctx, "buildCountChangesQuery", b)
}

// ── receipts ──

func buildInsertReceiptQuery(ctx context.Context, r models.ChangeReceipt) (string, []any, error) {
	b := psql.Insert(tableReceipts).
		Columns(receiptColumns...).
		Values(r.OfflineClientID, r.EntityUUID, r.DeclaredVersion, r.ChangeID, r.ResultVersion, r.CreatedAt)
	return toSQL(ctx, "buildInsertReceiptQuery", b)
}

func buildSelectReceiptQuery(ctx context.Context, offlineClientID string, declaredVersion int64) (string, []any, error) {
	b := psql.Select(receiptColumns...).
		From(tableReceipts).
		Where(sq.Eq{"offline_client_id": offlineClientID, "declared_version": declaredVersion})
	return toSQL(ctx, "buildSelectReceiptQuery", b)
}

func buildDeleteReceiptQuery(ctx context.Context, offlineClientID string, declaredVersion int64) (string, []any, error) {
	b := psql.Delete(tableReceipts).
		Where(sq.Eq{"offline_client_id": offlineClientID, "declared_version": declaredVersion})
	return toSQL(ctx, "buildDeleteReceiptQuery", b)
}

// ── grants ──

func buildSelectGrantsQuery(ctx context.Context, userID string) (string, []any, error) {
	b := psql.Select("entity_uuid").
		From(tableGrants).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("entity_uuid")
	return toSQL(ctx, "buildSelectGrantsQuery", b)
}

func buildInsertGrantsQuery(ctx context.Context, userID string, entityUUIDs []string, grantedAt time.Time) (string, []any, error) {
	b := psql.Insert(tableGrants).Columns("user_id", "entity_uuid", "granted_at")
	for _, id := range entityUUIDs {
		b = b.Values(userID, id, grantedAt)
	}
	b = b.Suffix("ON CONFLICT (user_id, entity_uuid) DO NOTHING")
	return toSQL(ctx, "buildInsertGrantsQuery", b)
}

// ── conflict ledger ──

func conflictValues(c models.Conflict) []any {
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = *c.ResolvedAt
	}
	return []any{
		c.ConflictID, c.OfflineClientID, string(c.EntityType), c.EntityUUID,
		c.LocalVersion, c.ServerVersion, nullableJSON(c.LocalData), nullableJSON(c.ServerData),
		c.ResolutionStrategy.String(), c.IsResolved, c.CreatedAt, resolvedAt,
		c.ResolvedBy, nullableJSON(c.ResolvedData), c.ResolvedVersion, nullableJSON(c.ResolutionMetadata),
		c.Metadata.ConflictReason, c.Metadata.AutoResolved,
	}
}

func buildInsertConflictsQuery(ctx context.Context, conflicts []models.Conflict) (string, []any, error) {
	b := psql.Insert(tableConflicts).Columns(conflictColumns...)
	for _, c := range conflicts {
		b = b.Values(conflictValues(c)...)
	}
	return toSQL(ctx, "buildInsertConflictsQuery", b)
}

func buildSelectConflictQuery(ctx context.Context, conflictID string) (string, []any, error) {
	b := psql.Select(conflictColumns...).
		From(tableConflicts).
		Where(sq.Eq{"conflict_id": conflictID})
	return toSQL(ctx, "buildSelectConflictQuery", b)
}

func buildFindOpenConflictQuery(ctx context.Context, offlineClientID string, declaredVersion int64) (string, []any, error) {
	b := psql.Select(conflictColumns...).
		From(tableConflicts).
		Where(sq.Eq{"offline_client_id": offlineClientID, "local_version": declaredVersion}).
		Where(sq.Or{sq.Eq{"is_resolved": false}, sq.Eq{"auto_resolved": true}}).
		OrderBy("created_at DESC").
		Limit(1)
	return toSQL(ctx, "buildFindOpenConflictQuery", b)
}

func conflictFilter(f models.ConflictFilter) sq.Eq {
	where := sq.Eq{}
	if f.EntityUUID != "" {
		where["entity_uuid"] = f.EntityUUID
	}
	if f.EntityType != "" {
		where["entity_type"] = string(f.EntityType)
	}
	if f.Resolved != nil {
		where["is_resolved"] = *f.Resolved
	}
	return where
}

// whereConflicts applies f to a ledger query.
func whereConflicts(b sq.SelectBuilder, f models.ConflictFilter) sq.SelectBuilder {
	b = b.Where(conflictFilter(f))
	if len(f.EntityUUIDs) > 0 {
		b = b.Where(sq.Expr("entity_uuid = ANY(?)", pq.Array(f.EntityUUIDs)))
	}
	return b
}

func buildListConflictsQuery(ctx context.Context, f models.ConflictFilter) (string, []any, error) {
	b := whereConflicts(psql.Select(conflictColumns...).From(tableConflicts), f).
		OrderBy("created_at DESC", "conflict_id ASC")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return toSQL(ctx, "buildListConflictsQuery", b)
}

func buildCountConflictsQuery(ctx context.Context, f models.ConflictFilter) (string, []any, error) {
	b := whereConflicts(psql.Select("COUNT(*)").From(tableConflicts), f)
	return toSQL(ctx, "buildCountConflictsQuery", b)
}

func buildConflictStatsQuery(ctx context.Context) (string, []any, error) {
	b := psql.Select(
		"COUNT(*)",
		"COUNT(*) FILTER (WHERE NOT is_resolved)",
		"COUNT(*) FILTER (WHERE is_resolved AND auto_resolved)",
		"COUNT(*) FILTER (WHERE is_resolved AND NOT auto_resolved)",
	).From(tableConflicts)
	return toSQL(ctx, "buildConflictStatsQuery", b)
}

func buildConflictsByTypeQuery(ctx context.Context) (string, []any, error) {
	b := psql.Select("entity_type", "COUNT(*)").
		From(tableConflicts).
		GroupBy("entity_type").
		OrderBy("entity_type")
	return toSQL(ctx, "buildConflictsByTypeQuery", b)
}

// buildMarkResolvedQuery transitions an unresolved entry and returns the
// stored row. No row comes back when the entry is missing or already resolved.
func buildMarkResolvedQuery(ctx context.Context, conflictID string, r models.ConflictResolution) (string, []any, error) {
	b := psql.Update(tableConflicts).
		Set("is_resolved", true).
		Set("resolution_strategy", r.Strategy.String()).
		Set("resolved_at", r.ResolvedAt).
		Set("resolved_by", r.ResolvedBy).
		Set("resolved_data", nullableJSON(r.ResolvedData)).
		Set("resolved_version", r.Version).
		Set("resolution_metadata", nullableJSON(r.Metadata)).
		Set("auto_resolved", r.AutoResolved).
		Where(sq.Eq{"conflict_id": conflictID, "is_resolved": false}).
		Suffix("RETURNING " + strings.Join(conflictColumns, ", "))
	return toSQL(ctx, "buildMarkResolvedQuery", b)
}
