package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bilzee/dms-sync/internal/conflict"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
)

const exportPageSize = 500

// ExportColumns is the header row of the ledger CSV export.
var ExportColumns = []string{
	"conflict_id", "offline_client_id", "entity_type", "entity_uuid",
	"local_version", "server_version", "local_data", "server_data",
	"resolution_strategy", "is_resolved", "created_at", "resolved_at",
	"resolved_by", "resolved_data", "resolved_version", "resolution_metadata",
	"conflict_reason", "auto_resolved",
}

type conflictService struct {
	conflicts store.ConflictRepository
	entities  store.EntityStore
	access    AccessService

	ids IDGenerator
	now func() time.Time

	logger *logger.Logger
}

// NewConflictService constructs the ledger service. Resolutions write the
// resolved document through the same change store as pushes. Every
// per-user operation is limited to the entities the user is granted.
func NewConflictService(storages *store.Storages, access AccessService, ids IDGenerator, logger *logger.Logger) ConflictService {
	return &conflictService{
		conflicts: storages.Conflicts,
		entities:  storages.Entities,
		access:    access,
		ids:       ids,
		now:       clock,
		logger:    logger,
	}
}

// Resolve implements ConflictService.
//
// The resolved document is applied guarded by the server version recorded in
// the ledger entry, then the entry is marked resolved. When another caller
// resolved the entry first, the write is compensated and the stored result is
// returned with status already_resolved.
func (c *conflictService) Resolve(ctx context.Context, userID string, r models.Resolution) (models.ResolutionResult, error) {
	log := logger.FromContext(ctx).With().Str("conflict_id", r.ConflictID).Logger()

	entry, err := c.Get(ctx, userID, r.ConflictID)
	if err != nil {
		return models.ResolutionResult{}, err
	}
	if entry.IsResolved {
		return alreadyResolved(entry), nil
	}
	if entry.EntityType != r.EntityType || entry.EntityUUID != r.EntityUUID {
		return models.ResolutionResult{}, fmt.Errorf("%w: conflict %s is for %s %s",
			ErrConflictEntityMismatch, entry.ConflictID, entry.EntityType, entry.EntityUUID)
	}

	now := c.now()
	out, err := conflict.Resolve(entry, r.ResolutionStrategy, r.ResolvedData, now)
	if err != nil {
		return models.ResolutionResult{}, err
	}

	applied, err := c.write(ctx, userID, entry, out, now)
	if err != nil {
		return models.ResolutionResult{}, err
	}

	resolved, err := c.conflicts.MarkResolved(ctx, entry.ConflictID, models.ConflictResolution{
		Strategy:     out.Strategy,
		ResolvedAt:   now,
		ResolvedBy:   userID,
		ResolvedData: out.Data,
		Version:      out.Version,
		Metadata:     r.Metadata,
	})
	if err != nil {
		if rbErr := c.entities.Rollback(ctx, applied); rbErr != nil {
			log.Err(rbErr).Str("change_id", applied.Write.ChangeID).Msg("compensating resolution write failed")
		}
		if errors.Is(err, store.ErrConflictAlreadyResolved) {
			return alreadyResolved(resolved), nil
		}
		return models.ResolutionResult{}, err
	}

	log.Info().
		Str("strategy", out.Strategy.String()).
		Str("decision", string(out.Decision)).
		Int64("version", out.Version).
		Msg("conflict resolved")

	return models.ResolutionResult{
		ConflictID:         resolved.ConflictID,
		Status:             models.ResolutionStatusResolved,
		Message:            "Conflict resolved",
		ResolutionStrategy: resolved.ResolutionStrategy,
		ResolvedData:       resolved.ResolvedData,
		ResolvedVersion:    resolved.ResolvedVersion,
		ResolvedAt:         resolved.ResolvedAt,
		ResolvedBy:         resolved.ResolvedBy,
	}, nil
}

// write stores the resolved document. An entity that vanished after the
// conflict was recorded is created again.
func (c *conflictService) write(ctx context.Context, userID string, entry models.Conflict, out conflict.Outcome, now time.Time) (models.AppliedChange, error) {
	w := models.EntityWrite{
		ChangeID:        c.ids.Generate(),
		EntityType:      entry.EntityType,
		EntityUUID:      entry.EntityUUID,
		Action:          models.ActionUpdate,
		Payload:         out.Data,
		ExpectedVersion: entry.ServerVersion,
		NextVersion:     out.Version,
		UserID:          userID,
		ModifiedAt:      now,
	}

	current, err := c.entities.GetEntity(ctx, entry.EntityUUID)
	switch {
	case errors.Is(err, store.ErrEntityNotFound):
		if entry.ServerVersion != 0 {
			return models.AppliedChange{}, ErrStaleResolution
		}
		w.Action = models.ActionCreate
	case err != nil:
		return models.AppliedChange{}, err
	case current.Version != entry.ServerVersion:
		return models.AppliedChange{}, fmt.Errorf("%w: entity is at version %d, conflict saw %d",
			ErrStaleResolution, current.Version, entry.ServerVersion)
	}

	applied, err := c.entities.Apply(ctx, w)
	if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrEntityAlreadyExists) {
		return models.AppliedChange{}, fmt.Errorf("%w: %w", ErrStaleResolution, err)
	}
	return applied, err
}

func alreadyResolved(c models.Conflict) models.ResolutionResult {
	return models.ResolutionResult{
		ConflictID:         c.ConflictID,
		Status:             models.ResolutionStatusAlreadyResolved,
		Message:            MessageAlreadyResolved,
		ResolutionStrategy: c.ResolutionStrategy,
		ResolvedData:       c.ResolvedData,
		ResolvedVersion:    c.ResolvedVersion,
		ResolvedAt:         c.ResolvedAt,
		ResolvedBy:         c.ResolvedBy,
	}
}

func (c *conflictService) ResolveBatch(ctx context.Context, userID string, resolutions []models.Resolution) []models.ResolutionResult {
	results := make([]models.ResolutionResult, len(resolutions))
	for i, r := range resolutions {
		res, err := c.Resolve(ctx, userID, r)
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("conflict_id", r.ConflictID).Msg("resolution failed")
			res = models.ResolutionResult{
				ConflictID: r.ConflictID,
				Status:     models.ResolutionStatusFailed,
				Message:    failureMessage(err),
			}
		}
		results[i] = res
	}
	return results
}

// failureMessage is the per-item message of a failed batch resolution.
// Store and driver errors are not shown to the caller.
func failureMessage(err error) string {
	for _, known := range resolutionErrors {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return MessageResolutionFailed
}

var resolutionErrors = []error{
	store.ErrConflictNotFound,
	ErrUnauthorizedEntities,
	ErrConflictEntityMismatch,
	ErrStaleResolution,
	conflict.ErrManualResolutionRequiresData,
	conflict.ErrMergeRequiresObjects,
	conflict.ErrUnsupportedStrategy,
}

// Get returns a ledger entry when its entity is granted to userID.
func (c *conflictService) Get(ctx context.Context, userID, conflictID string) (models.Conflict, error) {
	entry, err := c.conflicts.Get(ctx, conflictID)
	if err != nil {
		return models.Conflict{}, err
	}

	set, err := c.access.AuthorizedEntityIDs(ctx, userID)
	if err != nil {
		return models.Conflict{}, err
	}
	if !set.Contains(entry.EntityUUID) {
		logger.FromContext(ctx).Warn().
			Str("conflict_id", conflictID).
			Str("entity_uuid", entry.EntityUUID).
			Msg("conflict entity is not granted")
		return models.Conflict{}, &EntityAccessError{EntityIDs: []string{entry.EntityUUID}}
	}
	return entry, nil
}

// scope narrows filter to the entities granted to userID. ok is false when
// nothing can match.
func (c *conflictService) scope(ctx context.Context, userID string, filter models.ConflictFilter) (models.ConflictFilter, bool, error) {
	set, err := c.access.AuthorizedEntityIDs(ctx, userID)
	if err != nil {
		return filter, false, err
	}

	var requested []string
	if filter.EntityUUID != "" {
		requested = []string{filter.EntityUUID}
	}
	ids := Intersect(requested, set)
	filter.EntityUUIDs = ids
	return filter, len(ids) > 0, nil
}

func (c *conflictService) List(ctx context.Context, userID string, filter models.ConflictFilter, page int) (models.ConflictPage, error) {
	filter, ok, err := c.scope(ctx, userID, filter)
	if err != nil {
		return models.ConflictPage{}, err
	}
	if !ok {
		return models.ConflictPage{Conflicts: []models.Conflict{}, Page: page, Limit: filter.Limit}, nil
	}

	items, total, err := c.conflicts.List(ctx, filter)
	if err != nil {
		return models.ConflictPage{}, fmt.Errorf("listing conflicts failed: %w", err)
	}
	if items == nil {
		items = []models.Conflict{}
	}

	return models.ConflictPage{
		Conflicts: items,
		Page:      page,
		Limit:     filter.Limit,
		Total:     total,
	}, nil
}

// Summary implements ConflictService. ResolutionRate is a percentage.
func (c *conflictService) Summary(ctx context.Context) (models.ConflictStats, error) {
	stats, err := c.conflicts.Stats(ctx)
	if err != nil {
		return models.ConflictStats{}, fmt.Errorf("loading conflict stats failed: %w", err)
	}
	if stats.ByType == nil {
		stats.ByType = map[models.EntityType]int{}
	}
	stats.ResolutionRate = ResolutionRate(stats)
	return stats, nil
}

// ResolutionRate is (autoResolved + manuallyResolved) / total * 100, or 0
// for an empty ledger.
func ResolutionRate(stats models.ConflictStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.AutoResolved+stats.ManuallyResolved) / float64(stats.Total) * 100
}

// Export writes the ledger entries of the user's granted entities as CSV,
// newest entry first.
func (c *conflictService) Export(ctx context.Context, userID string, w io.Writer) error {
	filter, ok, err := c.scope(ctx, userID, models.ConflictFilter{})
	if err != nil {
		return err
	}
	if !ok {
		return writeExport(ctx, nil, filter, w)
	}
	return writeExport(ctx, c.conflicts, filter, w)
}

// ExportAll writes the whole ledger. It backs the operator CLI only.
func (c *conflictService) ExportAll(ctx context.Context, w io.Writer) error {
	return writeExport(ctx, c.conflicts, models.ConflictFilter{}, w)
}

// writeExport pages through conflicts with filter. A nil repository writes
// the header row only.
func writeExport(ctx context.Context, conflicts store.ConflictRepository, filter models.ConflictFilter, w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ExportColumns); err != nil {
		return fmt.Errorf("writing export header failed: %w", err)
	}

	for offset := 0; conflicts != nil; offset += exportPageSize {
		filter.Limit, filter.Offset = exportPageSize, offset
		items, total, err := conflicts.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("listing conflicts for export failed: %w", err)
		}
		for _, item := range items {
			if err = writer.Write(exportRow(item)); err != nil {
				return fmt.Errorf("writing export row failed: %w", err)
			}
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}

	writer.Flush()
	return writer.Error()
}

func exportRow(c models.Conflict) []string {
	resolvedAt := ""
	if c.ResolvedAt != nil {
		resolvedAt = c.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}

	return []string{
		c.ConflictID,
		c.OfflineClientID,
		string(c.EntityType),
		c.EntityUUID,
		strconv.FormatInt(c.LocalVersion, 10),
		strconv.FormatInt(c.ServerVersion, 10),
		string(c.LocalData),
		string(c.ServerData),
		c.ResolutionStrategy.String(),
		strconv.FormatBool(c.IsResolved),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		resolvedAt,
		c.ResolvedBy,
		string(c.ResolvedData),
		strconv.FormatInt(c.ResolvedVersion, 10),
		string(c.ResolutionMetadata),
		c.Metadata.ConflictReason,
		strconv.FormatBool(c.Metadata.AutoResolved),
	}
}
