package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/conflict"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
)

// SystemUser is recorded as the resolver of conflicts resolved at push time.
const SystemUser = "system"

const rollbackMessagePrefix = "batch rolled back: "

// syncService is the Batch Transaction Coordinator and the Change Feed
// Provider.
type syncService struct {
	entities  store.EntityStore
	feed      store.ChangeFeed
	conflicts store.ConflictRepository
	access    AccessService

	ids IDGenerator
	now func() time.Time

	autoResolve  map[models.EntityType]bool
	pullWindow   time.Duration
	defaultLimit int

	logger *logger.Logger
}

// NewSyncService wires the coordinator to its stores. Entity types listed in
// cfg.AutoResolveTypes get last-write-wins applied to update conflicts at
// push time.
func NewSyncService(storages *store.Storages, access AccessService, ids IDGenerator, cfg config.Sync, logger *logger.Logger) SyncService {
	autoResolve := make(map[models.EntityType]bool, len(cfg.AutoResolveTypes))
	for _, t := range cfg.AutoResolveTypes {
		autoResolve[models.EntityType(t)] = true
	}

	return &syncService{
		entities:     storages.Entities,
		feed:         storages.Feed,
		conflicts:    storages.Conflicts,
		access:       access,
		ids:          ids,
		now:          clock,
		autoResolve:  autoResolve,
		pullWindow:   cfg.DefaultPullWindow,
		defaultLimit: cfg.DefaultPullLimit,
		logger:       logger,
	}
}

// clock returns UTC time at the precision of the Postgres timestamp columns,
// so feed cursors round-trip exactly.
func clock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Push implements SyncService.
//
// Authorization is checked for the whole batch before anything is applied.
// The batch then runs detached from ctx cancellation: once started it either
// completes or is fully compensated.
func (s *syncService) Push(ctx context.Context, userID string, changes []models.Change) ([]models.SyncResult, error) {
	if len(changes) == 0 {
		return []models.SyncResult{}, nil
	}

	if err := s.access.Authorize(ctx, userID, changes); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx)

	b := &batch{
		svc:     s,
		userID:  userID,
		results: make([]models.SyncResult, len(changes)),
		seen:    make(map[changeKey]int, len(changes)),
	}

	for i, ch := range changes {
		res, err := b.apply(ctx, i, ch)
		if err != nil {
			log.Err(err).
				Str("offline_client_id", ch.OfflineClientID).
				Int("position", i).
				Msg("change failed, rolling back batch")
			return b.abort(ctx, changes, err), nil
		}
		b.results[i] = res
	}

	if err := s.conflicts.Record(ctx, b.ledger...); err != nil {
		log.Err(err).Int("conflicts", len(b.ledger)).Msg("recording conflicts failed, rolling back batch")
		return b.abort(ctx, changes, err), nil
	}

	log.Info().
		Str("user_id", userID).
		Int("changes", len(changes)).
		Int("applied", len(b.applied)).
		Int("conflicts", len(b.ledger)).
		Msg("batch applied")

	return b.results, nil
}

type changeKey struct {
	offlineClientID string
	declaredVersion int64
}

// batch is the running state of one Push.
type batch struct {
	svc    *syncService
	userID string

	results []models.SyncResult
	applied []models.AppliedChange
	ledger  []models.Conflict

	// seen answers a change repeated inside the same batch with the result
	// of its first occurrence.
	seen map[changeKey]int
}

func (b *batch) apply(ctx context.Context, pos int, ch models.Change) (models.SyncResult, error) {
	s := b.svc
	key := changeKey{ch.OfflineClientID, ch.DeclaredVersion}

	if i, ok := b.seen[key]; ok {
		return b.results[i], nil
	}
	b.seen[key] = pos

	receipt, err := s.entities.GetReceipt(ctx, ch.OfflineClientID, ch.DeclaredVersion)
	switch {
	case err == nil:
		return models.SyncResult{
			OfflineClientID: ch.OfflineClientID,
			ServerID:        receipt.ChangeID,
			Status:          models.SyncStatusSuccess,
			Message:         "change already applied",
		}, nil
	case !errors.Is(err, store.ErrReceiptNotFound):
		return models.SyncResult{}, err
	}

	open, err := s.conflicts.FindOpen(ctx, ch.OfflineClientID, ch.DeclaredVersion)
	switch {
	case err == nil:
		return conflictResult(ch, open, ""), nil
	case !errors.Is(err, store.ErrConflictNotFound):
		return models.SyncResult{}, err
	}

	current, err := b.current(ctx, ch.EntityUUID)
	if err != nil {
		return models.SyncResult{}, err
	}

	if current != nil && ch.Action != models.ActionCreate && current.EntityType != ch.EntityType {
		return models.SyncResult{}, fmt.Errorf("%w: %s is %s", ErrEntityTypeMismatch, ch.EntityUUID, current.EntityType)
	}

	detection := conflict.Detect(ch, current)
	if detection.Conflict {
		return b.recordConflict(ctx, ch, current, detection)
	}

	write := models.EntityWrite{
		ChangeID:        s.ids.Generate(),
		EntityType:      ch.EntityType,
		EntityUUID:      ch.EntityUUID,
		Action:          ch.Action,
		Payload:         ch.Payload,
		ExpectedVersion: detection.ServerVersion,
		NextVersion:     conflict.NextVersion(current),
		UserID:          b.userID,
		ModifiedAt:      s.now(),
		OfflineClientID: ch.OfflineClientID,
		DeclaredVersion: ch.DeclaredVersion,
	}
	if ch.Action == models.ActionDelete && isEmptyDocument(ch.Payload) {
		write.Payload = current.Payload
	}

	applied, err := s.entities.Apply(ctx, write)
	if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrEntityAlreadyExists) {
		// a concurrent batch took the version slot between read and write
		return b.lostRace(ctx, ch)
	}
	if err != nil {
		return models.SyncResult{}, err
	}
	b.applied = append(b.applied, applied)

	return models.SyncResult{
		OfflineClientID: ch.OfflineClientID,
		ServerID:        write.ChangeID,
		Status:          models.SyncStatusSuccess,
	}, nil
}

func (b *batch) lostRace(ctx context.Context, ch models.Change) (models.SyncResult, error) {
	current, err := b.current(ctx, ch.EntityUUID)
	if err != nil {
		return models.SyncResult{}, err
	}

	detection := conflict.Detect(ch, current)
	if !detection.Conflict {
		detection = conflict.Detection{Conflict: true, Reason: conflict.ReasonVersionMismatch}
		if current != nil {
			detection.ServerVersion = current.Version
		}
	}
	return b.recordConflict(ctx, ch, current, detection)
}

// recordConflict queues a ledger record for ch. Update conflicts of
// auto-resolved entity types are settled with last-write-wins right away.
func (b *batch) recordConflict(ctx context.Context, ch models.Change, current *models.Entity, d conflict.Detection) (models.SyncResult, error) {
	s := b.svc

	c := models.Conflict{
		ConflictID:      s.ids.Generate(),
		OfflineClientID: ch.OfflineClientID,
		EntityType:      ch.EntityType,
		EntityUUID:      ch.EntityUUID,
		LocalVersion:    ch.DeclaredVersion,
		ServerVersion:   d.ServerVersion,
		LocalData:       ch.Payload,
		CreatedAt:       s.now(),
		Metadata:        models.ConflictMetadata{ConflictReason: d.Reason},
	}
	if current != nil {
		c.ServerData = current.Payload
	}

	serverID := ""
	if b.autoResolvable(ch, current, d) {
		resolved, id, err := b.autoResolve(ctx, c, current)
		if err != nil {
			return models.SyncResult{}, err
		}
		c, serverID = resolved, id
	}

	b.ledger = append(b.ledger, c)
	return conflictResult(ch, c, serverID), nil
}

func (b *batch) autoResolvable(ch models.Change, current *models.Entity, d conflict.Detection) bool {
	return ch.Action == models.ActionUpdate &&
		b.svc.autoResolve[ch.EntityType] &&
		current != nil && !current.Deleted &&
		d.Reason == conflict.ReasonVersionMismatch
}

// autoResolve applies last-write-wins to c. When the device document wins it
// is written without a receipt, so retries keep being answered from the
// ledger.
func (b *batch) autoResolve(ctx context.Context, c models.Conflict, current *models.Entity) (models.Conflict, string, error) {
	s := b.svc

	out, err := conflict.Resolve(c, models.StrategyLastWriteWins, nil, s.now())
	if err != nil {
		return models.Conflict{}, "", err
	}

	serverID := ""
	resolvedVersion := current.Version
	if out.Decision == conflict.KeepLocal {
		write := models.EntityWrite{
			ChangeID:        s.ids.Generate(),
			EntityType:      current.EntityType,
			EntityUUID:      current.EntityUUID,
			Action:          models.ActionUpdate,
			Payload:         out.Data,
			ExpectedVersion: current.Version,
			NextVersion:     out.Version,
			UserID:          b.userID,
			ModifiedAt:      s.now(),
		}
		applied, err := s.entities.Apply(ctx, write)
		if errors.Is(err, store.ErrVersionConflict) {
			// leave the conflict open for a caller to resolve
			return c, "", nil
		}
		if err != nil {
			return models.Conflict{}, "", err
		}
		b.applied = append(b.applied, applied)
		serverID = write.ChangeID
		resolvedVersion = out.Version
	}

	resolvedAt := s.now()
	c.IsResolved = true
	c.ResolutionStrategy = models.StrategyLastWriteWins
	c.ResolvedAt = &resolvedAt
	c.ResolvedBy = SystemUser
	c.ResolvedData = out.Data
	c.ResolvedVersion = resolvedVersion
	c.Metadata.AutoResolved = true

	return c, serverID, nil
}

// abort compensates every applied change in reverse order and fails every
// result, the failing change included, with the same rollback message.
func (b *batch) abort(ctx context.Context, changes []models.Change, cause error) []models.SyncResult {
	log := logger.FromContext(ctx)

	for i := len(b.applied) - 1; i >= 0; i-- {
		if err := b.svc.entities.Rollback(ctx, b.applied[i]); err != nil {
			log.Err(err).
				Str("change_id", b.applied[i].Write.ChangeID).
				Str("entity_uuid", b.applied[i].Write.EntityUUID).
				Msg("compensating rollback failed")
		}
	}

	message := rollbackMessagePrefix + cause.Error()
	results := make([]models.SyncResult, len(changes))
	for i, ch := range changes {
		results[i] = models.SyncResult{
			OfflineClientID: ch.OfflineClientID,
			Status:          models.SyncStatusFailed,
			Message:         message,
		}
	}

	return results
}

func (b *batch) current(ctx context.Context, entityUUID string) (*models.Entity, error) {
	e, err := b.svc.entities.GetEntity(ctx, entityUUID)
	if errors.Is(err, store.ErrEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func conflictResult(ch models.Change, c models.Conflict, serverID string) models.SyncResult {
	data := &models.ConflictData{
		ConflictID:    c.ConflictID,
		LocalVersion:  c.LocalVersion,
		ServerVersion: c.ServerVersion,
		ServerData:    c.ServerData,
		Reason:        c.Metadata.ConflictReason,
		AutoResolved:  c.Metadata.AutoResolved,
	}

	message := "conflict: " + c.Metadata.ConflictReason
	if c.Metadata.AutoResolved {
		data.ResolvedVersion = c.ResolvedVersion
		message = "conflict auto-resolved with last_write_wins"
	}

	return models.SyncResult{
		OfflineClientID: ch.OfflineClientID,
		ServerID:        serverID,
		Status:          models.SyncStatusConflict,
		Message:         message,
		ConflictData:    data,
	}
}

// Pull implements SyncService.
func (s *syncService) Pull(ctx context.Context, req models.PullRequest) (models.PullResponse, error) {
	now := s.now()

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	since := now.Add(-s.pullWindow)
	if req.LastSyncTimestamp != nil {
		since = *req.LastSyncTimestamp
	}

	set, err := s.access.AuthorizedEntityIDs(ctx, req.UserID)
	if err != nil {
		return models.PullResponse{}, err
	}

	ids := Intersect(req.EntityIDs, set)
	if len(ids) == 0 {
		return models.PullResponse{Items: []models.SyncItem{}, NextTimestamp: now}, nil
	}

	query := models.FeedQuery{
		Since:       since,
		EntityUUIDs: ids,
		EntityTypes: req.EntityTypes,
		Limit:       limit + 1,
	}

	items, err := s.feed.ListChanges(ctx, query)
	if err != nil {
		return models.PullResponse{}, fmt.Errorf("reading change feed failed: %w", err)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	total, err := s.feed.CountChanges(ctx, query)
	if err != nil {
		return models.PullResponse{}, fmt.Errorf("counting change feed failed: %w", err)
	}

	next := now
	if len(items) > 0 {
		next = items[len(items)-1].LastModified
	}

	return models.PullResponse{
		Items:         items,
		HasMore:       hasMore,
		NextTimestamp: next,
		TotalCount:    total,
	}, nil
}

func isEmptyDocument(doc []byte) bool {
	trimmed := bytes.TrimSpace(doc)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
