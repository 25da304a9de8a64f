package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/bilzee/dms-sync/models"
)

type receiptKey struct {
	offlineClientID string
	declaredVersion int64
}

// MemoryStore keeps every sync table in process memory. It implements
// [EntityStore], [ChangeFeed], [AccessRepository] and [ConflictRepository]
// with the same semantics as the PostgreSQL repositories.
type MemoryStore struct {
	mu        sync.RWMutex
	entities  map[string]models.Entity
	changes   []models.SyncItem
	receipts  map[receiptKey]models.ChangeReceipt
	grants    map[string]models.EntitySet
	conflicts map[string]models.Conflict
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[string]models.Entity),
		receipts:  make(map[receiptKey]models.ChangeReceipt),
		grants:    make(map[string]models.EntitySet),
		conflicts: make(map[string]models.Conflict),
	}
}

func (m *MemoryStore) GetEntity(_ context.Context, entityUUID string) (models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[entityUUID]
	if !ok {
		return models.Entity{}, ErrEntityNotFound
	}
	return e, nil
}

func (m *MemoryStore) Apply(_ context.Context, w models.EntityWrite) (models.AppliedChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var previous *models.Entity
	if e, ok := m.entities[w.EntityUUID]; ok {
		previous = &e
	}

	switch {
	case w.Action == models.ActionCreate && previous != nil:
		return models.AppliedChange{}, ErrEntityAlreadyExists
	case w.Action != models.ActionCreate && (previous == nil || previous.Version != w.ExpectedVersion):
		return models.AppliedChange{}, ErrVersionConflict
	}

	next := nextEntity(w, previous)
	m.entities[w.EntityUUID] = next
	m.changes = append(m.changes, feedItem(w, next))
	if w.OfflineClientID != "" {
		m.receipts[receiptKey{w.OfflineClientID, w.DeclaredVersion}] = receiptFor(w)
	}

	return models.AppliedChange{Write: w, Previous: previous}, nil
}

func (m *MemoryStore) Rollback(_ context.Context, applied models.AppliedChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := applied.Write
	current, ok := m.entities[w.EntityUUID]
	if !ok || current.Version != w.NextVersion {
		return fmt.Errorf("failed to roll back change %s: %w", w.ChangeID, ErrVersionConflict)
	}

	if applied.Previous == nil {
		delete(m.entities, w.EntityUUID)
	} else {
		m.entities[w.EntityUUID] = *applied.Previous
	}

	m.changes = slices.DeleteFunc(m.changes, func(item models.SyncItem) bool {
		return item.ID == w.ChangeID
	})
	if w.OfflineClientID != "" {
		delete(m.receipts, receiptKey{w.OfflineClientID, w.DeclaredVersion})
	}

	return nil
}

func (m *MemoryStore) GetReceipt(_ context.Context, offlineClientID string, declaredVersion int64) (models.ChangeReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.receipts[receiptKey{offlineClientID, declaredVersion}]
	if !ok {
		return models.ChangeReceipt{}, ErrReceiptNotFound
	}
	return r, nil
}

func (m *MemoryStore) matchingChanges(q models.FeedQuery) []models.SyncItem {
	var ids, types map[string]struct{}
	if q.EntityUUIDs != nil {
		ids = make(map[string]struct{}, len(q.EntityUUIDs))
		for _, id := range q.EntityUUIDs {
			ids[id] = struct{}{}
		}
	}
	if len(q.EntityTypes) > 0 {
		types = make(map[string]struct{}, len(q.EntityTypes))
		for _, t := range q.EntityTypes {
			types[string(t)] = struct{}{}
		}
	}

	out := make([]models.SyncItem, 0)
	for _, item := range m.changes {
		if item.LastModified.Before(q.Since) {
			continue
		}
		if ids != nil {
			if _, ok := ids[item.EntityUUID]; !ok {
				continue
			}
		}
		if types != nil {
			if _, ok := types[string(item.EntityType)]; !ok {
				continue
			}
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.Before(out[j].LastModified)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) ListChanges(_ context.Context, q models.FeedQuery) ([]models.SyncItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.matchingChanges(q)
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

func (m *MemoryStore) CountChanges(_ context.Context, q models.FeedQuery) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.matchingChanges(q)), nil
}

func (m *MemoryStore) AuthorizedEntityIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.grants[userID]
	if !ok {
		return nil, nil
	}
	return set.IDs(), nil
}

func (m *MemoryStore) GrantEntities(_ context.Context, userID string, entityUUIDs ...string) error {
	if len(entityUUIDs) == 0 {
		return ErrNothingToSave
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.grants[userID]
	if !ok {
		set = models.NewEntitySet()
		m.grants[userID] = set
	}
	for _, id := range entityUUIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) Record(_ context.Context, conflicts ...models.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range conflicts {
		if _, exists := m.conflicts[c.ConflictID]; exists {
			return fmt.Errorf("%w: duplicate conflict id %s", ErrExecutingStatement, c.ConflictID)
		}
	}
	for _, c := range conflicts {
		m.conflicts[c.ConflictID] = c
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, conflictID string) (models.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conflicts[conflictID]
	if !ok {
		return models.Conflict{}, ErrConflictNotFound
	}
	return c, nil
}

func (m *MemoryStore) FindOpen(_ context.Context, offlineClientID string, declaredVersion int64) (models.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		found models.Conflict
		ok    bool
	)
	for _, c := range m.conflicts {
		if c.OfflineClientID != offlineClientID || c.LocalVersion != declaredVersion {
			continue
		}
		if c.IsResolved && !c.Metadata.AutoResolved {
			continue
		}
		if !ok || c.CreatedAt.After(found.CreatedAt) {
			found, ok = c, true
		}
	}
	if !ok {
		return models.Conflict{}, ErrConflictNotFound
	}
	return found, nil
}

func (m *MemoryStore) List(_ context.Context, f models.ConflictFilter) ([]models.Conflict, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scope := models.NewEntitySet(f.EntityUUIDs...)

	matched := make([]models.Conflict, 0)
	for _, c := range m.conflicts {
		if f.EntityUUID != "" && c.EntityUUID != f.EntityUUID {
			continue
		}
		if len(scope) > 0 && !scope.Contains(c.EntityUUID) {
			continue
		}
		if f.EntityType != "" && c.EntityType != f.EntityType {
			continue
		}
		if f.Resolved != nil && c.IsResolved != *f.Resolved {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return strings.Compare(matched[i].ConflictID, matched[j].ConflictID) < 0
	})

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []models.Conflict{}, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) Stats(_ context.Context) (models.ConflictStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.ConflictStats{ByType: make(map[models.EntityType]int)}
	for _, c := range m.conflicts {
		stats.Total++
		stats.ByType[c.EntityType]++
		switch {
		case !c.IsResolved:
			stats.Unresolved++
		case c.Metadata.AutoResolved:
			stats.AutoResolved++
		default:
			stats.ManuallyResolved++
		}
	}
	return stats, nil
}

func (m *MemoryStore) MarkResolved(_ context.Context, conflictID string, r models.ConflictResolution) (models.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conflicts[conflictID]
	if !ok {
		return models.Conflict{}, ErrConflictNotFound
	}
	if c.IsResolved {
		return c, ErrConflictAlreadyResolved
	}

	resolvedAt := r.ResolvedAt
	c.IsResolved = true
	c.ResolutionStrategy = r.Strategy
	c.ResolvedAt = &resolvedAt
	c.ResolvedBy = r.ResolvedBy
	c.ResolvedData = r.ResolvedData
	c.ResolvedVersion = r.Version
	c.ResolutionMetadata = r.Metadata
	c.Metadata.AutoResolved = r.AutoResolved
	m.conflicts[conflictID] = c

	return c, nil
}
