package store

import (
	"context"
	"testing"
	"time"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createWrite(id, entityUUID string, at time.Time) models.EntityWrite {
	return models.EntityWrite{
		ChangeID:        id,
		EntityType:      models.EntityTypeAssessment,
		EntityUUID:      entityUUID,
		Action:          models.ActionCreate,
		Payload:         []byte(`{"v":1}`),
		NextVersion:     1,
		UserID:          "u-1",
		ModifiedAt:      at,
		OfflineClientID: "off-" + id,
		DeclaredVersion: 1,
	}
}

func TestMemoryStore_ApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	created, err := m.Apply(ctx, createWrite("c1", "e-1", testTime))
	require.NoError(t, err)
	assert.Nil(t, created.Previous)

	_, err = m.Apply(ctx, createWrite("c2", "e-1", testTime))
	require.ErrorIs(t, err, ErrEntityAlreadyExists)

	update := models.EntityWrite{
		ChangeID: "u1", EntityUUID: "e-1", Action: models.ActionUpdate,
		Payload: []byte(`{"v":2}`), ExpectedVersion: 1, NextVersion: 2,
		UserID: "u-2", ModifiedAt: testTime.Add(time.Minute),
		OfflineClientID: "off-u1", DeclaredVersion: 1,
	}
	updated, err := m.Apply(ctx, update)
	require.NoError(t, err)
	require.NotNil(t, updated.Previous)

	stale := update
	stale.ChangeID = "u2"
	_, err = m.Apply(ctx, stale)
	require.ErrorIs(t, err, ErrVersionConflict)

	e, err := m.GetEntity(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Version)
	assert.Equal(t, "c1", e.ServerID)
	assert.Equal(t, "u-1", e.CreatedBy)
	assert.Equal(t, "u-2", e.UpdatedBy)

	_, err = m.GetReceipt(ctx, "off-u1", 1)
	require.NoError(t, err)

	// compensate in reverse order
	require.NoError(t, m.Rollback(ctx, updated))
	e, err = m.GetEntity(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Version)
	assert.JSONEq(t, `{"v":1}`, string(e.Payload))

	_, err = m.GetReceipt(ctx, "off-u1", 1)
	require.ErrorIs(t, err, ErrReceiptNotFound)

	require.NoError(t, m.Rollback(ctx, created))
	_, err = m.GetEntity(ctx, "e-1")
	require.ErrorIs(t, err, ErrEntityNotFound)

	items, err := m.ListChanges(ctx, models.FeedQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryStore_RollbackAfterEntityMoved(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	created, err := m.Apply(ctx, createWrite("c1", "e-1", testTime))
	require.NoError(t, err)

	_, err = m.Apply(ctx, models.EntityWrite{
		ChangeID: "u1", EntityUUID: "e-1", Action: models.ActionUpdate,
		ExpectedVersion: 1, NextVersion: 2, ModifiedAt: testTime,
	})
	require.NoError(t, err)

	require.ErrorIs(t, m.Rollback(ctx, created), ErrVersionConflict)
}

func TestMemoryStore_Feed(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	// same timestamp: ties are ordered by id
	for _, w := range []models.EntityWrite{
		createWrite("b", "e-2", testTime),
		createWrite("a", "e-1", testTime),
		createWrite("c", "e-3", testTime.Add(time.Second)),
	} {
		_, err := m.Apply(ctx, w)
		require.NoError(t, err)
	}

	items, err := m.ListChanges(ctx, models.FeedQuery{Since: testTime, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	items, err = m.ListChanges(ctx, models.FeedQuery{Since: testTime, EntityUUIDs: []string{"e-3"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ID)

	items, err = m.ListChanges(ctx, models.FeedQuery{Since: testTime, EntityUUIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, items)

	total, err := m.CountChanges(ctx, models.FeedQuery{Since: testTime.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	items, err = m.ListChanges(ctx, models.FeedQuery{Since: testTime, EntityTypes: []models.EntityType{models.EntityTypeResponse}})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryStore_Grants(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	ids, err := m.AuthorizedEntityIDs(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, m.GrantEntities(ctx, "u-1", "e-2", "e-1"))
	require.NoError(t, m.GrantEntities(ctx, "u-1", "e-1"))
	require.ErrorIs(t, m.GrantEntities(ctx, "u-1"), ErrNothingToSave)

	ids, err = m.AuthorizedEntityIDs(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e-1", "e-2"}, ids)
}

func TestMemoryStore_Ledger(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	open := models.Conflict{
		ConflictID: "c-1", OfflineClientID: "off-1", EntityType: models.EntityTypeAssessment,
		EntityUUID: "e-1", LocalVersion: 1, ServerVersion: 2, CreatedAt: testTime,
	}
	auto := models.Conflict{
		ConflictID: "c-2", OfflineClientID: "off-2", EntityType: models.EntityTypeResponse,
		EntityUUID: "e-2", LocalVersion: 1, ServerVersion: 2, CreatedAt: testTime.Add(time.Second),
		IsResolved: true, ResolutionStrategy: models.StrategyLastWriteWins,
		Metadata: models.ConflictMetadata{AutoResolved: true},
	}
	require.NoError(t, m.Record(ctx, open, auto))
	require.Error(t, m.Record(ctx, open))

	found, err := m.FindOpen(ctx, "off-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "c-1", found.ConflictID)

	found, err = m.FindOpen(ctx, "off-2", 1)
	require.NoError(t, err)
	assert.Equal(t, "c-2", found.ConflictID)

	_, err = m.FindOpen(ctx, "off-1", 9)
	require.ErrorIs(t, err, ErrConflictNotFound)

	list, total, err := m.List(ctx, models.ConflictFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, "c-2", list[0].ConflictID)

	resolved := false
	list, total, err = m.List(ctx, models.ConflictFilter{Resolved: &resolved})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "c-1", list[0].ConflictID)

	list, _, err = m.List(ctx, models.ConflictFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, total, err = m.List(ctx, models.ConflictFilter{EntityUUIDs: []string{"e-2", "e-9"}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "c-2", list[0].ConflictID)

	res := models.ConflictResolution{Strategy: models.StrategyManual, ResolvedAt: testTime, ResolvedBy: "u-1", Version: 3}
	c, err := m.MarkResolved(ctx, "c-1", res)
	require.NoError(t, err)
	assert.True(t, c.IsResolved)
	assert.Equal(t, int64(3), c.ResolvedVersion)

	// a manually resolved entry no longer answers retries
	_, err = m.FindOpen(ctx, "off-1", 1)
	require.ErrorIs(t, err, ErrConflictNotFound)

	again, err := m.MarkResolved(ctx, "c-1", models.ConflictResolution{Strategy: models.StrategyMerge})
	require.ErrorIs(t, err, ErrConflictAlreadyResolved)
	assert.Equal(t, models.StrategyManual, again.ResolutionStrategy)

	_, err = m.MarkResolved(ctx, "c-404", res)
	require.ErrorIs(t, err, ErrConflictNotFound)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Unresolved)
	assert.Equal(t, 1, stats.AutoResolved)
	assert.Equal(t, 1, stats.ManuallyResolved)
	assert.Equal(t, 1, stats.ByType[models.EntityTypeAssessment])
}

func TestNewStorages_EmptyDSNUsesMemory(t *testing.T) {
	s, err := NewStorages(context.Background(), config.DB{}, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, s.Entities)
	require.NotNil(t, s.Feed)
	require.NotNil(t, s.Access)
	require.NotNil(t, s.Conflicts)
	require.NoError(t, s.Close())
}
