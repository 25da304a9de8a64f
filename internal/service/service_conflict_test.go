package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/bilzee/dms-sync/internal/conflict"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/mock"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const coordinator = "coordinator-1"

type conflictFixture struct {
	*syncFixture
	conflicts *conflictService
}

func newConflictFixture(t *testing.T) *conflictFixture {
	t.Helper()
	f := newSyncFixture(t)

	require.NoError(t, f.storages.Access.GrantEntities(context.Background(), coordinator, "e-1", "e-2", "e-3", "e-4", "e-5"))

	access := NewAccessService(f.storages.Access, logger.Nop())
	ids := &sequenceIDs{prefix: fmt.Sprintf("res%d", fixtureSeq.Add(1))}
	svc := NewConflictService(f.storages, access, ids, logger.Nop()).(*conflictService)
	svc.now = f.clock.Now

	return &conflictFixture{syncFixture: f, conflicts: svc}
}

// staleConflict moves e-1 to serverVersion and pushes a device update that
// declares localVersion. It returns the recorded ledger entry.
func (f *conflictFixture) staleConflict(t *testing.T, entityUUID string, serverVersion, localVersion int64, server, local string) models.Conflict {
	t.Helper()

	f.push(t, change("seed-"+entityUUID, models.ActionCreate, entityUUID, 1, server))
	for v := int64(1); v < serverVersion; v++ {
		f.push(t, change(fmt.Sprintf("bump-%s-%d", entityUUID, v), models.ActionUpdate, entityUUID, v, server))
	}

	results := f.push(t, change("stale-"+entityUUID, models.ActionUpdate, entityUUID, localVersion, local))
	require.Equal(t, models.SyncStatusConflict, results[0].Status)

	entry, err := f.storages.Conflicts.Get(context.Background(), results[0].ConflictData.ConflictID)
	require.NoError(t, err)
	return entry
}

func resolutionFor(c models.Conflict, strategy models.ResolutionStrategy, data string) models.Resolution {
	r := models.Resolution{
		ConflictID:         c.ConflictID,
		ResolutionStrategy: strategy,
		EntityType:         c.EntityType,
		EntityUUID:         c.EntityUUID,
	}
	if data != "" {
		r.ResolvedData = json.RawMessage(data)
	}
	return r
}

func TestConflictService_Resolve_ManualWithoutData(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{"a":1}`, `{"a":2}`)

	_, err := f.conflicts.Resolve(context.Background(), coordinator, resolutionFor(c, models.StrategyManual, ""))

	require.Error(t, err)
	assert.ErrorIs(t, err, conflict.ErrManualResolutionRequiresData)

	entry, err := f.storages.Conflicts.Get(context.Background(), c.ConflictID)
	require.NoError(t, err)
	assert.False(t, entry.IsResolved)
	assert.Equal(t, int64(2), f.entity(t, "e-1").Version)
}

func TestConflictService_Resolve_Manual(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{"a":1}`, `{"a":2}`)

	res, err := f.conflicts.Resolve(context.Background(), coordinator, resolutionFor(c, models.StrategyManual, `{"a":"agreed"}`))

	require.NoError(t, err)
	assert.Equal(t, models.ResolutionStatusResolved, res.Status)
	assert.Equal(t, "Conflict resolved", res.Message)
	assert.Equal(t, int64(3), res.ResolvedVersion)
	assert.Equal(t, coordinator, res.ResolvedBy)
	require.NotNil(t, res.ResolvedAt)

	e := f.entity(t, "e-1")
	assert.Equal(t, int64(3), e.Version)
	assert.JSONEq(t, `{"a":"agreed"}`, string(e.Payload))
	assert.Equal(t, coordinator, e.UpdatedBy)
}

func TestConflictService_Resolve_MergeVersion(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 3, 5, `{"shared":"server","s":1}`, `{"shared":"device","l":1}`)
	require.Equal(t, int64(5), c.LocalVersion)
	require.Equal(t, int64(3), c.ServerVersion)

	res, err := f.conflicts.Resolve(context.Background(), coordinator, resolutionFor(c, models.StrategyMerge, ""))

	require.NoError(t, err)
	assert.Equal(t, int64(6), res.ResolvedVersion)

	var merged map[string]any
	require.NoError(t, json.Unmarshal(res.ResolvedData, &merged))
	assert.Equal(t, "server", merged["shared"])
	assert.Equal(t, float64(1), merged["l"])
	assert.Equal(t, float64(1), merged["s"])
	assert.Equal(t, conflict.MergeSource, merged[conflict.MergeSourceField])

	assert.Equal(t, int64(6), f.entity(t, "e-1").Version)
}

func TestConflictService_Resolve_LastWriteWinsAlwaysWrites(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{"lastModified":"2026-04-01T11:00:00Z"}`, `{"lastModified":"2026-04-01T10:00:00Z"}`)

	res, err := f.conflicts.Resolve(context.Background(), coordinator, resolutionFor(c, models.StrategyLastWriteWins, ""))

	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ResolvedVersion)
	assert.JSONEq(t, `{"lastModified":"2026-04-01T11:00:00Z"}`, string(res.ResolvedData))
	assert.Equal(t, int64(3), f.entity(t, "e-1").Version)
}

func TestConflictService_Resolve_AlreadyResolved(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{"a":1}`, `{"a":2}`)
	ctx := context.Background()

	first, err := f.conflicts.Resolve(ctx, coordinator, resolutionFor(c, models.StrategyManual, `{"a":3}`))
	require.NoError(t, err)

	second, err := f.conflicts.Resolve(ctx, testUser, resolutionFor(c, models.StrategyMerge, ""))

	require.NoError(t, err)
	assert.Equal(t, models.ResolutionStatusAlreadyResolved, second.Status)
	assert.Equal(t, MessageAlreadyResolved, second.Message)
	assert.Equal(t, first.ResolvedVersion, second.ResolvedVersion)
	assert.Equal(t, coordinator, second.ResolvedBy)
	assert.Equal(t, models.StrategyManual, second.ResolutionStrategy)
	assert.Equal(t, int64(3), f.entity(t, "e-1").Version)
}

func TestConflictService_Resolve_EntityMismatch(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)

	r := resolutionFor(c, models.StrategyLastWriteWins, "")
	r.EntityUUID = "e-2"
	_, err := f.conflicts.Resolve(context.Background(), coordinator, r)

	assert.ErrorIs(t, err, ErrConflictEntityMismatch)
}

func TestConflictService_Resolve_Stale(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)

	// the entity moves on after the conflict was recorded
	f.push(t, change("later", models.ActionUpdate, "e-1", 2, `{"later":true}`))

	_, err := f.conflicts.Resolve(context.Background(), coordinator, resolutionFor(c, models.StrategyLastWriteWins, ""))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleResolution)

	entry, err := f.storages.Conflicts.Get(context.Background(), c.ConflictID)
	require.NoError(t, err)
	assert.False(t, entry.IsResolved)
}

func TestConflictService_Resolve_RecreatesMissingEntity(t *testing.T) {
	f := newConflictFixture(t)

	results := f.push(t, change("o-1", models.ActionUpdate, "e-4", 2, `{"restored":true}`))
	require.Equal(t, models.SyncStatusConflict, results[0].Status)
	c, err := f.storages.Conflicts.Get(context.Background(), results[0].ConflictData.ConflictID)
	require.NoError(t, err)

	res, err := f.conflicts.Resolve(context.Background(), coordinator, resolutionFor(c, models.StrategyManual, `{"restored":true}`))

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ResolvedVersion)
	assert.Equal(t, int64(1), f.entity(t, "e-4").Version)
}

func TestConflictService_Resolve_UnknownConflict(t *testing.T) {
	f := newConflictFixture(t)

	_, err := f.conflicts.Resolve(context.Background(), coordinator, models.Resolution{ConflictID: "missing"})

	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

func TestConflictService_ResolveBatch(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)

	results := f.conflicts.ResolveBatch(context.Background(), coordinator, []models.Resolution{
		resolutionFor(c, models.StrategyLastWriteWins, ""),
		{ConflictID: "missing", ResolutionStrategy: models.StrategyMerge},
		resolutionFor(c, models.StrategyMerge, ""),
	})

	require.Len(t, results, 3)
	assert.Equal(t, models.ResolutionStatusResolved, results[0].Status)
	assert.Equal(t, models.ResolutionStatusFailed, results[1].Status)
	assert.Equal(t, "missing", results[1].ConflictID)
	assert.Equal(t, models.ResolutionStatusAlreadyResolved, results[2].Status)
}

func TestConflictService_ListAndSummary(t *testing.T) {
	f := newConflictFixture(t)
	ctx := context.Background()

	c1 := f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)
	f.staleConflict(t, "e-2", 2, 1, `{}`, `{}`)

	_, err := f.conflicts.Resolve(ctx, coordinator, resolutionFor(c1, models.StrategyLastWriteWins, ""))
	require.NoError(t, err)

	page, err := f.conflicts.List(ctx, coordinator, models.ConflictFilter{Limit: 1}, 1)
	require.NoError(t, err)
	assert.Len(t, page.Conflicts, 1)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)

	unresolved := false
	page, err = f.conflicts.List(ctx, coordinator, models.ConflictFilter{Limit: 10, Resolved: &unresolved}, 1)
	require.NoError(t, err)
	require.Len(t, page.Conflicts, 1)
	assert.Equal(t, "e-2", page.Conflicts[0].EntityUUID)

	stats, err := f.conflicts.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ManuallyResolved)
	assert.Equal(t, 1, stats.Unresolved)
	assert.InDelta(t, 50.0, stats.ResolutionRate, 0.001)
	assert.Equal(t, 2, stats.ByType[models.EntityTypeAssessment])
}

func TestConflictService_List_EmptyIsNotNil(t *testing.T) {
	f := newConflictFixture(t)

	page, err := f.conflicts.List(context.Background(), coordinator, models.ConflictFilter{Limit: 10, EntityUUID: "none"}, 1)

	require.NoError(t, err)
	assert.NotNil(t, page.Conflicts)
}

func TestConflictService_Resolve_UngrantedEntity(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{"a":1}`, `{"a":2}`)

	_, err := f.conflicts.Resolve(context.Background(), "intruder", resolutionFor(c, models.StrategyManual, `{"a":"hijacked"}`))

	require.ErrorIs(t, err, ErrUnauthorizedEntities)
	var accessErr *EntityAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, []string{"e-1"}, accessErr.EntityIDs)

	e := f.entity(t, "e-1")
	assert.Equal(t, int64(2), e.Version)
	assert.JSONEq(t, `{"a":1}`, string(e.Payload))

	entry, err := f.storages.Conflicts.Get(context.Background(), c.ConflictID)
	require.NoError(t, err)
	assert.False(t, entry.IsResolved)
}

func TestConflictService_Resolve_UngrantedAfterResolution(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{"a":1}`, `{"a":2}`)
	ctx := context.Background()

	_, err := f.conflicts.Resolve(ctx, coordinator, resolutionFor(c, models.StrategyManual, `{"secret":true}`))
	require.NoError(t, err)

	res, err := f.conflicts.Resolve(ctx, "intruder", resolutionFor(c, models.StrategyMerge, ""))

	require.ErrorIs(t, err, ErrUnauthorizedEntities)
	assert.Empty(t, res.ResolvedData)
}

func TestConflictService_ResolveBatch_Ungranted(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)

	results := f.conflicts.ResolveBatch(context.Background(), "intruder", []models.Resolution{
		resolutionFor(c, models.StrategyLastWriteWins, ""),
	})

	require.Len(t, results, 1)
	assert.Equal(t, models.ResolutionStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, "e-1")
	assert.Equal(t, int64(2), f.entity(t, "e-1").Version)
}

func TestConflictService_ResolveBatch_HidesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	conflicts := mock.NewMockConflictRepository(ctrl)

	storages := store.NewMemoryStorages()
	storages.Conflicts = conflicts
	access := NewAccessService(storages.Access, logger.Nop())
	svc := NewConflictService(storages, access, &sequenceIDs{prefix: "res"}, logger.Nop())

	conflicts.EXPECT().Get(gomock.Any(), "c-1").
		Return(models.Conflict{}, errors.New(`pq: password authentication failed for user "sync"`))
	conflicts.EXPECT().Get(gomock.Any(), "c-2").
		Return(models.Conflict{}, store.ErrConflictNotFound)

	results := svc.ResolveBatch(context.Background(), coordinator, []models.Resolution{
		{ConflictID: "c-1", ResolutionStrategy: models.StrategyMerge},
		{ConflictID: "c-2", ResolutionStrategy: models.StrategyMerge},
	})

	require.Len(t, results, 2)
	assert.Equal(t, models.ResolutionStatusFailed, results[0].Status)
	assert.Equal(t, MessageResolutionFailed, results[0].Message)
	assert.Equal(t, models.ResolutionStatusFailed, results[1].Status)
	assert.Equal(t, store.ErrConflictNotFound.Error(), results[1].Message)
}

func TestConflictService_Get_Ungranted(t *testing.T) {
	f := newConflictFixture(t)
	c := f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)

	got, err := f.conflicts.Get(context.Background(), coordinator, c.ConflictID)
	require.NoError(t, err)
	assert.Equal(t, c.ConflictID, got.ConflictID)

	_, err = f.conflicts.Get(context.Background(), "intruder", c.ConflictID)
	assert.ErrorIs(t, err, ErrUnauthorizedEntities)
}

func TestConflictService_ListAndExport_ScopedToGrant(t *testing.T) {
	f := newConflictFixture(t)
	ctx := context.Background()

	f.staleConflict(t, "e-1", 2, 1, `{}`, `{}`)
	c2 := f.staleConflict(t, "e-2", 2, 1, `{}`, `{}`)
	require.NoError(t, f.storages.Access.GrantEntities(ctx, "field-officer", "e-2"))

	page, err := f.conflicts.List(ctx, "field-officer", models.ConflictFilter{Limit: 10}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Conflicts, 1)
	assert.Equal(t, c2.ConflictID, page.Conflicts[0].ConflictID)

	page, err = f.conflicts.List(ctx, "field-officer", models.ConflictFilter{Limit: 10, EntityUUID: "e-1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Conflicts)
	assert.Empty(t, page.Conflicts)

	page, err = f.conflicts.List(ctx, "intruder", models.ConflictFilter{Limit: 10}, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Conflicts)

	var buf bytes.Buffer
	require.NoError(t, f.conflicts.Export(ctx, "field-officer", &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, c2.ConflictID, rows[1][0])

	buf.Reset()
	require.NoError(t, f.conflicts.ExportAll(ctx, &buf))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestResolutionRate(t *testing.T) {
	tests := []struct {
		name  string
		stats models.ConflictStats
		want  float64
	}{
		{"empty ledger", models.ConflictStats{}, 0},
		{"all open", models.ConflictStats{Total: 4, Unresolved: 4}, 0},
		{"mixed", models.ConflictStats{Total: 4, AutoResolved: 1, ManuallyResolved: 2, Unresolved: 1}, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ResolutionRate(tt.stats), 0.0001)
		})
	}
}

func TestConflictService_Export(t *testing.T) {
	f := newConflictFixture(t)
	ctx := context.Background()

	c := f.staleConflict(t, "e-1", 2, 1, `{"a":1}`, `{"a":"x,y"}`)
	_, err := f.conflicts.Resolve(ctx, coordinator, resolutionFor(c, models.StrategyManual, `{"a":2}`))
	require.NoError(t, err)
	f.staleConflict(t, "e-2", 2, 1, `{}`, `{}`)

	var buf bytes.Buffer
	require.NoError(t, f.conflicts.Export(ctx, coordinator, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ExportColumns, rows[0])

	var resolvedRow []string
	for _, row := range rows[1:] {
		require.Len(t, row, len(ExportColumns))
		if row[0] == c.ConflictID {
			resolvedRow = row
		}
	}
	require.NotNil(t, resolvedRow)
	assert.Equal(t, "e-1", resolvedRow[3])
	assert.Equal(t, `{"a":"x,y"}`, resolvedRow[6])
	assert.Equal(t, "manual", resolvedRow[8])
	assert.Equal(t, "true", resolvedRow[9])
	assert.Equal(t, coordinator, resolvedRow[12])
	assert.Equal(t, "3", resolvedRow[14])
	assert.Equal(t, conflict.ReasonVersionMismatch, resolvedRow[16])
	assert.Equal(t, "false", resolvedRow[17])
}
