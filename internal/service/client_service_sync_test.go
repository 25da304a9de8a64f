package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bilzee/dms-sync/internal/adapter"
	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/mock"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type clientSyncMocks struct {
	outbox   *mock.MockOutboxRepository
	entities *mock.MockLocalEntityRepository
	state    *mock.MockSyncStateRepository
	adapter  *mock.MockServerAdapter
}

func newTestClientSync(t *testing.T, batch, pullLimit int) (ClientSyncService, clientSyncMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	m := clientSyncMocks{
		outbox:   mock.NewMockOutboxRepository(ctrl),
		entities: mock.NewMockLocalEntityRepository(ctrl),
		state:    mock.NewMockSyncStateRepository(ctrl),
		adapter:  mock.NewMockServerAdapter(ctrl),
	}
	storages := &store.ClientStorages{Outbox: m.outbox, Entities: m.entities, State: m.state}
	svc := NewClientSyncService(storages, m.adapter, config.ClientWorkers{PushBatchSize: batch, PullLimit: pullLimit}, logger.Nop())
	return svc, m
}

func outboxEntry(id, entityUUID string) models.OutboxEntry {
	return models.OutboxEntry{
		OfflineClientID: id,
		EntityType:      models.EntityTypeAssessment,
		Action:          models.ActionUpdate,
		EntityUUID:      entityUUID,
		DeclaredVersion: 2,
		Status:          models.OutboxStatusPending,
	}
}

func TestClientSync_PushPending_Reconciles(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	entries := []models.OutboxEntry{
		outboxEntry("o-1", "e-1"),
		outboxEntry("o-2", "e-2"),
		outboxEntry("o-3", "e-3"),
	}

	m.outbox.EXPECT().Pending(ctx, 10).Return(entries, nil)
	m.adapter.EXPECT().Push(ctx, []models.Change{entries[0].Change(), entries[1].Change(), entries[2].Change()}).
		Return([]models.SyncResult{
			// results are matched by id, not position
			{OfflineClientID: "o-3", Status: models.SyncStatusConflict, Message: "conflict: version_mismatch",
				ConflictData: &models.ConflictData{ConflictID: "c-3"}},
			{OfflineClientID: "o-1", ServerID: "s-1", Status: models.SyncStatusSuccess},
			{OfflineClientID: "o-2", Status: models.SyncStatusConflict,
				ConflictData: &models.ConflictData{ConflictID: "c-2", AutoResolved: true}},
		}, nil)
	m.outbox.EXPECT().MarkSynced(ctx, "o-1", "s-1").Return(nil)
	m.outbox.EXPECT().MarkSynced(ctx, "o-2", "").Return(nil)
	m.outbox.EXPECT().MarkConflict(ctx, "o-3", "c-3", "conflict: version_mismatch").Return(nil)

	report, err := svc.PushPending(ctx)

	require.NoError(t, err)
	assert.Equal(t, models.PushReport{Batches: 1, Synced: 2, Conflicts: 1}, report)
}

func TestClientSync_PushPending_PagesUntilDrained(t *testing.T) {
	svc, m := newTestClientSync(t, 2, 10)
	ctx := context.Background()

	first := []models.OutboxEntry{outboxEntry("o-1", "e-1"), outboxEntry("o-2", "e-2")}
	second := []models.OutboxEntry{outboxEntry("o-3", "e-3")}

	gomock.InOrder(
		m.outbox.EXPECT().Pending(ctx, 2).Return(first, nil),
		m.adapter.EXPECT().Push(ctx, gomock.Len(2)).Return([]models.SyncResult{
			{OfflineClientID: "o-1", ServerID: "s-1", Status: models.SyncStatusSuccess},
			{OfflineClientID: "o-2", ServerID: "s-2", Status: models.SyncStatusSuccess},
		}, nil),
		m.outbox.EXPECT().Pending(ctx, 2).Return(second, nil),
		m.adapter.EXPECT().Push(ctx, gomock.Len(1)).Return([]models.SyncResult{
			{OfflineClientID: "o-3", ServerID: "s-3", Status: models.SyncStatusSuccess},
		}, nil),
	)
	m.outbox.EXPECT().MarkSynced(ctx, gomock.Any(), gomock.Any()).Return(nil).Times(3)

	report, err := svc.PushPending(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, 3, report.Synced)
}

func TestClientSync_PushPending_RolledBackBatchEndsPass(t *testing.T) {
	svc, m := newTestClientSync(t, 2, 10)
	ctx := context.Background()

	entries := []models.OutboxEntry{outboxEntry("o-1", "e-1"), outboxEntry("o-2", "e-2")}

	m.outbox.EXPECT().Pending(ctx, 2).Return(entries, nil).Times(1)
	m.adapter.EXPECT().Push(ctx, gomock.Any()).Return([]models.SyncResult{
		{OfflineClientID: "o-1", Status: models.SyncStatusFailed, Message: "batch rolled back: store unavailable"},
		{OfflineClientID: "o-2", Status: models.SyncStatusFailed, Message: "store unavailable"},
	}, nil)
	m.outbox.EXPECT().MarkFailed(ctx, "o-1", "batch rolled back: store unavailable").Return(nil)
	m.outbox.EXPECT().MarkFailed(ctx, "o-2", "store unavailable").Return(nil)

	report, err := svc.PushPending(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
}

func TestClientSync_PushPending_MissingResultIsFailure(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	m.outbox.EXPECT().Pending(ctx, 10).Return([]models.OutboxEntry{outboxEntry("o-1", "e-1")}, nil)
	m.adapter.EXPECT().Push(ctx, gomock.Any()).Return([]models.SyncResult{{OfflineClientID: "other"}}, nil)
	m.outbox.EXPECT().MarkFailed(ctx, "o-1", gomock.Any()).Return(nil)

	report, err := svc.PushPending(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
}

func TestClientSync_PushPending_TransportErrorKeepsEntries(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	transportErr := errors.New("dial tcp: connection refused")
	m.outbox.EXPECT().Pending(ctx, 10).Return([]models.OutboxEntry{outboxEntry("o-1", "e-1")}, nil)
	m.adapter.EXPECT().Push(ctx, gomock.Any()).Return(nil, transportErr)

	_, err := svc.PushPending(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, transportErr)
}

func TestClientSync_PushPending_ForbiddenMarksDenied(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	entries := []models.OutboxEntry{outboxEntry("o-1", "e-1"), outboxEntry("o-2", "e-9")}
	forbidden := adapter.NewResponseError(403, "unauthorized entities")
	forbidden.UnauthorizedEntityIDs = []string{"e-9"}

	m.outbox.EXPECT().Pending(ctx, 10).Return(entries, nil)
	m.adapter.EXPECT().Push(ctx, gomock.Any()).Return(nil, forbidden)
	m.outbox.EXPECT().MarkFailed(ctx, "o-2", "entity not authorized: unauthorized entities").Return(nil)

	_, err := svc.PushPending(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorizedEntities)
	assert.ErrorIs(t, err, adapter.ErrForbidden)

	var accessErr *EntityAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, []string{"e-9"}, accessErr.EntityIDs)
}

func TestClientSync_PullChanges_PagesAndSavesCursor(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 2)
	ctx := context.Background()

	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	t1 := start.Add(time.Minute)
	t2 := start.Add(2 * time.Minute)

	page1 := models.PullResponse{
		Items:         []models.SyncItem{{ID: "a", LastModified: start}, {ID: "b", LastModified: t1}},
		HasMore:       true,
		NextTimestamp: t1,
	}
	page2 := models.PullResponse{
		Items:         []models.SyncItem{{ID: "b", LastModified: t1}, {ID: "c", LastModified: t2}},
		NextTimestamp: t2,
	}

	gomock.InOrder(
		m.state.EXPECT().GetCursor(ctx).Return(start, true, nil),
		m.adapter.EXPECT().Pull(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, req models.PullRequest) (models.PullResponse, error) {
			require.NotNil(t, req.LastSyncTimestamp)
			assert.True(t, start.Equal(*req.LastSyncTimestamp))
			assert.Equal(t, 2, req.Limit)
			return page1, nil
		}),
		m.entities.EXPECT().ApplyPulled(ctx, page1.Items).Return(2, nil),
		m.state.EXPECT().SaveCursor(ctx, t1).Return(nil),
		m.adapter.EXPECT().Pull(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, req models.PullRequest) (models.PullResponse, error) {
			assert.True(t, t1.Equal(*req.LastSyncTimestamp))
			return page2, nil
		}),
		m.entities.EXPECT().ApplyPulled(ctx, page2.Items).Return(1, nil),
		m.state.EXPECT().SaveCursor(ctx, t2).Return(nil),
	)

	report, err := svc.PullChanges(ctx)

	require.NoError(t, err)
	assert.Equal(t, models.PullReport{Pages: 2, Fetched: 4, Applied: 3}, report)
}

func TestClientSync_PullChanges_FirstPullHasNoCursor(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 0)
	ctx := context.Background()

	next := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	m.state.EXPECT().GetCursor(ctx).Return(time.Time{}, false, nil)
	m.adapter.EXPECT().Pull(ctx, models.PullRequest{Limit: defaultPullPageLimit}).
		Return(models.PullResponse{Items: []models.SyncItem{}, NextTimestamp: next}, nil)
	m.entities.EXPECT().ApplyPulled(ctx, []models.SyncItem{}).Return(0, nil)
	m.state.EXPECT().SaveCursor(ctx, next).Return(nil)

	report, err := svc.PullChanges(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
}

func TestClientSync_PullChanges_StallEndsPass(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 2)
	ctx := context.Background()

	cursor := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	page := models.PullResponse{
		Items:         []models.SyncItem{{ID: "a", LastModified: cursor}, {ID: "b", LastModified: cursor}},
		HasMore:       true,
		NextTimestamp: cursor,
	}

	m.state.EXPECT().GetCursor(ctx).Return(cursor, true, nil)
	m.adapter.EXPECT().Pull(ctx, gomock.Any()).Return(page, nil).Times(1)
	m.entities.EXPECT().ApplyPulled(ctx, page.Items).Return(0, nil)
	m.state.EXPECT().SaveCursor(ctx, cursor).Return(nil)

	report, err := svc.PullChanges(ctx)

	require.NoError(t, err)
	assert.True(t, report.Stalled)
}

func TestClientSync_PullChanges_UnauthorizedIsMapped(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	m.state.EXPECT().GetCursor(ctx).Return(time.Time{}, false, nil)
	m.adapter.EXPECT().Pull(ctx, gomock.Any()).Return(models.PullResponse{}, fmt.Errorf("pull request: %w", adapter.NewResponseError(401, "token expired")))

	_, err := svc.PullChanges(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenIsExpiredOrInvalid)
	assert.ErrorIs(t, err, adapter.ErrUnauthorized)
}

func TestClientSync_FullSync_PullsAfterEmptyPush(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	m.outbox.EXPECT().Pending(ctx, 10).Return(nil, nil)
	m.state.EXPECT().GetCursor(ctx).Return(time.Time{}, false, nil)
	m.adapter.EXPECT().Pull(ctx, gomock.Any()).Return(models.PullResponse{}, nil)
	m.entities.EXPECT().ApplyPulled(ctx, gomock.Any()).Return(0, nil)

	report, err := svc.FullSync(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Pull.Pages)
	assert.Equal(t, 0, report.Push.Batches)
}

func TestClientSync_FullSync_TransportErrorSkipsPull(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	m.outbox.EXPECT().Pending(ctx, 10).Return([]models.OutboxEntry{outboxEntry("o-1", "e-1")}, nil)
	m.adapter.EXPECT().Push(ctx, gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := svc.FullSync(ctx)

	require.Error(t, err)
}

func TestClientSync_FullSync_RejectedPushStillPulls(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	rejected := adapter.NewResponseError(400, "validation failed")

	m.outbox.EXPECT().Pending(ctx, 10).Return([]models.OutboxEntry{outboxEntry("o-1", "e-1")}, nil)
	m.adapter.EXPECT().Push(ctx, gomock.Any()).Return(nil, rejected)
	m.state.EXPECT().GetCursor(ctx).Return(time.Time{}, false, nil)
	m.adapter.EXPECT().Pull(ctx, gomock.Any()).Return(models.PullResponse{}, nil)
	m.entities.EXPECT().ApplyPulled(ctx, gomock.Any()).Return(0, nil)

	report, err := svc.FullSync(ctx)

	require.Error(t, err)
	assert.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, report.Pull.Pages)
}

func TestClientSync_Resolve(t *testing.T) {
	svc, m := newTestClientSync(t, 10, 10)
	ctx := context.Background()

	r := models.Resolution{ConflictID: "c-1", ResolutionStrategy: models.StrategyLastWriteWins}
	m.adapter.EXPECT().Resolve(ctx, r).Return([]models.ResolutionResult{{ConflictID: "c-1", Status: models.ResolutionStatusResolved}}, nil)

	results, err := svc.Resolve(ctx, r)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ResolutionStatusResolved, results[0].Status)
}
