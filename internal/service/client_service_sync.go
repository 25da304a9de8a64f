package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bilzee/dms-sync/internal/adapter"
	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
)

const (
	defaultPushBatchSize = 100
	defaultPullPageLimit = 100

	// maxPullPages bounds one pull pass.
	maxPullPages = 1000
)

type clientSyncService struct {
	outbox   store.OutboxRepository
	entities store.LocalEntityRepository
	state    store.SyncStateRepository
	adapter  adapter.ServerAdapter

	batchSize int
	pullLimit int

	logger *logger.Logger
}

// NewClientSyncService wires the device outbox and feed cache to the server
// adapter. Zero batch or page sizes fall back to the protocol defaults.
func NewClientSyncService(storages *store.ClientStorages, serverAdapter adapter.ServerAdapter, cfg config.ClientWorkers, logger *logger.Logger) ClientSyncService {
	s := &clientSyncService{
		outbox:    storages.Outbox,
		entities:  storages.Entities,
		state:     storages.State,
		adapter:   serverAdapter,
		batchSize: cfg.PushBatchSize,
		pullLimit: cfg.PullLimit,
		logger:    logger,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultPushBatchSize
	}
	if s.pullLimit <= 0 {
		s.pullLimit = defaultPullPageLimit
	}
	return s
}

func (s *clientSyncService) FullSync(ctx context.Context) (models.SyncReport, error) {
	var report models.SyncReport

	push, err := s.PushPending(ctx)
	report.Push = push
	if err != nil && !isServerAnswer(err) {
		return report, fmt.Errorf("push pending changes: %w", err)
	}
	pushErr := err

	pull, err := s.PullChanges(ctx)
	report.Pull = pull
	if err != nil {
		return report, errors.Join(pushErr, fmt.Errorf("pull changes: %w", err))
	}
	if pushErr != nil {
		return report, fmt.Errorf("push pending changes: %w", pushErr)
	}

	s.logger.Info().
		Int("synced", push.Synced).
		Int("conflicts", push.Conflicts).
		Int("failed", push.Failed).
		Int("pulled", pull.Applied).
		Msg("sync cycle finished")

	return report, nil
}

// PushPending implements ClientSyncService.
//
// Entries left pending after a batch (failed items) end the pass, so a batch
// the server keeps rolling back is retried on the next cycle rather than in
// a loop.
func (s *clientSyncService) PushPending(ctx context.Context) (models.PushReport, error) {
	var report models.PushReport

	for {
		entries, err := s.outbox.Pending(ctx, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("loading pending entries failed: %w", err)
		}
		if len(entries) == 0 {
			return report, nil
		}

		changes := make([]models.Change, len(entries))
		for i, e := range entries {
			changes[i] = e.Change()
		}

		results, err := s.adapter.Push(ctx, changes)
		if err != nil {
			if markErr := s.markRejected(ctx, entries, err); markErr != nil {
				return report, errors.Join(mapAdapterError(err), markErr)
			}
			return report, mapAdapterError(err)
		}
		report.Batches++

		failed, err := s.reconcile(ctx, entries, results, &report)
		if err != nil {
			return report, err
		}
		if failed > 0 || len(entries) < s.batchSize {
			return report, nil
		}
	}
}

// reconcile stores the server outcome of every entry by offline client id.
func (s *clientSyncService) reconcile(ctx context.Context, entries []models.OutboxEntry, results []models.SyncResult, report *models.PushReport) (int, error) {
	byID := make(map[string]models.SyncResult, len(results))
	for _, r := range results {
		byID[r.OfflineClientID] = r
	}

	failed := 0
	for _, e := range entries {
		var err error

		r, ok := byID[e.OfflineClientID]
		switch {
		case !ok:
			failed++
			err = s.outbox.MarkFailed(ctx, e.OfflineClientID, "no result returned by server")
		case r.Status == models.SyncStatusSuccess:
			report.Synced++
			err = s.outbox.MarkSynced(ctx, e.OfflineClientID, r.ServerID)
		case r.Status == models.SyncStatusConflict && r.ConflictData != nil && r.ConflictData.AutoResolved:
			report.Synced++
			err = s.outbox.MarkSynced(ctx, e.OfflineClientID, r.ServerID)
		case r.Status == models.SyncStatusConflict:
			report.Conflicts++
			conflictID := ""
			if r.ConflictData != nil {
				conflictID = r.ConflictData.ConflictID
			}
			err = s.outbox.MarkConflict(ctx, e.OfflineClientID, conflictID, r.Message)
		default:
			failed++
			err = s.outbox.MarkFailed(ctx, e.OfflineClientID, r.Message)
		}

		if err != nil {
			return failed, fmt.Errorf("reconciling %s failed: %w", e.OfflineClientID, err)
		}
	}

	report.Failed += failed
	return failed, nil
}

// markRejected records a 403 on the entries outside the user's grant. Any
// other error leaves the outbox untouched.
func (s *clientSyncService) markRejected(ctx context.Context, entries []models.OutboxEntry, err error) error {
	var respErr *adapter.ResponseError
	if !errors.As(err, &respErr) || !errors.Is(err, adapter.ErrForbidden) {
		return nil
	}

	denied := models.NewEntitySet(respErr.UnauthorizedEntityIDs...)
	message := "entity not authorized: " + strings.TrimSpace(respErr.Message)
	for _, e := range entries {
		if !denied.Contains(e.EntityUUID) {
			continue
		}
		if markErr := s.outbox.MarkFailed(ctx, e.OfflineClientID, message); markErr != nil {
			return fmt.Errorf("marking %s failed: %w", e.OfflineClientID, markErr)
		}
	}
	return nil
}

// PullChanges implements ClientSyncService.
//
// The feed is inclusive at the cursor, so the last item of a page is seen
// again on the next one; ApplyPulled drops it by id. A page whose next
// timestamp does not move past the cursor ends the pass as stalled.
func (s *clientSyncService) PullChanges(ctx context.Context) (models.PullReport, error) {
	var report models.PullReport

	cursor, ok, err := s.state.GetCursor(ctx)
	if err != nil {
		return report, fmt.Errorf("loading pull cursor failed: %w", err)
	}

	req := models.PullRequest{Limit: s.pullLimit}
	if ok {
		req.LastSyncTimestamp = &cursor
	}

	for report.Pages < maxPullPages {
		page, err := s.adapter.Pull(ctx, req)
		if err != nil {
			return report, mapAdapterError(err)
		}
		report.Pages++
		report.Fetched += len(page.Items)

		applied, err := s.entities.ApplyPulled(ctx, page.Items)
		if err != nil {
			return report, fmt.Errorf("storing pulled items failed: %w", err)
		}
		report.Applied += applied

		if page.NextTimestamp.IsZero() {
			return report, nil
		}
		if err = s.state.SaveCursor(ctx, page.NextTimestamp); err != nil {
			return report, fmt.Errorf("saving pull cursor failed: %w", err)
		}

		if !page.HasMore {
			return report, nil
		}
		if req.LastSyncTimestamp != nil && !page.NextTimestamp.After(*req.LastSyncTimestamp) {
			report.Stalled = true
			logger.FromContext(ctx).Warn().
				Time("cursor", page.NextTimestamp).
				Int("page_items", len(page.Items)).
				Msg("pull cursor did not advance, raise the page limit")
			return report, nil
		}

		next := page.NextTimestamp
		req.LastSyncTimestamp = &next
	}

	return report, nil
}

func (s *clientSyncService) Resolve(ctx context.Context, resolutions ...models.Resolution) ([]models.ResolutionResult, error) {
	results, err := s.adapter.Resolve(ctx, resolutions...)
	if err != nil {
		return nil, fmt.Errorf("resolving conflicts failed: %w", mapAdapterError(err))
	}
	return results, nil
}

// isServerAnswer reports whether err is a 4xx verdict of the server rather
// than a transport or availability failure.
func isServerAnswer(err error) bool {
	var respErr *adapter.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	code := respErr.StatusCode
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError && code != http.StatusTooManyRequests
}
