package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bilzee/dms-sync/internal/codec"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
)

type clientOutboxService struct {
	outbox store.OutboxRepository
	codec  *codec.Codec
	ids    IDGenerator
	now    func() time.Time

	logger *logger.Logger
}

// NewClientOutboxService constructs the device-side recorder. Changes are
// checked with the same schema the server applies to a push.
func NewClientOutboxService(outbox store.OutboxRepository, c *codec.Codec, ids IDGenerator, logger *logger.Logger) ClientOutboxService {
	return &clientOutboxService{
		outbox: outbox,
		codec:  c,
		ids:    ids,
		now:    clock,
		logger: logger,
	}
}

func (s *clientOutboxService) Record(ctx context.Context, ch models.Change) (models.OutboxEntry, error) {
	if strings.TrimSpace(ch.OfflineClientID) == "" {
		ch.OfflineClientID = s.ids.Generate()
	}

	body, err := json.Marshal(models.PushRequest{Changes: []models.Change{ch}})
	if err != nil {
		return models.OutboxEntry{}, fmt.Errorf("encoding change failed: %w", err)
	}
	req, err := s.codec.DecodePush(body)
	if err != nil {
		return models.OutboxEntry{}, err
	}
	ch = req.Changes[0]

	now := s.now()
	entry := models.OutboxEntry{
		OfflineClientID: ch.OfflineClientID,
		EntityType:      ch.EntityType,
		Action:          ch.Action,
		EntityUUID:      ch.EntityUUID,
		DeclaredVersion: ch.DeclaredVersion,
		Payload:         ch.Payload,
		Status:          models.OutboxStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.outbox.Enqueue(ctx, entry); err != nil {
		return models.OutboxEntry{}, fmt.Errorf("queueing change failed: %w", err)
	}

	logger.FromContext(ctx).Debug().
		Str("offline_client_id", entry.OfflineClientID).
		Str("entity_uuid", entry.EntityUUID).
		Str("action", string(entry.Action)).
		Msg("change recorded")

	return entry, nil
}

func (s *clientOutboxService) Get(ctx context.Context, offlineClientID string) (models.OutboxEntry, error) {
	return s.outbox.Get(ctx, offlineClientID)
}

func (s *clientOutboxService) Status(ctx context.Context) (map[models.OutboxStatus]int, error) {
	counts, err := s.outbox.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting outbox entries failed: %w", err)
	}
	if counts == nil {
		counts = map[models.OutboxStatus]int{}
	}

	for _, status := range []models.OutboxStatus{models.OutboxStatusPending, models.OutboxStatusSynced, models.OutboxStatusConflict} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}
