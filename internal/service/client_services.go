package service

import (
	"fmt"

	"github.com/bilzee/dms-sync/internal/adapter"
	"github.com/bilzee/dms-sync/internal/codec"
	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/internal/utils"
)

type ClientServices struct {
	OutboxService ClientOutboxService
	SyncService   ClientSyncService
	SyncJob       ClientSyncJob
}

func NewClientServices(storages *store.ClientStorages, serverAdapter adapter.ServerAdapter, cfg config.ClientWorkers, logger *logger.Logger) (*ClientServices, error) {
	c, err := codec.New(cfg.PushBatchSize, cfg.PullLimit)
	if err != nil {
		return nil, fmt.Errorf("error creating change codec: %w", err)
	}

	syncSvc := NewClientSyncService(storages, serverAdapter, cfg, logger)

	return &ClientServices{
		OutboxService: NewClientOutboxService(storages.Outbox, c, utils.NewUUIDGenerator(), logger),
		SyncService:   syncSvc,
		SyncJob:       NewClientSyncJob(syncSvc, logger),
	}, nil
}
