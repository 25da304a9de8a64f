package service

import (
	"fmt"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/internal/utils"
)

type Services struct {
	AuthService     AuthService
	AccessService   AccessService
	SyncService     SyncService
	ConflictService ConflictService
	AppInfoService  AppInfoService
}

func NewServices(storages *store.Storages, cfg config.StructuredConfig, logger *logger.Logger) (*Services, error) {
	appInfo, err := NewAppInfoService(cfg.App, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating app info service: %w", err)
	}

	ids := utils.NewUUIDGenerator()
	access := NewAccessService(storages.Access, logger)

	return &Services{
		AuthService:     NewAuthService(cfg.App, logger),
		AccessService:   access,
		SyncService:     NewSyncService(storages, access, ids, cfg.Sync, logger),
		ConflictService: NewConflictService(storages, access, ids, logger),
		AppInfoService:  appInfo,
	}, nil
}
