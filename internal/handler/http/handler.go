package http

import (
	"fmt"
	"time"

	"github.com/bilzee/dms-sync/internal/codec"
	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/ratelimit"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/utils"
)

// Handler serves the sync API on top of the service layer.
type Handler struct {
	services *service.Services
	codec    *codec.Codec
	limiter  ratelimit.Limiter

	syncCfg   config.Sync
	limitCfg  config.RateLimit
	serverCfg config.Server
	hashKey   string

	now func() time.Time

	logger *logger.Logger
}

// NewHandler builds the handler. The payload hash check on push is enabled
// when cfg.App.HashKey is set.
func NewHandler(services *service.Services, limiter ratelimit.Limiter, cfg config.StructuredConfig, logger *logger.Logger) (*Handler, error) {
	c, err := codec.New(cfg.Sync.MaxBatchSize, cfg.Sync.MaxPullLimit)
	if err != nil {
		return nil, fmt.Errorf("error creating request codec: %w", err)
	}

	if cfg.App.HashKey != "" {
		utils.InitHasherPool(cfg.App.HashKey)
	}

	logger.Info().Msg("http handler created")
	return &Handler{
		services:  services,
		codec:     c,
		limiter:   limiter,
		syncCfg:   cfg.Sync,
		limitCfg:  cfg.RateLimit,
		serverCfg: cfg.Server,
		hashKey:   cfg.App.HashKey,
		now:       time.Now,
		logger:    logger,
	}, nil
}
