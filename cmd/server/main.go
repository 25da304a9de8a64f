package main

import (
	"context"
	"fmt"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/handler"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/ratelimit"
	"github.com/bilzee/dms-sync/internal/server"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/internal/workers"
	"github.com/bilzee/dms-sync/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	buildInfo := models.NewAppBuildInfo(buildVersion, buildDate, buildCommit)
	fmt.Print(buildInfo)

	log := logger.NewLogger("dms-sync-server")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}
	if err = logger.SetLevel(cfg.App.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("error setting log level")
	}
	if buildVersion != "" {
		cfg.App.Version = buildInfo.BuildVersion()
	}

	log.Debug().Str("address", cfg.Server.HTTPAddress).Str("driver", cfg.Storage.DB.Driver).Msg("received configs")

	ctx := context.Background()

	storages, err := store.NewStorages(ctx, cfg.Storage.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating storages")
	}
	defer storages.Close()

	services, err := service.NewServices(storages, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating services")
	}

	limiter, limiterStore, err := ratelimit.New(ctx, cfg.RateLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating rate limiter")
	}
	defer limiterStore.Close()

	bg := workers.NewWorkers()
	if mem, ok := limiter.(*ratelimit.InMemory); ok {
		bg = workers.NewWorkers(workers.NewLimiterSweeper(mem, cfg.RateLimit.Window, log))
	}

	handlers, err := handler.NewHandlers(services, limiter, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating handlers")
	}

	srv, err := server.NewServer(handlers, bg, cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating server")
	}

	srv.RunServer()
}
