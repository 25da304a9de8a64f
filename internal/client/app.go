package client

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/workers"
)

type App struct {
	services *service.ClientServices
	interval time.Duration
	out      io.Writer

	logger *logger.Logger
}

// NewApp builds the agent over already wired client services. Command
// output is written to out as indented JSON.
func NewApp(services *service.ClientServices, cfg config.ClientWorkers, out io.Writer, logger *logger.Logger) *App {
	return &App{
		services: services,
		interval: cfg.SyncInterval,
		out:      out,
		logger:   logger,
	}
}

func (a *App) Run(ctx context.Context) error {
	if report, err := a.services.SyncService.FullSync(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("initial sync failed, retrying on schedule")
	} else {
		a.logReport(report)
	}

	workers.NewWorkers(workers.NewClientSyncWorker(a.services.SyncJob, a.interval)).Run(ctx)
	defer a.services.SyncJob.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("field agent running")
	<-ctx.Done()
	a.logger.Info().Msg("field agent stopped")

	return nil
}

func (a *App) logReport(report any) {
	a.logger.Info().Any("report", report).Msg("sync finished")
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
