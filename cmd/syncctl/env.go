package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/store"
)

var errNoDatabase = errors.New("no database configured (STORAGE_DB_DATABASE_URI)")

// env lazily builds what a command needs. Tests replace loadConfig and
// openStorages.
type env struct {
	loadConfig   func() (*config.StructuredConfig, error)
	openStorages func(ctx context.Context, cfg config.DB, log *logger.Logger) (*store.Storages, error)
	connectDB    func(ctx context.Context, cfg config.DB, log *logger.Logger) (*store.DB, error)
	out          io.Writer
	logger       *logger.Logger

	once     sync.Once
	cfg      *config.StructuredConfig
	cfgErr   error
	storages *store.Storages
}

func newEnv(log *logger.Logger, out io.Writer) *env {
	return &env{
		loadConfig:   config.GetEnvConfig,
		openStorages: openDatabaseStorages,
		connectDB:    store.NewConnectPostgres,
		out:          out,
		logger:       log,
	}
}

func openDatabaseStorages(ctx context.Context, cfg config.DB, log *logger.Logger) (*store.Storages, error) {
	if cfg.DSN == "" {
		return nil, errNoDatabase
	}
	return store.NewStorages(ctx, cfg, log)
}

func (e *env) config() (*config.StructuredConfig, error) {
	e.once.Do(func() {
		e.cfg, e.cfgErr = e.loadConfig()
		if e.cfgErr == nil {
			e.cfgErr = logger.SetLevel(e.cfg.App.LogLevel)
		}
	})
	return e.cfg, e.cfgErr
}

// services opens the storages on first use and builds the service layer.
func (e *env) services(ctx context.Context) (*service.Services, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, fmt.Errorf("error getting configs: %w", err)
	}

	if e.storages == nil {
		e.storages, err = e.openStorages(ctx, cfg.Storage.DB, e.logger)
		if err != nil {
			return nil, fmt.Errorf("error creating storages: %w", err)
		}
	}

	return service.NewServices(e.storages, *cfg, e.logger)
}

func (e *env) close() {
	if e.storages != nil {
		if err := e.storages.Close(); err != nil {
			e.logger.Err(err).Msg("error closing storages")
		}
	}
}
