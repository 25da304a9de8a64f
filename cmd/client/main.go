package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilzee/dms-sync/internal/adapter"
	"github.com/bilzee/dms-sync/internal/client"
	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	log := logger.NewClientLogger("dms-sync-agent")
	cfg, err := config.GetClientConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}
	if err = logger.SetLevel(cfg.App.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("error setting log level")
	}

	args := flag.Args()
	if len(args) == 0 || args[0] == "run" {
		fmt.Print(models.NewAppBuildInfo(buildVersion, buildDate, buildCommit))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	serverAdapter, err := adapter.NewHTTPServerAdapter(cfg.Adapter, cfg.App, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create server adapter")
	}

	localStorage, err := store.NewClientStorages(ctx, config.Local{DSN: cfg.Storage.DSN}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create local storage")
	}
	defer localStorage.Close()

	services, err := service.NewClientServices(localStorage, serverAdapter, cfg.Workers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create client services")
	}

	app := client.NewApp(services, cfg.Workers, os.Stdout, log)
	if err = app.Execute(ctx, args); err != nil {
		log.Error().Err(err).Msg("agent command failed")
		fmt.Fprintln(os.Stderr, err)
		localStorage.Close()
		os.Exit(1)
	}
}
