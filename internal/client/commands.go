package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bilzee/dms-sync/models"
)

const usage = `usage:
  run
  enqueue <entityType> <action> <entityUuid> <declaredVersion> <payload>
  sync
  status
  resolve <conflictId> <strategy> <entityType> <entityUuid> [resolvedData]`

// Execute runs the agent command named by args[0]. No arguments means run.
func (a *App) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.Run(ctx)
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "run":
		return a.Run(ctx)
	case "enqueue":
		return a.enqueue(ctx, rest)
	case "sync":
		return a.sync(ctx)
	case "status":
		return a.status(ctx)
	case "resolve":
		return a.resolve(ctx, rest)
	default:
		return fmt.Errorf("%w %q\n%s", ErrUnknownCommand, cmd, usage)
	}
}

func (a *App) enqueue(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("%w: enqueue takes 5 arguments\n%s", ErrUsage, usage)
	}

	version, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: declaredVersion %q is not a number", ErrUsage, args[3])
	}

	entry, err := a.services.OutboxService.Record(ctx, models.Change{
		EntityType:      models.EntityType(args[0]),
		Action:          models.Action(args[1]),
		EntityUUID:      args[2],
		DeclaredVersion: version,
		Payload:         json.RawMessage(args[4]),
	})
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	return a.print(entry)
}

func (a *App) sync(ctx context.Context) error {
	report, err := a.services.SyncService.FullSync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	a.logReport(report)
	return a.print(report)
}

func (a *App) status(ctx context.Context) error {
	counts, err := a.services.OutboxService.Status(ctx)
	if err != nil {
		return err
	}

	return a.print(counts)
}

func (a *App) resolve(ctx context.Context, args []string) error {
	if len(args) != 4 && len(args) != 5 {
		return fmt.Errorf("%w: resolve takes 4 or 5 arguments\n%s", ErrUsage, usage)
	}

	strategy, err := models.ParseResolutionStrategy(args[1])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	r := models.Resolution{
		ConflictID:         args[0],
		ResolutionStrategy: strategy,
		EntityType:         models.EntityType(args[2]),
		EntityUUID:         args[3],
	}
	if len(args) == 5 {
		if !json.Valid([]byte(args[4])) {
			return fmt.Errorf("%w: resolvedData is not valid JSON", ErrUsage)
		}
		r.ResolvedData = json.RawMessage(args[4])
	}

	results, err := a.services.SyncService.Resolve(ctx, r)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	return a.print(results)
}
