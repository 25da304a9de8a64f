package store

import (
	"context"
	"fmt"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
)

// ClientStorages groups the field device's local repositories. All three
// are served by the same SQLite database.
type ClientStorages struct {
	Outbox   OutboxRepository
	Entities LocalEntityRepository
	State    SyncStateRepository

	db *DB
}

// NewClientStorages initialises the client storage layer:
//  1. Opens an SQLite connection to the file path specified in cfg.DSN,
//     creating the database file if it does not yet exist.
//  2. Runs pending schema migrations via [DB.MigrateLocal].
//  3. Wires the repositories to the connection.
func NewClientStorages(ctx context.Context, cfg config.Local, logger *logger.Logger) (*ClientStorages, error) {
	logger.Info().Msg("creating new client storages...")

	db, err := NewConnectSQLite(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sqlite connection error: %w", err)
	}

	if err := db.MigrateLocal(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	local := NewLocalRepository(db)
	return &ClientStorages{
		Outbox:   local,
		Entities: local,
		State:    local,
		db:       db,
	}, nil
}

// Close releases the local database.
func (s *ClientStorages) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
