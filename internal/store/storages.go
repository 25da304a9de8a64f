package store

import (
	"context"
	"fmt"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
)

// Storages groups the server-side repositories into a single value that is
// passed to the service layer.
type Storages struct {
	Entities  EntityStore
	Feed      ChangeFeed
	Access    AccessRepository
	Conflicts ConflictRepository

	close func() error
}

// NewStorages connects to PostgreSQL, applies the migrations and wires the
// repositories. An empty DSN selects the in-memory store.
func NewStorages(ctx context.Context, cfg config.DB, log *logger.Logger) (*Storages, error) {
	if cfg.DSN == "" {
		log.Warn().Str("func", "NewStorages").Msg("no database configured, using in-memory storage")
		return NewMemoryStorages(), nil
	}

	log.Info().Msg("creating new storages...")

	db, err := NewConnectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return NewDBStorages(db), nil
}

// NewDBStorages wires the PostgreSQL repositories over an open connection.
func NewDBStorages(db *DB) *Storages {
	return &Storages{
		Entities:  NewEntityRepository(db),
		Feed:      NewFeedRepository(db),
		Access:    NewAccessRepository(db),
		Conflicts: NewConflictRepository(db),
		close:     db.Close,
	}
}

// NewMemoryStorages wires every repository to one [MemoryStore].
func NewMemoryStorages() *Storages {
	mem := NewMemoryStore()
	return &Storages{
		Entities:  mem,
		Feed:      mem,
		Access:    mem,
		Conflicts: mem,
	}
}

// Close releases the database connection, if any.
func (s *Storages) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
