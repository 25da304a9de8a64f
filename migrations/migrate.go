// Package migrations embeds the goose schema migrations of the sync server
// (PostgreSQL) and of the field client's local outbox (SQLite).
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var embedMigrations embed.FS

//go:embed local/*.sql
var embedLocalMigrations embed.FS

// ErrNilDB is returned when a migration is requested without a connection.
var ErrNilDB = errors.New("db is nil")

// Migrate applies the server migrations to a PostgreSQL database.
func Migrate(db *sql.DB) error {
	return migrate(db, embedMigrations, ".", "postgres")
}

// MigrateLocal applies the outbox migrations to a SQLite database.
func MigrateLocal(db *sql.DB) error {
	return migrate(db, embedLocalMigrations, "local", "sqlite3")
}

func migrate(db *sql.DB, fsys fs.FS, dir, dialect string) error {
	if db == nil {
		return fmt.Errorf("migration error: %w", ErrNilDB)
	}

	goose.SetBaseFS(fsys)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migration error setting dialect for db: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}
