// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package migrations

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
)

func TestMigrate_Errors(t *testing.T) {
	broken, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer broken.Close()

	tests := []struct {
		name    string
		run     func() error
		wantNil bool
	}{
		// goose issues its own version queries; sqlmock rejects them all.
		{name: "server schema on failing db", run: func() error { return Migrate(broken) }},
		{name: "server schema without db", run: func() error { return Migrate(nil) }, wantNil: true},
		{name: "outbox schema without db", run: func() error { return MigrateLocal(nil) }, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !strings.Contains(err.Error(), "migration error") {
				t.Errorf("expected wrapped migration error, got: %v", err)
			}
			if got := errors.Is(err, ErrNilDB); got != tt.wantNil {
				t.Errorf("errors.Is(err, ErrNilDB) = %v, want %v", got, tt.wantNil)
			}
		})
	}
}

func TestMigrateLocal_CreatesOutboxTables(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()

	if err := MigrateLocal(db); err != nil {
		t.Fatalf("MigrateLocal: %v", err)
	}
	// second run is a no-op
	if err := MigrateLocal(db); err != nil {
		t.Fatalf("MigrateLocal (again): %v", err)
	}

	for _, table := range []string{"outbox", "local_entities", "pulled_changes", "sync_state"} {
		var name string
		row := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err := row.Scan(&name); err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}
