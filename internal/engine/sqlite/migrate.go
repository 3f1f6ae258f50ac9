// ABOUTME: Schema version gating for session databases using golang-migrate
// ABOUTME: Applies the embedded partition migrations up to partition.SchemaVersion

package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/2389/pnm-localstore/internal/partition"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrateSchema brings db up to partition.SchemaVersion and returns the
// resulting version. It is a no-op for databases already at or beyond it.
func migrateSchema(db *sql.DB) (uint, error) {
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("creating sqlite migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("creating migrator: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		version = 0
	case err != nil:
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	if version >= partition.SchemaVersion {
		return version, nil
	}

	if err := m.Migrate(partition.SchemaVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("running migrations: %w", err)
	}
	return partition.SchemaVersion, nil
}
