// ABOUTME: SQLite engine keeping one database file per session in a directory
// ABOUTME: Opens files with WAL mode, gates the schema with migrations, enumerates by file name

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/pnm-localstore/internal/engine"
)

const fileExt = ".db"

// companions are removed alongside a database file on Delete.
var companions = []string{"", "-wal", "-shm", "-journal"}

// Config configures the SQLite engine.
type Config struct {
	// Dir holds the database files. Created if missing.
	Dir string
	// Driver is DriverPure or DriverCGO. Empty means DriverPure.
	Driver string
	Logger *slog.Logger
}

// Engine implements engine.Engine and engine.Lister on a directory of SQLite files.
type Engine struct {
	dir    string
	driver string
	logger *slog.Logger
}

// New creates a SQLite engine rooted at cfg.Dir.
func New(cfg Config) (*Engine, error) {
	if cfg.Dir == "" {
		return nil, errors.New("sqlite engine requires a directory")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPure
	}
	if !ValidDriver(driver) {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return &Engine{
		dir:    cfg.Dir,
		driver: driver,
		logger: logger.With("component", "sqlite-engine"),
	}, nil
}

// Dir returns the directory holding the database files.
func (e *Engine) Dir() string {
	return e.dir
}

// path maps a database name to its file, rejecting names that would escape the directory.
func (e *Engine) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("invalid database name %q", name)
	}
	return filepath.Join(e.dir, name+fileExt), nil
}

// Open opens (creating if needed) the named database and ensures its schema.
func (e *Engine) Open(ctx context.Context, name string) (engine.Handle, error) {
	path, err := e.path(name)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(e.driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	version, err := migrateSchema(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	e.logger.Debug("opened database", "name", name, "schema_version", version)
	return newHandle(name, db, e.logger), nil
}

// Delete removes the database file and its journal companions.
func (e *Engine) Delete(ctx context.Context, name string) error {
	path, err := e.path(name)
	if err != nil {
		return err
	}

	for _, suffix := range companions {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", filepath.Base(path+suffix), err)
		}
	}

	e.logger.Debug("deleted database", "name", name)
	return nil
}

// List returns the names of database files whose name starts with prefix.
func (e *Engine) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading database directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), fileExt)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Close is a no-op; each handle owns its own connection.
func (e *Engine) Close() error {
	return nil
}
