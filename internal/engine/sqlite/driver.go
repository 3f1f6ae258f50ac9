// ABOUTME: Registers the database/sql drivers the SQLite engine can run on
// ABOUTME: modernc.org/sqlite registers "sqlite", mattn/go-sqlite3 registers "sqlite3"

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverPure = "sqlite"
	DriverCGO  = "sqlite3"
)

// ValidDriver reports whether name is a driver this engine can open.
func ValidDriver(name string) bool {
	return name == DriverPure || name == DriverCGO
}
