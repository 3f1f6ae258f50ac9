// Package sqlite stores each session database as its own SQLite file.
//
// # Layout
//
// Databases live side by side in one directory:
//
//	<dir>/pnm-room123-userA.db
//	<dir>/pnm-room123-userA.db-wal
//	<dir>/pnm-room123-userA.db-shm
//
// Each partition is a table with a text primary key and a blob value. The
// partition tables are created by embedded golang-migrate migrations; the
// migration version is partition.SchemaVersion. Databases written by a
// newer schema are opened as they are and never migrated down.
//
// # Drivers
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// The connection pool is limited to a single connection so per-connection
// pragmas hold for every statement.
package sqlite
