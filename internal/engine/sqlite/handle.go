// ABOUTME: Open SQLite session database implementing engine.Handle
// ABOUTME: Builds statements with squirrel and writes records in a single transaction

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	sq "github.com/Masterminds/squirrel"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

const upsertSuffix = "ON CONFLICT(record_key) DO UPDATE SET record_value = excluded.record_value"

type handle struct {
	name   string
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

func newHandle(name string, db *sql.DB, logger *slog.Logger) *handle {
	return &handle{
		name:   name,
		db:     db,
		logger: logger.With("database", name),
	}
}

// table quotes a partition name for use as a table identifier. Callers must
// have checked the partition against the registry.
func table(p partition.Name) string {
	return `"` + string(p) + `"`
}

func (h *handle) Name() string {
	return h.name
}

// Write upserts every record inside one transaction.
func (h *handle) Write(ctx context.Context, records ...engine.Record) error {
	if h.closed.Load() {
		return engine.ErrClosed
	}
	if err := engine.CheckRecords(records); err != nil {
		return err
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for _, r := range records {
		query, args, err := sq.Insert(table(r.Partition)).
			Columns("record_key", "record_value").
			Values(r.Key, r.Value).
			Suffix(upsertSuffix).
			ToSql()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("building insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing %s/%s: %w", r.Partition, r.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	h.logger.Debug("wrote records", "count", len(records))
	return nil
}

// Get returns the value stored under key, or engine.ErrNotFound.
func (h *handle) Get(ctx context.Context, p partition.Name, key string) ([]byte, error) {
	if h.closed.Load() {
		return nil, engine.ErrClosed
	}
	if !partition.Known(p) {
		return nil, engine.ErrNotFound
	}

	query, args, err := sq.Select("record_value").
		From(table(p)).
		Where(sq.Eq{"record_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var value []byte
	err = h.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", p, key, err)
	}
	return value, nil
}

// GetAll returns every value in the partition.
func (h *handle) GetAll(ctx context.Context, p partition.Name) ([][]byte, error) {
	if h.closed.Load() {
		return nil, engine.ErrClosed
	}
	if !partition.Known(p) {
		return [][]byte{}, nil
	}

	query, args, err := sq.Select("record_value").From(table(p)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	defer rows.Close()

	values := [][]byte{}
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", p, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", p, err)
	}
	return values, nil
}

// Close closes the underlying connection. Subsequent calls are no-ops.
func (h *handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.db.Close()
}
