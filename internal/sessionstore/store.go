// ABOUTME: Partition read and write operations on the session database
// ABOUTME: Put stamps lastAccessed in the same transaction; reads never touch it

package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

// Put stores value under key in partition p, together with the current time
// as the metadata lastAccessed record. Both land or neither does.
func (m *Manager) Put(ctx context.Context, p partition.Name, key string, value any) error {
	h, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	if !partition.Known(p) {
		return &StorageWriteError{Partition: p, Key: key, Err: engine.ErrUnknownPartition}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", p, key, err)
	}

	if err := h.Write(ctx, engine.Record{Partition: p, Key: key, Value: data}, m.lastAccessedRecord()); err != nil {
		return &StorageWriteError{Partition: p, Key: key, Err: err}
	}

	m.logger.Debug("stored record", "partition", p, "key", key, "bytes", len(data))
	return nil
}

// Get returns the JSON value stored under key in partition p.
func (m *Manager) Get(ctx context.Context, p partition.Name, key string) (json.RawMessage, error) {
	h, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}

	v, err := h.Get(ctx, p, key)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(v), nil
}

// GetAll returns every JSON value in partition p. Order is unspecified.
func (m *Manager) GetAll(ctx context.Context, p partition.Name) ([]json.RawMessage, error) {
	h, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}

	values, err := h.GetAll(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}

// GetAs decodes the value under key into a T.
func GetAs[T any](ctx context.Context, m *Manager, p partition.Name, key string) (T, error) {
	var out T
	raw, err := m.Get(ctx, p, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s/%s: %w", p, key, err)
	}
	return out, nil
}

// LastAccessed returns the time of the most recent write to the session database.
func (m *Manager) LastAccessed(ctx context.Context) (time.Time, error) {
	raw, err := m.Get(ctx, partition.Metadata, partition.LastAccessedKey)
	if err != nil {
		return time.Time{}, err
	}
	return parseLastAccessed(raw)
}

// parseLastAccessed decodes a millisecond epoch timestamp.
func parseLastAccessed(raw []byte) (time.Time, error) {
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("malformed %s %q: %w", partition.LastAccessedKey, raw, err)
	}
	return time.UnixMilli(int64(ms)), nil
}
