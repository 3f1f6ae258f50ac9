// ABOUTME: Redis engine storing each partition of a session database as a hash
// ABOUTME: Uses MULTI/EXEC for atomic writes and SCAN over schema markers for enumeration

// Package redis stores session databases on a Redis server.
//
// A database named N under namespace NS uses these keys:
//
//	NS N:schema          schema version marker, set on open
//	NS N:<partition>     hash of record key -> value
//
// Enumeration scans for schema markers, so a database exists exactly as long
// as its marker does.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

const (
	schemaSuffix = ":schema"
	scanCount    = 100
)

// Config configures the Redis engine.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string
	// Namespace is prepended to every key.
	Namespace string
	Logger    *slog.Logger
}

// Engine implements engine.Engine and engine.Lister on Redis.
type Engine struct {
	client    redis.UniversalClient
	namespace string
	logger    *slog.Logger
}

// New connects to the server at cfg.URL and verifies it responds.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewWithClient(client, cfg.Namespace, cfg.Logger), nil
}

// NewWithClient wraps an existing client. The engine takes ownership and
// closes it on Close.
func NewWithClient(client redis.UniversalClient, namespace string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		namespace: namespace,
		logger:    logger.With("component", "redis-engine"),
	}
}

func (e *Engine) schemaKey(name string) string {
	return e.namespace + name + schemaSuffix
}

func (e *Engine) partitionKey(name string, p partition.Name) string {
	return e.namespace + name + ":" + string(p)
}

// Open sets the schema marker if absent and returns a handle.
func (e *Engine) Open(ctx context.Context, name string) (engine.Handle, error) {
	if name == "" {
		return nil, errors.New("invalid database name \"\"")
	}
	if err := e.client.SetNX(ctx, e.schemaKey(name), partition.SchemaVersion, 0).Err(); err != nil {
		return nil, fmt.Errorf("writing schema marker: %w", err)
	}
	e.logger.Debug("opened database", "name", name)
	return &handle{name: name, e: e}, nil
}

// Delete removes the schema marker and every partition hash.
func (e *Engine) Delete(ctx context.Context, name string) error {
	keys := []string{e.schemaKey(name)}
	for _, p := range partition.All() {
		keys = append(keys, e.partitionKey(name, p))
	}
	if err := e.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting database %s: %w", name, err)
	}
	e.logger.Debug("deleted database", "name", name)
	return nil
}

// List scans for schema markers whose database name starts with prefix.
func (e *Engine) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(e.namespace+prefix) + "*" + schemaSuffix

	var names []string
	seen := make(map[string]bool)
	iter := e.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimSuffix(strings.TrimPrefix(iter.Val(), e.namespace), schemaSuffix)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning databases: %w", err)
	}
	return names, nil
}

// Close closes the Redis client.
func (e *Engine) Close() error {
	return e.client.Close()
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

type handle struct {
	name   string
	e      *Engine
	closed atomic.Bool
}

func (h *handle) Name() string {
	return h.name
}

// Write sets all records inside one MULTI/EXEC block. The schema marker is
// watched so a write racing Delete fails instead of leaving hashes behind
// that List can no longer see.
func (h *handle) Write(ctx context.Context, records ...engine.Record) error {
	if h.closed.Load() {
		return engine.ErrClosed
	}
	if err := engine.CheckRecords(records); err != nil {
		return err
	}

	marker := h.e.schemaKey(h.name)
	err := h.e.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, marker).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return engine.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, r := range records {
				pipe.HSet(ctx, h.e.partitionKey(h.name, r.Partition), r.Key, r.Value)
			}
			return nil
		})
		return err
	}, marker)
	if err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}

func (h *handle) Get(ctx context.Context, p partition.Name, key string) ([]byte, error) {
	if h.closed.Load() {
		return nil, engine.ErrClosed
	}
	if !partition.Known(p) {
		return nil, engine.ErrNotFound
	}
	v, err := h.e.client.HGet(ctx, h.e.partitionKey(h.name, p), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", p, key, err)
	}
	return v, nil
}

func (h *handle) GetAll(ctx context.Context, p partition.Name) ([][]byte, error) {
	if h.closed.Load() {
		return nil, engine.ErrClosed
	}
	if !partition.Known(p) {
		return [][]byte{}, nil
	}
	vals, err := h.e.client.HVals(ctx, h.e.partitionKey(h.name, p)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	values := make([][]byte, 0, len(vals))
	for _, v := range vals {
		values = append(values, []byte(v))
	}
	return values, nil
}

// Close marks the handle unusable. The client is shared and owned by the engine.
func (h *handle) Close() error {
	h.closed.Store(true)
	return nil
}
