// ABOUTME: In-memory engine implementation for tests and throwaway sessions
// ABOUTME: Mirrors the SQLite engine's semantics and adds failure injection hooks

// Package memory provides a map-backed engine.Engine.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

type database map[partition.Name]map[string][]byte

// Engine is an in-memory engine.Engine. The zero value is not usable; call New.
type Engine struct {
	mu        sync.RWMutex
	dbs       map[string]database
	opens     map[string]int
	noList    bool
	openErr   error
	writeErr  error
	getErr    error
	deleteErr map[string]error
}

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		dbs:       make(map[string]database),
		opens:     make(map[string]int),
		deleteErr: make(map[string]error),
	}
}

// Open creates the database if missing and returns a handle to it.
func (e *Engine) Open(ctx context.Context, name string) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opens[name]++
	db, ok := e.dbs[name]
	if !ok {
		db = make(database)
		e.dbs[name] = db
	}
	for _, p := range partition.All() {
		if _, ok := db[p]; !ok {
			db[p] = make(map[string][]byte)
		}
	}
	return &handle{name: name, e: e}, nil
}

// Delete removes the database.
func (e *Engine) Delete(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.deleteErr[name]; err != nil {
		return err
	}
	delete(e.dbs, name)
	return nil
}

// List returns database names starting with prefix, sorted.
func (e *Engine) List(ctx context.Context, prefix string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.noList {
		return nil, engine.ErrEnumerationUnsupported
	}
	var names []string
	for name := range e.dbs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (e *Engine) Close() error {
	return nil
}

// Exists reports whether the named database is present.
func (e *Engine) Exists(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.dbs[name]
	return ok
}

// Opens returns how many times Open succeeded for name.
func (e *Engine) Opens(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opens[name]
}

// Seed writes a raw record directly, creating the database if needed.
func (e *Engine) Seed(name string, p partition.Name, key string, value []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[name]
	if !ok {
		db = make(database)
		e.dbs[name] = db
	}
	if db[p] == nil {
		db[p] = make(map[string][]byte)
	}
	db[p][key] = append([]byte(nil), value...)
}

// DisableListing makes List return engine.ErrEnumerationUnsupported.
func (e *Engine) DisableListing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noList = true
}

// FailOpens makes every subsequent Open fail with err. Pass nil to reset.
func (e *Engine) FailOpens(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

// FailWrites makes every subsequent Write fail with err. Pass nil to reset.
func (e *Engine) FailWrites(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writeErr = err
}

// FailGets makes every subsequent Get fail with err. Pass nil to reset.
func (e *Engine) FailGets(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.getErr = err
}

// FailDelete makes Delete of name fail with err. Pass nil to reset.
func (e *Engine) FailDelete(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.deleteErr, name)
		return
	}
	e.deleteErr[name] = err
}

type handle struct {
	name string
	e    *Engine

	mu     sync.Mutex
	closed bool
}

func (h *handle) Name() string {
	return h.name
}

func (h *handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *handle) Write(ctx context.Context, records ...engine.Record) error {
	if h.isClosed() {
		return engine.ErrClosed
	}
	if err := engine.CheckRecords(records); err != nil {
		return err
	}

	h.e.mu.Lock()
	defer h.e.mu.Unlock()

	if h.e.writeErr != nil {
		return h.e.writeErr
	}
	db, ok := h.e.dbs[h.name]
	if !ok {
		return engine.ErrNotFound
	}
	for _, r := range records {
		if db[r.Partition] == nil {
			db[r.Partition] = make(map[string][]byte)
		}
		db[r.Partition][r.Key] = append([]byte(nil), r.Value...)
	}
	return nil
}

func (h *handle) Get(ctx context.Context, p partition.Name, key string) ([]byte, error) {
	if h.isClosed() {
		return nil, engine.ErrClosed
	}

	h.e.mu.RLock()
	defer h.e.mu.RUnlock()

	if h.e.getErr != nil {
		return nil, h.e.getErr
	}
	v, ok := h.e.dbs[h.name][p][key]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (h *handle) GetAll(ctx context.Context, p partition.Name) ([][]byte, error) {
	if h.isClosed() {
		return nil, engine.ErrClosed
	}

	h.e.mu.RLock()
	defer h.e.mu.RUnlock()

	values := make([][]byte, 0, len(h.e.dbs[h.name][p]))
	for _, v := range h.e.dbs[h.name][p] {
		values = append(values, append([]byte(nil), v...))
	}
	return values, nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
