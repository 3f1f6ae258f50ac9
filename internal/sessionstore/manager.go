// ABOUTME: Connection lifecycle manager owning the single session database handle
// ABOUTME: Explicit state machine for init/open/teardown plus the background stale scan

package sessionstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

// State is the lifecycle state of a Manager's database handle.
type State int

// Manager states.
const (
	StateUninitialized State = iota
	StateOpening
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetention overrides RetentionWindow for the staleness scan.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		m.retention = d
	}
}

// WithClock replaces time.Now for lastAccessed stamps and staleness checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithScanObserver receives the report of every staleness scan.
func WithScanObserver(o ScanObserver) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// Manager owns at most one open session database and serves reads and
// writes against it. It is safe for concurrent use.
type Manager struct {
	engine    engine.Engine
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
	observer  ScanObserver
	scanner   *Scanner

	mu      sync.Mutex
	state   State
	name    string
	handle  engine.Handle
	openErr error
	ready   chan struct{}   // closed when the in-flight open finishes
	scans   []chan struct{} // one per scan started by Init, closed when it finishes
}

// New creates a Manager storing databases through e.
func New(e engine.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:    e,
		logger:    slog.Default(),
		retention: RetentionWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "sessionstore")
	m.scanner = NewScanner(e, ScannerConfig{
		Retention: m.retention,
		Now:       m.now,
		Logger:    m.logger,
	})
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Name returns the active database name, or "" when none is initialized.
func (m *Manager) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Init starts opening the database for sessionID and userID and kicks off a
// staleness scan in the background. It returns without waiting for either.
// While a database is opening, open or failed, Init does nothing.
func (m *Manager) Init(ctx context.Context, sessionID, userID string) error {
	name, err := DatabaseName(sessionID, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateOpening, StateOpen, StateFailed:
		m.logger.Debug("init ignored, database already initialized",
			"database", m.name, "requested", name, "state", m.state)
		return nil
	}

	ready := make(chan struct{})
	m.state = StateOpening
	m.name = name
	m.handle = nil
	m.openErr = nil
	m.ready = ready

	// Background work must outlive the caller's request context.
	bg := context.WithoutCancel(ctx)
	go m.open(bg, name, ready)

	done := make(chan struct{})
	m.scans = append(pendingScans(m.scans), done)
	go func() {
		defer close(done)
		m.runScan(bg, name)
	}()

	m.logger.Info("initializing session database", "database", name)
	return nil
}

func (m *Manager) open(ctx context.Context, name string, ready chan struct{}) {
	h, err := m.engine.Open(ctx, name)
	if err == nil {
		if werr := h.Write(ctx, m.lastAccessedRecord()); werr != nil {
			m.logger.Warn("recording last access failed", "database", name, "error", werr)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = StateFailed
		m.openErr = err
		m.logger.Error("opening session database failed", "database", name, "error", err)
	} else {
		m.state = StateOpen
		m.handle = h
		m.logger.Debug("session database open", "database", name)
	}
	close(ready)
}

func (m *Manager) runScan(ctx context.Context, current string) {
	report := m.scanner.Scan(ctx, current)
	if m.observer != nil {
		m.observer.ObserveScan(report)
	}
}

// Wait blocks until every staleness scan started by Init before the call has
// finished. It is safe to call concurrently with Init.
func (m *Manager) Wait() {
	m.mu.Lock()
	scans := append([]chan struct{}(nil), m.scans...)
	m.mu.Unlock()

	for _, done := range scans {
		<-done
	}
}

// pendingScans drops finished scans from scans.
func pendingScans(scans []chan struct{}) []chan struct{} {
	out := scans[:0]
	for _, done := range scans {
		select {
		case <-done:
		default:
			out = append(out, done)
		}
	}
	return out
}

// acquire returns the open handle, waiting for an in-flight open.
func (m *Manager) acquire(ctx context.Context) (engine.Handle, error) {
	for {
		m.mu.Lock()
		state, name, h, openErr, ready := m.state, m.name, m.handle, m.openErr, m.ready
		m.mu.Unlock()

		switch state {
		case StateOpen:
			return h, nil
		case StateFailed:
			return nil, fmt.Errorf("opening %s: %w", name, openErr)
		case StateOpening:
			if err := wait(ctx, ready); err != nil {
				return nil, err
			}
		default:
			return nil, ErrNotInitialized
		}
	}
}

// Teardown closes and deletes the session database so a later Init starts
// fresh. It waits for an in-flight open. Without an initialized database it
// does nothing.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.state == StateOpening {
		ready := m.ready
		m.mu.Unlock()
		err := wait(ctx, ready)
		m.mu.Lock()
		if err != nil {
			return err
		}
	}

	name := m.name
	switch m.state {
	case StateOpen:
		if err := m.handle.Close(); err != nil {
			m.logger.Warn("closing session database failed", "database", name, "error", err)
		}
		if err := m.engine.Delete(ctx, name); err != nil {
			m.reset()
			return fmt.Errorf("deleting %s: %w", name, err)
		}
		m.logger.Info("session database torn down", "database", name)
	case StateFailed:
		m.logger.Debug("discarding failed session database", "database", name)
	default:
		return nil
	}

	m.reset()
	return nil
}

// Close releases the session database without deleting it. A later Init
// reopens the same data.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.state == StateOpening {
		ready := m.ready
		m.mu.Unlock()
		err := wait(ctx, ready)
		m.mu.Lock()
		if err != nil {
			return err
		}
	}

	var err error
	if m.state == StateOpen {
		if cerr := m.handle.Close(); cerr != nil {
			err = fmt.Errorf("closing %s: %w", m.name, cerr)
		}
	}
	if m.state == StateOpen || m.state == StateFailed {
		m.reset()
	}
	return err
}

// reset must be called with mu held.
func (m *Manager) reset() {
	m.state = StateClosed
	m.name = ""
	m.handle = nil
	m.openErr = nil
	m.ready = nil
}

func (m *Manager) lastAccessedRecord() engine.Record {
	return engine.Record{
		Partition: partition.Metadata,
		Key:       partition.LastAccessedKey,
		Value:     []byte(strconv.FormatInt(m.now().UnixMilli(), 10)),
	}
}

func wait(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
