// ABOUTME: Best-effort staleness scanner deleting abandoned session databases
// ABOUTME: Reads each candidate's lastAccessed stamp and reports outcomes as a ScanReport

package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

// RetentionWindow is how long a database may go without a write before a
// later session deletes it. Changing it changes cleanup behavior across
// client versions.
const RetentionWindow = 6 * time.Hour

// Action is what the scanner did with a candidate database.
type Action string

// Candidate outcomes.
const (
	ActionKept    Action = "kept"
	ActionDeleted Action = "deleted"
	ActionErrored Action = "errored"
)

// CandidateResult describes one inspected database.
type CandidateResult struct {
	Name         string
	Action       Action
	Reason       string
	LastAccessed time.Time // zero when missing or malformed
	Err          error
}

// ScanReport summarizes one staleness scan.
type ScanReport struct {
	RunID       string
	StartedAt   time.Time
	Unsupported bool  // engine cannot enumerate databases
	Err         error // listing failed or the scan was cancelled
	Scanned     int
	Deleted     int
	Kept        int
	Skipped     int // the current session's database
	Errored     int
	Candidates  []CandidateResult
}

// ScanObserver receives scan reports.
type ScanObserver interface {
	ObserveScan(ScanReport)
}

// ScanObserverFunc adapts a function to ScanObserver.
type ScanObserverFunc func(ScanReport)

// ObserveScan calls f(r).
func (f ScanObserverFunc) ObserveScan(r ScanReport) {
	f(r)
}

// ScannerConfig configures a Scanner. Zero fields take defaults.
type ScannerConfig struct {
	Retention time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Scanner deletes session databases whose last write is older than the
// retention window.
type Scanner struct {
	engine    engine.Engine
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewScanner creates a Scanner over e.
func NewScanner(e engine.Engine, cfg ScannerConfig) *Scanner {
	s := &Scanner{
		engine:    e,
		retention: cfg.Retention,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if s.retention <= 0 {
		s.retention = RetentionWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Scan inspects every "pnm-" database except current and deletes the stale
// ones. Per-candidate failures are recorded in the report, never returned.
// Pass an empty current to consider every database.
func (s *Scanner) Scan(ctx context.Context, current string) ScanReport {
	report := ScanReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	logger := s.logger.With("scan_id", report.RunID)

	names, err := engine.ListNames(ctx, s.engine, NamePrefix)
	if errors.Is(err, engine.ErrEnumerationUnsupported) {
		report.Unsupported = true
		logger.Info("database enumeration unsupported, skipping stale scan")
		return report
	}
	if err != nil {
		report.Err = err
		logger.Warn("listing databases failed", "error", err)
		return report
	}

	for _, name := range names {
		if name == current {
			report.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Err = err
			logger.Warn("stale scan cancelled", "error", err)
			break
		}

		res := s.inspect(ctx, logger, name)
		report.Candidates = append(report.Candidates, res)
		report.Scanned++
		switch res.Action {
		case ActionDeleted:
			report.Deleted++
		case ActionKept:
			report.Kept++
		case ActionErrored:
			report.Errored++
		}
	}

	logger.Info("stale scan complete",
		"scanned", report.Scanned,
		"deleted", report.Deleted,
		"kept", report.Kept,
		"skipped", report.Skipped,
		"errored", report.Errored,
	)
	return report
}

func (s *Scanner) inspect(ctx context.Context, logger *slog.Logger, name string) CandidateResult {
	res := CandidateResult{Name: name}
	logger = logger.With("database", name)

	h, err := s.engine.Open(ctx, name)
	if err != nil {
		res.Action = ActionErrored
		res.Err = fmt.Errorf("opening: %w", err)
		logger.Warn("opening candidate failed", "error", err)
		return res
	}
	raw, err := h.Get(ctx, partition.Metadata, partition.LastAccessedKey)
	if cerr := h.Close(); cerr != nil {
		logger.Warn("closing candidate failed", "error", cerr)
	}

	switch {
	case errors.Is(err, engine.ErrNotFound):
		res.Reason = "missing last access"
	case err != nil:
		res.Action = ActionErrored
		res.Err = fmt.Errorf("reading last access: %w", err)
		logger.Warn("reading candidate failed", "error", err)
		return res
	default:
		ts, perr := parseLastAccessed(raw)
		if perr != nil {
			res.Reason = "malformed last access"
			break
		}
		res.LastAccessed = ts
		age := s.now().Sub(ts)
		if age <= s.retention {
			res.Action = ActionKept
			logger.Debug("candidate still fresh", "age", age)
			return res
		}
		res.Reason = fmt.Sprintf("idle for %s", age.Truncate(time.Second))
	}

	if err := s.engine.Delete(ctx, name); err != nil {
		res.Action = ActionErrored
		res.Err = fmt.Errorf("deleting: %w", err)
		logger.Warn("deleting stale candidate failed", "error", err)
		return res
	}
	res.Action = ActionDeleted
	logger.Info("deleted stale database", "reason", res.Reason)
	return res
}
