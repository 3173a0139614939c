// Package sync drives repeated scans and keeps the cursor durable
// between them.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/gunsub/internal/clock"
	"github.com/nhle/gunsub/internal/logging"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/source"
	"github.com/nhle/gunsub/internal/store"
)

// Scanner runs one scan from a cursor.
type Scanner interface {
	Scan(ctx context.Context, since *time.Time) (model.ScanResult, error)
}

// Config holds the dependencies of a Poller.
type Config struct {
	Scanner Scanner
	Cursors store.CursorStore

	// Runs receives one record per cycle when non-nil.
	Runs store.RunRecorder

	// Interval is the pause between cycles. Zero runs a single cycle.
	Interval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Poller runs scans forever (or once) and persists the cursor after
// every successful one.
type Poller struct {
	scanner  Scanner
	cursors  store.CursorStore
	runs     store.RunRecorder
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     gosync.Mutex
	cursor *time.Time
}

// New creates a Poller.
func New(cfg Config) *Poller {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		scanner:  cfg.Scanner,
		cursors:  cfg.Cursors,
		runs:     cfg.Runs,
		interval: cfg.Interval,
		clock:    c,
		logger:   logger,
	}
}

// Run reads the persisted cursor, then scans until ctx is cancelled,
// sleeping Interval between cycles.
//
// With a zero Interval it runs a single cycle and returns that cycle's
// error. Otherwise cycle errors are logged and retried after the next
// sleep; Run returns nil once ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	cursor, ok, err := p.cursors.ReadCursor(ctx)
	if err != nil {
		return fmt.Errorf("loading cursor: %w", err)
	}
	if ok {
		p.setCursor(cursor)
		p.logger.Info("resuming", "since", cursor.Format(time.RFC3339))
	} else {
		p.logger.Info("no previous cursor found")
	}

	for {
		err := p.Cycle(ctx)
		if p.interval <= 0 {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		p.logger.Debug("sleeping", "interval", p.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-p.clock.After(p.interval):
		}
	}
}

// Cycle runs one scan from the current cursor and advances the cursor
// when the scan succeeds.
func (p *Poller) Cycle(ctx context.Context) error {
	since := p.Cursor()
	scanStart := p.clock.Now()

	result, scanErr := p.scanner.Scan(ctx, since)

	run := model.Run{
		ID:           uuid.New().String(),
		StartedAt:    scanStart,
		FinishedAt:   p.clock.Now(),
		Since:        since,
		Pages:        result.Pages,
		Unsubscribed: result.Unsubscribed,
		Malformed:    result.Malformed,
	}

	var cycleErr error
	if scanErr != nil {
		cycleErr = fmt.Errorf("scan failed: %w", scanErr)
		run.Error = scanErr.Error()
		p.logScanError(ctx, scanErr, result)
	} else {
		p.logger.Info("scan complete",
			"pages", result.Pages,
			"considered", result.Considered,
			"unsubscribed", result.Unsubscribed,
			"malformed", result.Malformed,
			"dry_run", result.DryRun,
		)

		next := scanStart
		if since != nil && since.After(next) {
			next = *since
		}
		if err := p.cursors.WriteCursor(ctx, next); err != nil {
			cycleErr = fmt.Errorf("saving cursor: %w", err)
			run.Error = cycleErr.Error()
			p.logger.Error("failed to save cursor, next scan repeats this window", "error", err)
		} else {
			p.setCursor(next)
		}
	}

	p.record(ctx, run)
	return cycleErr
}

// logScanError reports a failed scan. Context cancellation is expected
// on shutdown and logged quietly.
func (p *Poller) logScanError(ctx context.Context, err error, result model.ScanResult) {
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		p.logger.Info("scan interrupted", "pages", result.Pages)
	case source.IsAuthError(err):
		p.logger.Error("authentication failed, check GITHUB_USER and GITHUB_PASSWORD", "error", err)
	default:
		p.logger.Error("scan failed, cursor unchanged",
			"error", err,
			"pages", result.Pages,
			"unsubscribed", result.Unsubscribed,
		)
	}
}

// record stores run in the history, if one is configured. History
// failures never fail the cycle.
func (p *Poller) record(ctx context.Context, run model.Run) {
	if p.runs == nil {
		return
	}
	// Record even when the cycle was cancelled.
	if err := p.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}

// Cursor returns the in-memory cursor, or nil before the first success.
func (p *Poller) Cursor() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == nil {
		return nil
	}
	cursor := *p.cursor
	return &cursor
}

func (p *Poller) setCursor(cursor time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = &cursor
}
