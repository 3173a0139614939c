package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/gunsub/internal/model"
)

// CursorStore persists the scan cursor: the instant the last successful
// scan started.
type CursorStore interface {
	// ReadCursor returns the stored cursor. ok is false when none has
	// been written yet.
	ReadCursor(ctx context.Context) (cursor time.Time, ok bool, err error)

	// WriteCursor durably replaces the stored cursor.
	WriteCursor(ctx context.Context, cursor time.Time) error
}

// RunRecorder keeps a history of poll cycles.
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.Run) error
}

// Store is a CursorStore that owns resources.
type Store interface {
	CursorStore
	Close() error
}

// Open returns the Store for the given state settings.
func Open(cfg model.StateConfig) (Store, error) {
	switch cfg.Backend {
	case model.StateBackendFile, "":
		return NewFileStore(cfg.Path), nil
	case model.StateBackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
