package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileStore keeps the cursor in a small text file holding seconds since
// the Unix epoch as a decimal number (e.g. "1700000000.123456"). Only the
// first whitespace-separated token is read, so the file may be edited by
// hand.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore returns a FileStore on the local filesystem.
func NewFileStore(path string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), path)
}

// NewFileStoreFs returns a FileStore on fs.
func NewFileStoreFs(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// ReadCursor reads the state file. A missing or blank file means no cursor.
func (s *FileStore) ReadCursor(_ context.Context) (time.Time, bool, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading state file %s: %w", s.path, err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return time.Time{}, false, nil
	}

	cursor, err := parseEpoch(fields[0])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	return cursor, true, nil
}

// WriteCursor replaces the state file atomically: a reader sees either
// the previous cursor or the new one.
func (s *FileStore) WriteCursor(_ context.Context, cursor time.Time) error {
	data := []byte(formatEpoch(cursor) + "\n")
	temporaryPath := s.path + ".tmp"

	file, err := s.fs.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		s.fs.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		s.fs.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		s.fs.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := s.fs.Rename(temporaryPath, s.path); err != nil {
		s.fs.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	if dir, err := s.fs.Open(filepath.Dir(s.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// formatEpoch renders t as seconds since the epoch with microsecond
// precision. t is truncated, never rounded up.
func formatEpoch(t time.Time) string {
	micros := t.Truncate(time.Microsecond).UnixMicro()
	seconds := micros / 1_000_000
	fraction := micros % 1_000_000
	if fraction < 0 {
		seconds--
		fraction += 1_000_000
	}
	return fmt.Sprintf("%d.%06d", seconds, fraction)
}

// parseEpoch reads seconds since the epoch, integral or fractional.
func parseEpoch(value string) (time.Time, error) {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch seconds %q: %w", value, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, fmt.Errorf("invalid epoch seconds %q", value)
	}

	whole, fraction := math.Modf(seconds)
	micros := int64(math.Round(fraction * 1e6))
	return time.Unix(int64(whole), micros*int64(time.Microsecond)).UTC(), nil
}
