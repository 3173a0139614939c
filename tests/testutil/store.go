// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/nhle/gunsub/internal/store"
)

// NewTestStore opens an in-memory SQLiteStore with the schema applied.
// The store is closed when the test ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewMemoryFileStore returns a FileStore backed by an in-memory
// filesystem, along with that filesystem for inspection.
func NewMemoryFileStore(t *testing.T, path string) (*store.FileStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return store.NewFileStoreFs(fs, path), fs
}
