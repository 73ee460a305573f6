// Package testutil provides shared fixtures for package tests: temp-dir
// stores, deterministic commit sequences and sample entities.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// OpenStore opens a fresh SQLite store in a temp dir and closes it when the
// test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := store.Open(context.Background(), store.Options{Backend: store.BackendSQLite, DSN: path})
	require.NoError(t, err, "store.Open")
	t.Cleanup(func() { s.Close() })
	return s
}

// InTx runs fn in a write transaction and fails the test on error.
func InTx(t testing.TB, s *store.Store, fn func(tx *store.Tx) error) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), fn))
}

// Dump returns the store dump and fails the test on error.
func Dump(t testing.TB, s *store.Store) []store.TableDump {
	t.Helper()
	d, err := s.Dump(context.Background())
	require.NoError(t, err, "store.Dump")
	return d
}

// Scope is shorthand for model.ServiceID in table-driven tests.
func Scope(id string) *string {
	return model.ServiceID(id)
}
