package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gridstate/internal/model"
)

// createTestStore opens a fresh SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Options{Backend: BackendSQLite, DSN: path})
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s
}

// org is a minimal record over OrganizationTable used to exercise the
// generic primitives.
type org struct {
	ID      string
	Name    string
	Address string
	model.Version
}

var orgCodec = &Codec[org]{
	Table:   OrganizationTable,
	Key:     func(o *org) []any { return []any{o.ID} },
	Values:  func(o *org) []any { return []any{o.Name, o.Address} },
	Fields:  func(o *org) []any { return []any{&o.ID, &o.Name, &o.Address} },
	Version: func(o *org) *model.Version { return &o.Version },
}

// role is a child record over AgentRoleTable.
type role struct {
	PublicKey string
	Name      string
	Position  int
	model.Version
}

var roleCodec = &Codec[role]{
	Table:   AgentRoleTable,
	Key:     func(r *role) []any { return []any{r.PublicKey, r.Name} },
	Values:  func(r *role) []any { return []any{r.Position} },
	Fields:  func(r *role) []any { return []any{&r.PublicKey, &r.Name, &r.Position} },
	Version: func(r *role) *model.Version { return &r.Version },
}

func inTx(t *testing.T, s *Store, fn func(tx *Tx) error) error {
	t.Helper()
	return s.InTx(context.Background(), fn)
}
