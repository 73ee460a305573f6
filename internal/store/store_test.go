package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridstate/internal/model"
)

func TestOpenAppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("synchronous", "1"))
	require.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	s1, err := Open(ctx, Options{DSN: path})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, Options{DSN: path})
	require.NoError(t, err)
	defer s2.Close()

	version, dirty, err := s2.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(currentSchemaVersion), version)
	assert.False(t, dirty)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]Backend{
		"sqlite":     BackendSQLite,
		"SQLite3":    BackendSQLite,
		"postgres":   BackendPostgres,
		"postgresql": BackendPostgres,
	} {
		got, err := ParseBackend(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBackend("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE a = ? AND b = ? LIMIT ?"
	assert.Equal(t, q, BackendSQLite.rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE a = $1 AND b = $2 LIMIT $3", BackendPostgres.rebind(q))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "x.db?_txlock=immediate&_busy_timeout=5000", BackendSQLite.dsn("x.db"))
	assert.Equal(t, "x.db?cache=shared&_txlock=immediate&_busy_timeout=5000", BackendSQLite.dsn("x.db?cache=shared"))
	assert.Equal(t, "x.db?_txlock=deferred&_busy_timeout=5000", BackendSQLite.dsn("x.db?_txlock=deferred"))
	assert.Equal(t, "postgres://h/db", BackendPostgres.dsn("postgres://h/db"))
}

func TestLimitClause(t *testing.T) {
	clause, args := BackendSQLite.limitClause(model.Page{Offset: 3})
	assert.Equal(t, " LIMIT -1 OFFSET ?", clause)
	assert.Equal(t, []any{3}, args)

	clause, args = BackendPostgres.limitClause(model.Page{Offset: 3})
	assert.Equal(t, " OFFSET ?", clause)
	assert.Equal(t, []any{3}, args)

	clause, args = BackendPostgres.limitClause(model.Page{})
	assert.Empty(t, clause)
	assert.Nil(t, args)
}

func TestUpdateHistoryAndAsOf(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		return InsertCurrent(ctx, tx, orgCodec, nil, 10, org{ID: "org-1", Name: "Acme"})
	}))
	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		return ReplaceCurrent(ctx, tx, orgCodec, nil, 12, org{ID: "org-1", Name: "Acme Corp"})
	}))

	err := s.ReadTx(ctx, func(tx *Tx) error {
		old, err := ReadAsOf(ctx, tx, orgCodec, []any{"org-1"}, nil, 11)
		require.NoError(t, err)
		assert.Equal(t, "Acme", old.Name)
		assert.Equal(t, model.Commit(10), old.StartCommit)
		assert.Equal(t, model.Commit(12), old.EndCommit)
		assert.Nil(t, old.ServiceID)

		cur, err := ReadCurrent(ctx, tx, orgCodec, []any{"org-1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", cur.Name)
		assert.Equal(t, model.Commit(12), cur.StartCommit)
		assert.Equal(t, model.MaxCommit, cur.EndCommit)

		atEnd, err := ReadAsOf(ctx, tx, orgCodec, []any{"org-1"}, nil, 12)
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", atEnd.Name, "end bound is exclusive")

		_, err = ReadAsOf(ctx, tx, orgCodec, []any{"org-1"}, nil, 9)
		assert.True(t, IsNotFound(err))

		history, err := History(ctx, tx, orgCodec, []any{"org-1"}, nil)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, history[0].EndCommit, history[1].StartCommit, "versions are contiguous")
		return nil
	})
	require.NoError(t, err)
}

func TestInsertCurrentRejectsSecondCurrent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		return InsertCurrent(ctx, tx, orgCodec, nil, 1, org{ID: "org-1", Name: "Acme"})
	}))

	err := inTx(t, s, func(tx *Tx) error {
		return InsertCurrent(ctx, tx, orgCodec, nil, 2, org{ID: "org-1", Name: "Other"})
	})
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestUniqueIndexBacksSingleCurrent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := inTx(t, s, func(tx *Tx) error {
		if err := InsertCurrent(ctx, tx, orgCodec, nil, 1, org{ID: "org-1"}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO organization (org_id, name, address, start_commit_num, end_commit_num, service_id)
			VALUES (?, ?, ?, ?, ?, NULL)
		`, "org-1", "dup", "", 2, model.MaxCommit)
		return tx.Classify("raw insert", "organization", "org-1", err)
	})
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err), "got %v", err)
}

func TestIntervalCheckConstraint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := inTx(t, s, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO organization (org_id, name, address, start_commit_num, end_commit_num, service_id)
			VALUES (?, ?, ?, ?, ?, NULL)
		`, "org-1", "", "", 5, 5)
		return err
	})
	assert.Error(t, err)
}

func TestCloseCurrent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		return InsertCurrent(ctx, tx, orgCodec, nil, 10, org{ID: "org-1", Name: "Acme"})
	}))

	t.Run("closing before the start is rejected", func(t *testing.T) {
		err := inTx(t, s, func(tx *Tx) error {
			_, _, err := CloseCurrent(ctx, tx, orgCodec, []any{"org-1"}, nil, 8)
			return err
		})
		assert.True(t, IsInvariantViolation(err))
	})

	t.Run("missing key reports not ok", func(t *testing.T) {
		require.NoError(t, inTx(t, s, func(tx *Tx) error {
			_, ok, err := CloseCurrent(ctx, tx, orgCodec, []any{"org-2"}, nil, 11)
			assert.False(t, ok)
			return err
		}))
	})

	t.Run("close returns the prior version", func(t *testing.T) {
		require.NoError(t, inTx(t, s, func(tx *Tx) error {
			prior, ok, err := CloseCurrent(ctx, tx, orgCodec, []any{"org-1"}, nil, 11)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "Acme", prior.Name)
			assert.Equal(t, model.MaxCommit, prior.EndCommit)
			return nil
		}))

		err := s.ReadTx(ctx, func(tx *Tx) error {
			_, err := ReadCurrent(ctx, tx, orgCodec, []any{"org-1"}, nil)
			assert.True(t, IsNotFound(err))

			atTen, err := ReadAsOf(ctx, tx, orgCodec, []any{"org-1"}, nil, 10)
			require.NoError(t, err)
			assert.Equal(t, model.Commit(11), atTen.EndCommit)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestReplaceWithinOneCommitOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		if err := InsertCurrent(ctx, tx, orgCodec, nil, 5, org{ID: "org-1", Name: "Draft"}); err != nil {
			return err
		}
		return ReplaceCurrent(ctx, tx, orgCodec, nil, 5, org{ID: "org-1", Name: "Final"})
	}))

	require.NoError(t, s.ReadTx(ctx, func(tx *Tx) error {
		history, err := History(ctx, tx, orgCodec, []any{"org-1"}, nil)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "Final", history[0].Name)
		assert.Equal(t, model.Commit(5), history[0].StartCommit)
		return nil
	}))
}

func TestReplaceCurrentMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := inTx(t, s, func(tx *Tx) error {
		return ReplaceCurrent(ctx, tx, orgCodec, nil, 3, org{ID: "ghost"})
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCommitBounds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, c := range []model.Commit{model.NoCommit, -1, model.MaxCommit} {
		err := inTx(t, s, func(tx *Tx) error {
			return InsertCurrent(ctx, tx, orgCodec, nil, c, org{ID: "org-1"})
		})
		assert.True(t, errors.Is(err, ErrInvalidInput), "commit %d", c)
	}
}

func TestScopeIsolation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tenantA := model.ServiceID("circuit-a")
	tenantB := model.ServiceID("circuit-b")

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		if err := InsertCurrent(ctx, tx, orgCodec, tenantA, 1, org{ID: "org-1", Name: "A"}); err != nil {
			return err
		}
		// Same key in the shared scope is a different record.
		return InsertCurrent(ctx, tx, orgCodec, nil, 1, org{ID: "org-1", Name: "Shared"})
	}))

	require.NoError(t, s.ReadTx(ctx, func(tx *Tx) error {
		got, err := ReadCurrent(ctx, tx, orgCodec, []any{"org-1"}, tenantA)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
		require.NotNil(t, got.ServiceID)
		assert.Equal(t, "circuit-a", *got.ServiceID)

		shared, err := ReadCurrent(ctx, tx, orgCodec, []any{"org-1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Shared", shared.Name)

		_, err = ReadCurrent(ctx, tx, orgCodec, []any{"org-1"}, tenantB)
		assert.True(t, IsNotFound(err))

		listA, err := ListCurrent(ctx, tx, orgCodec, tenantA, Filter{})
		require.NoError(t, err)
		assert.Len(t, listA, 1)

		listB, err := ListCurrent(ctx, tx, orgCodec, tenantB, Filter{})
		require.NoError(t, err)
		assert.NotNil(t, listB)
		assert.Empty(t, listB)
		return nil
	}))
}

func TestListCurrentPaging(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		for _, id := range []string{"org-3", "org-1", "org-5", "org-2", "org-4"} {
			if err := InsertCurrent(ctx, tx, orgCodec, nil, 1, org{ID: id}); err != nil {
				return err
			}
		}
		return nil
	}))

	ids := func(orgs []org) []string {
		out := make([]string, len(orgs))
		for i, o := range orgs {
			out[i] = o.ID
		}
		return out
	}

	require.NoError(t, s.ReadTx(ctx, func(tx *Tx) error {
		all, err := ListCurrent(ctx, tx, orgCodec, nil, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-1", "org-2", "org-3", "org-4", "org-5"}, ids(all))

		page, err := ListCurrent(ctx, tx, orgCodec, nil, Filter{Page: model.Page{Offset: 1, Limit: 2}})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-2", "org-3"}, ids(page))

		tail, err := ListCurrent(ctx, tx, orgCodec, nil, Filter{Page: model.Page{Offset: 3}})
		require.NoError(t, err)
		assert.Equal(t, []string{"org-4", "org-5"}, ids(tail))

		n, err := CountAsOf(ctx, tx, OrganizationTable, nil, model.MaxCommit, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		return nil
	}))
}

func TestCloseAllChildren(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		for i, name := range []string{"admin", "buyer", "seller"} {
			if err := InsertCurrent(ctx, tx, roleCodec, nil, 3, role{PublicKey: "k1", Name: name, Position: i}); err != nil {
				return err
			}
		}
		return InsertCurrent(ctx, tx, roleCodec, nil, 3, role{PublicKey: "k2", Name: "admin"})
	}))

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		if err := InsertCurrent(ctx, tx, roleCodec, nil, 4, role{PublicKey: "k1", Name: "auditor", Position: 3}); err != nil {
			return err
		}
		n, err := CloseAll(ctx, tx, AgentRoleTable, []any{"k1"}, nil, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n, "three closed and one born this commit removed")
		return nil
	}))

	require.NoError(t, s.ReadTx(ctx, func(tx *Tx) error {
		before, err := ListAsOf(ctx, tx, roleCodec, nil, 3, Filter{Prefix: []any{"k1"}})
		require.NoError(t, err)
		require.Len(t, before, 3)
		assert.Equal(t, "admin", before[0].Name)
		assert.Equal(t, "seller", before[2].Name)

		after, err := ListCurrent(ctx, tx, roleCodec, nil, Filter{Prefix: []any{"k1"}})
		require.NoError(t, err)
		assert.Empty(t, after)

		other, err := ListCurrent(ctx, tx, roleCodec, nil, Filter{Prefix: []any{"k2"}})
		require.NoError(t, err)
		assert.Len(t, other, 1, "other parents are untouched")
		return nil
	}))
}

func TestCloseAllRejectsFutureRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		return InsertCurrent(ctx, tx, roleCodec, nil, 9, role{PublicKey: "k1", Name: "admin"})
	}))
	err := inTx(t, s, func(tx *Tx) error {
		_, err := CloseAll(ctx, tx, AgentRoleTable, []any{"k1"}, nil, 7)
		return err
	})
	assert.True(t, IsInvariantViolation(err))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := inTx(t, s, func(tx *Tx) error {
		if err := InsertCurrent(ctx, tx, orgCodec, nil, 1, org{ID: "org-1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.ReadTx(ctx, func(tx *Tx) error {
		_, err := ReadCurrent(ctx, tx, orgCodec, []any{"org-1"}, nil)
		assert.True(t, IsNotFound(err))
		return nil
	}))
}

func TestDumpIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	a := createTestStore(t)
	b := createTestStore(t)

	write := func(s *Store, ids ...string) {
		require.NoError(t, inTx(t, s, func(tx *Tx) error {
			for _, id := range ids {
				if err := InsertCurrent(ctx, tx, orgCodec, nil, 2, org{ID: id, Name: id}); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	write(a, "x", "y", "z")
	write(b, "z", "x", "y")

	da, err := a.Dump(ctx)
	require.NoError(t, err)
	db, err := b.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	require.Len(t, da, len(Tables)+1)
	assert.Equal(t, CommitsTable, da[0].Name)
}

func TestClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *Tx) error {
		return InsertCurrent(ctx, tx, orgCodec, nil, 1, org{ID: "org-1"})
	}))
	require.NoError(t, s.Clear(ctx))

	dump, err := s.Dump(ctx)
	require.NoError(t, err)
	for _, d := range dump {
		assert.Empty(t, d.Rows, d.Name)
	}
}
