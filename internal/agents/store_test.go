package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridstate/internal/agents"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
	"github.com/roach88/gridstate/internal/testutil"
)

func add(t *testing.T, db *store.Store, s *agents.Store, a model.Agent, commit model.Commit) {
	t.Helper()
	testutil.InTx(t, db, func(tx *store.Tx) error {
		return s.Add(context.Background(), tx, a, commit)
	})
}

func TestAddFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	want := testutil.Agent()
	add(t, db, s, want, 3)

	got, err := s.Fetch(ctx, want.PublicKey, nil)
	require.NoError(t, err)
	assert.Equal(t, want.PublicKey, got.PublicKey)
	assert.Equal(t, want.OrgID, got.OrgID)
	assert.True(t, got.Active)
	assert.Equal(t, want.Metadata, got.Metadata)
	assert.Equal(t, want.Roles, got.Roles)
	assert.Equal(t, model.Commit(3), got.StartCommit)
	assert.Equal(t, model.MaxCommit, got.EndCommit)
	assert.Nil(t, got.ServiceID)
}

func TestEmptyCollectionsReadBackNil(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	add(t, db, s, model.Agent{PublicKey: "bare", OrgID: "org-1"}, 1)

	got, err := s.Fetch(ctx, "bare", nil)
	require.NoError(t, err)
	assert.Nil(t, got.Roles)
	assert.Nil(t, got.Metadata)
	assert.False(t, got.Active)
}

func TestUpdateKeepsHistory(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	a := testutil.Agent()
	add(t, db, s, a, 10)

	a.Active = false
	a.Roles = []string{"auditor"}
	testutil.InTx(t, db, func(tx *store.Tx) error {
		return s.Update(ctx, tx, a, 12)
	})

	current, err := s.Fetch(ctx, a.PublicKey, nil)
	require.NoError(t, err)
	assert.False(t, current.Active)
	assert.Equal(t, []string{"auditor"}, current.Roles)
	assert.Equal(t, model.Commit(12), current.StartCommit)

	before, err := s.FetchAsOf(ctx, a.PublicKey, nil, 11)
	require.NoError(t, err)
	assert.True(t, before.Active)
	assert.Equal(t, []string{"admin", "can_create_product"}, before.Roles)
	assert.Equal(t, model.Commit(10), before.StartCommit)
	assert.Equal(t, model.Commit(12), before.EndCommit)

	_, err = s.FetchAsOf(ctx, a.PublicKey, nil, 9)
	assert.True(t, store.IsNotFound(err))
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	db := testutil.OpenStore(t)
	s := agents.New(db)

	err := db.InTx(context.Background(), func(tx *store.Tx) error {
		return s.Update(context.Background(), tx, testutil.Agent(), 2)
	})
	assert.True(t, store.IsNotFound(err), "got %v", err)
}

func TestDeleteThenFetch(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	a := testutil.Agent()
	add(t, db, s, a, 1)
	testutil.InTx(t, db, func(tx *store.Tx) error {
		return s.Delete(ctx, tx, a.PublicKey, nil, 4)
	})

	_, err := s.Fetch(ctx, a.PublicKey, nil)
	assert.True(t, store.IsNotFound(err))

	old, err := s.FetchAsOf(ctx, a.PublicKey, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, model.Commit(4), old.EndCommit)
	assert.Equal(t, a.Roles, old.Roles)

	err = db.InTx(ctx, func(tx *store.Tx) error {
		return s.Delete(ctx, tx, a.PublicKey, nil, 5)
	})
	assert.True(t, store.IsNotFound(err))
}

func TestReAddAfterDelete(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	a := testutil.Agent()
	add(t, db, s, a, 1)
	testutil.InTx(t, db, func(tx *store.Tx) error {
		return s.Delete(ctx, tx, a.PublicKey, nil, 2)
	})
	a.Roles = []string{"admin"}
	add(t, db, s, a, 3)

	got, err := s.Fetch(ctx, a.PublicKey, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.Roles)

	_, err = s.FetchAsOf(ctx, a.PublicKey, nil, 2)
	assert.True(t, store.IsNotFound(err))
}

func TestAddTwiceIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	add(t, db, s, testutil.Agent(), 1)
	err := db.InTx(ctx, func(tx *store.Tx) error {
		return s.Add(ctx, tx, testutil.Agent(), 2)
	})
	assert.True(t, store.IsInvariantViolation(err), "got %v", err)
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	shared := testutil.Agent()
	add(t, db, s, shared, 1)

	scoped := testutil.Agent()
	scoped.ServiceID = testutil.Scope("circuit-a::svc")
	scoped.Roles = []string{"viewer"}
	add(t, db, s, scoped, 1)

	got, err := s.Fetch(ctx, shared.PublicKey, testutil.Scope("circuit-a::svc"))
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer"}, got.Roles)
	require.NotNil(t, got.ServiceID)
	assert.Equal(t, "circuit-a::svc", *got.ServiceID)

	got, err = s.Fetch(ctx, shared.PublicKey, nil)
	require.NoError(t, err)
	assert.Equal(t, shared.Roles, got.Roles)

	_, err = s.Fetch(ctx, shared.PublicKey, testutil.Scope("circuit-b::svc"))
	assert.True(t, store.IsNotFound(err))

	list, paging, err := s.List(ctx, testutil.Scope("circuit-b::svc"), model.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, paging.Total)
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	for _, key := range []string{"c", "a", "b", "d"} {
		add(t, db, s, model.Agent{PublicKey: key, OrgID: "org-1", Roles: []string{"r"}}, 1)
	}

	list, paging, err := s.List(ctx, nil, model.Page{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].PublicKey)
	assert.Equal(t, "c", list[1].PublicKey)
	assert.Equal(t, []string{"r"}, list[0].Roles)
	assert.Equal(t, model.Paging{Offset: 1, Limit: 2, Total: 4}, paging)

	all, paging, err := s.List(ctx, nil, model.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 4, paging.Total)
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	tests := []struct {
		name  string
		agent model.Agent
	}{
		{"empty key", model.Agent{}},
		{"empty role", model.Agent{PublicKey: "k", Roles: []string{""}}},
		{"duplicate role", model.Agent{PublicKey: "k", Roles: []string{"a", "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.InTx(ctx, func(tx *store.Tx) error {
				return s.Add(ctx, tx, tt.agent, 1)
			})
			assert.Equal(t, store.CodeInvalidInput, store.CodeOf(err))
		})
	}
}

func TestKeysAreNFCNormalized(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)

	add(t, db, s, model.Agent{PublicKey: "cafe\u0301"}, 1)

	got, err := s.Fetch(ctx, "caf\u00e9", nil)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got.PublicKey)
}

func TestApplyDispatches(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := agents.New(db)
	a := testutil.Agent()

	testutil.InTx(t, db, func(tx *store.Tx) error { return s.Apply(ctx, tx, model.OpAdd, a, 1) })
	a.OrgID = "org-2"
	testutil.InTx(t, db, func(tx *store.Tx) error { return s.Apply(ctx, tx, model.OpUpdate, a, 2) })

	got, err := s.Fetch(ctx, a.PublicKey, nil)
	require.NoError(t, err)
	assert.Equal(t, "org-2", got.OrgID)

	testutil.InTx(t, db, func(tx *store.Tx) error { return s.Apply(ctx, tx, model.OpDelete, a, 3) })
	_, err = s.Fetch(ctx, a.PublicKey, nil)
	assert.True(t, store.IsNotFound(err))

	err = db.InTx(ctx, func(tx *store.Tx) error { return s.Apply(ctx, tx, model.Op("merge"), a, 4) })
	assert.Equal(t, store.CodeInvalidInput, store.CodeOf(err))
}
