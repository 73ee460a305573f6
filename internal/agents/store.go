// Package agents stores versioned agents and their role assignments.
package agents

import (
	"context"
	"fmt"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

const entity = "agent"

// roleRow is one role assignment of an agent.
type roleRow struct {
	PublicKey string
	Name      string
	Position  int
	model.Version
}

var agentCodec = &store.Codec[model.Agent]{
	Table:  store.AgentTable,
	Key:    func(a *model.Agent) []any { return []any{a.PublicKey} },
	Values: func(a *model.Agent) []any { return []any{a.OrgID, a.Active, store.Blob(a.Metadata)} },
	Fields: func(a *model.Agent) []any {
		return []any{&a.PublicKey, &a.OrgID, &a.Active, (*[]byte)(&a.Metadata)}
	},
	Version: func(a *model.Agent) *model.Version { return &a.Version },
}

var roleCodec = &store.Codec[roleRow]{
	Table:   store.AgentRoleTable,
	Key:     func(r *roleRow) []any { return []any{r.PublicKey, r.Name} },
	Values:  func(r *roleRow) []any { return []any{r.Position} },
	Fields:  func(r *roleRow) []any { return []any{&r.PublicKey, &r.Name, &r.Position} },
	Version: func(r *roleRow) *model.Version { return &r.Version },
}

// Store reads and writes agents.
type Store struct {
	db *store.Store
}

// New returns an agent store over db.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// Add inserts a as a new agent at commit. The agent's ServiceID is its scope.
func (s *Store) Add(ctx context.Context, tx *store.Tx, a model.Agent, commit model.Commit) error {
	a, err := normalize(a)
	if err != nil {
		return err
	}
	if err := store.InsertCurrent(ctx, tx, agentCodec, a.ServiceID, commit, a); err != nil {
		return fmt.Errorf("add agent: %w", err)
	}
	if err := insertRoles(ctx, tx, a, commit); err != nil {
		return fmt.Errorf("add agent: %w", err)
	}
	return nil
}

// Update closes the current version of the agent and inserts a in its
// place. Roles are replaced wholesale.
func (s *Store) Update(ctx context.Context, tx *store.Tx, a model.Agent, commit model.Commit) error {
	a, err := normalize(a)
	if err != nil {
		return err
	}
	if err := store.ReplaceCurrent(ctx, tx, agentCodec, a.ServiceID, commit, a); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if _, err := store.CloseAll(ctx, tx, store.AgentRoleTable, []any{a.PublicKey}, a.ServiceID, commit); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if err := insertRoles(ctx, tx, a, commit); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return nil
}

// Delete closes the current version of the agent and its roles at commit.
func (s *Store) Delete(ctx context.Context, tx *store.Tx, publicKey string, scope *string, commit model.Commit) error {
	publicKey = model.NormalizeKey(publicKey)
	scope = model.NormalizeScope(scope)

	_, ok, err := store.CloseCurrent(ctx, tx, agentCodec, []any{publicKey}, scope, commit)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if !ok {
		return store.NewNotFoundError(entity, publicKey)
	}
	if _, err := store.CloseAll(ctx, tx, store.AgentRoleTable, []any{publicKey}, scope, commit); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

// Apply dispatches a ledger delta.
func (s *Store) Apply(ctx context.Context, tx *store.Tx, op model.Op, a model.Agent, commit model.Commit) error {
	switch op {
	case model.OpAdd:
		return s.Add(ctx, tx, a, commit)
	case model.OpUpdate:
		return s.Update(ctx, tx, a, commit)
	case model.OpDelete:
		return s.Delete(ctx, tx, a.PublicKey, a.ServiceID, commit)
	}
	return store.NewInvalidInputError(entity, a.PublicKey, "unknown op %q", op)
}

// Fetch returns the current version of an agent.
func (s *Store) Fetch(ctx context.Context, publicKey string, scope *string) (model.Agent, error) {
	return s.FetchAsOf(ctx, publicKey, scope, model.MaxCommit)
}

// FetchAsOf returns the agent as it was at commit.
func (s *Store) FetchAsOf(ctx context.Context, publicKey string, scope *string, commit model.Commit) (model.Agent, error) {
	publicKey = model.NormalizeKey(publicKey)
	scope = model.NormalizeScope(scope)

	var a model.Agent
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		var err error
		a, err = store.ReadAsOf(ctx, tx, agentCodec, []any{publicKey}, scope, commit)
		if err != nil {
			return err
		}
		return loadRoles(ctx, tx, &a, commit)
	})
	if err != nil {
		return model.Agent{}, err
	}
	return a, nil
}

// List returns the current agents in scope.
func (s *Store) List(ctx context.Context, scope *string, page model.Page) ([]model.Agent, model.Paging, error) {
	scope = model.NormalizeScope(scope)
	page = page.Normalize()

	var agents []model.Agent
	paging := model.Paging{Offset: page.Offset, Limit: page.Limit}
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		total, err := store.CountAsOf(ctx, tx, store.AgentTable, scope, model.MaxCommit, nil)
		if err != nil {
			return err
		}
		paging.Total = total

		agents, err = store.ListCurrent(ctx, tx, agentCodec, scope, store.Filter{Page: page})
		if err != nil {
			return err
		}
		for i := range agents {
			if err := loadRoles(ctx, tx, &agents[i], model.MaxCommit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.Paging{}, err
	}
	return agents, paging, nil
}

func loadRoles(ctx context.Context, tx *store.Tx, a *model.Agent, commit model.Commit) error {
	if len(a.Metadata) == 0 {
		a.Metadata = nil
	}
	rows, err := store.ListAsOf(ctx, tx, roleCodec, a.ServiceID, commit, store.Filter{Prefix: []any{a.PublicKey}})
	if err != nil {
		return err
	}
	a.Roles = nil
	for _, r := range rows {
		a.Roles = append(a.Roles, r.Name)
	}
	return nil
}

func insertRoles(ctx context.Context, tx *store.Tx, a model.Agent, commit model.Commit) error {
	for i, name := range a.Roles {
		r := roleRow{PublicKey: a.PublicKey, Name: name, Position: i}
		if err := store.InsertCurrent(ctx, tx, roleCodec, a.ServiceID, commit, r); err != nil {
			return err
		}
	}
	return nil
}

func normalize(a model.Agent) (model.Agent, error) {
	a.PublicKey = model.NormalizeKey(a.PublicKey)
	a.OrgID = model.NormalizeKey(a.OrgID)
	a.ServiceID = model.NormalizeScope(a.ServiceID)
	if a.PublicKey == "" {
		return a, store.NewInvalidInputError(entity, "", "public key is empty")
	}
	seen := make(map[string]bool, len(a.Roles))
	for _, r := range a.Roles {
		if r == "" {
			return a, store.NewInvalidInputError(entity, a.PublicKey, "role name is empty")
		}
		if seen[r] {
			return a, store.NewInvalidInputError(entity, a.PublicKey, "duplicate role %q", r)
		}
		seen[r] = true
	}
	return a, nil
}
