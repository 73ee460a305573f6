// Package schemas stores versioned schemas and their property definition
// trees.
package schemas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
	"github.com/roach88/gridstate/internal/tree"
)

const entity = "schema"

// definitionRow is one flattened property definition. Enum options are kept
// as a JSON array in a single column.
type definitionRow struct {
	Schema string
	tree.Node[model.PropertyDefinition]
	EnumOptions string
	model.Version
}

var schemaCodec = &store.Codec[model.Schema]{
	Table:   store.SchemaTable,
	Key:     func(s *model.Schema) []any { return []any{s.Name} },
	Values:  func(s *model.Schema) []any { return []any{s.Description, s.Owner} },
	Fields:  func(s *model.Schema) []any { return []any{&s.Name, &s.Description, &s.Owner} },
	Version: func(s *model.Schema) *model.Version { return &s.Version },
}

var definitionCodec = &store.Codec[definitionRow]{
	Table: store.SchemaPropertyTable,
	Key:   func(r *definitionRow) []any { return []any{r.Schema, r.Name} },
	Values: func(r *definitionRow) []any {
		v := &r.Value
		return []any{r.Parent, r.Position, string(v.DataType), v.Required, v.Description, v.NumberExponent, r.EnumOptions}
	},
	Fields: func(r *definitionRow) []any {
		v := &r.Value
		return []any{&r.Schema, &r.Name, &r.Parent, &r.Position, &v.DataType, &v.Required, &v.Description, &v.NumberExponent, &r.EnumOptions}
	},
	Version: func(r *definitionRow) *model.Version { return &r.Version },
}

var definitionAccessors = tree.Accessors[model.PropertyDefinition]{
	Name: func(d model.PropertyDefinition) string { return d.Name },
	WithName: func(d model.PropertyDefinition, name string) model.PropertyDefinition {
		d.Name = name
		return d
	},
	Children: func(d model.PropertyDefinition) []model.PropertyDefinition { return d.StructProperties },
	WithChildren: func(d model.PropertyDefinition, kids []model.PropertyDefinition) model.PropertyDefinition {
		d.StructProperties = kids
		return d
	},
}

// Store reads and writes schemas.
type Store struct {
	db *store.Store
}

// New returns a schema store over db.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// Add inserts sc as a new schema at commit.
func (s *Store) Add(ctx context.Context, tx *store.Tx, sc model.Schema, commit model.Commit) error {
	rows, sc, err := prepare(sc)
	if err != nil {
		return err
	}
	if err := store.InsertCurrent(ctx, tx, schemaCodec, sc.ServiceID, commit, sc); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	if err := insertDefinitions(ctx, tx, sc.ServiceID, rows, commit); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	return nil
}

// Update replaces the current version of the schema and its definitions.
func (s *Store) Update(ctx context.Context, tx *store.Tx, sc model.Schema, commit model.Commit) error {
	rows, sc, err := prepare(sc)
	if err != nil {
		return err
	}
	if err := store.ReplaceCurrent(ctx, tx, schemaCodec, sc.ServiceID, commit, sc); err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	if _, err := store.CloseAll(ctx, tx, store.SchemaPropertyTable, []any{sc.Name}, sc.ServiceID, commit); err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	if err := insertDefinitions(ctx, tx, sc.ServiceID, rows, commit); err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	return nil
}

// Delete closes the schema and its definitions at commit.
func (s *Store) Delete(ctx context.Context, tx *store.Tx, name string, scope *string, commit model.Commit) error {
	name = model.NormalizeKey(name)
	scope = model.NormalizeScope(scope)

	_, ok, err := store.CloseCurrent(ctx, tx, schemaCodec, []any{name}, scope, commit)
	if err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	if !ok {
		return store.NewNotFoundError(entity, name)
	}
	if _, err := store.CloseAll(ctx, tx, store.SchemaPropertyTable, []any{name}, scope, commit); err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	return nil
}

// Apply dispatches a ledger delta.
func (s *Store) Apply(ctx context.Context, tx *store.Tx, op model.Op, sc model.Schema, commit model.Commit) error {
	switch op {
	case model.OpAdd:
		return s.Add(ctx, tx, sc, commit)
	case model.OpUpdate:
		return s.Update(ctx, tx, sc, commit)
	case model.OpDelete:
		return s.Delete(ctx, tx, sc.Name, sc.ServiceID, commit)
	}
	return store.NewInvalidInputError(entity, sc.Name, "unknown op %q", op)
}

// Fetch returns the current version of a schema.
func (s *Store) Fetch(ctx context.Context, name string, scope *string) (model.Schema, error) {
	return s.FetchAsOf(ctx, name, scope, model.MaxCommit)
}

// FetchAsOf returns the schema as it was at commit.
func (s *Store) FetchAsOf(ctx context.Context, name string, scope *string, commit model.Commit) (model.Schema, error) {
	name = model.NormalizeKey(name)
	scope = model.NormalizeScope(scope)

	var sc model.Schema
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		var err error
		sc, err = store.ReadAsOf(ctx, tx, schemaCodec, []any{name}, scope, commit)
		if err != nil {
			return err
		}
		return loadDefinitions(ctx, tx, &sc, commit)
	})
	if err != nil {
		return model.Schema{}, err
	}
	return sc, nil
}

// List returns the current schemas in scope ordered by name.
func (s *Store) List(ctx context.Context, scope *string, page model.Page) ([]model.Schema, model.Paging, error) {
	scope = model.NormalizeScope(scope)
	page = page.Normalize()

	var list []model.Schema
	paging := model.Paging{Offset: page.Offset, Limit: page.Limit}
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		total, err := store.CountAsOf(ctx, tx, store.SchemaTable, scope, model.MaxCommit, nil)
		if err != nil {
			return err
		}
		paging.Total = total

		list, err = store.ListCurrent(ctx, tx, schemaCodec, scope, store.Filter{Page: page})
		if err != nil {
			return err
		}
		for i := range list {
			if err := loadDefinitions(ctx, tx, &list[i], model.MaxCommit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.Paging{}, err
	}
	return list, paging, nil
}

func loadDefinitions(ctx context.Context, tx *store.Tx, sc *model.Schema, commit model.Commit) error {
	rows, err := store.ListAsOf(ctx, tx, definitionCodec, sc.ServiceID, commit, store.Filter{Prefix: []any{sc.Name}})
	if err != nil {
		return err
	}
	nodes := make([]tree.Node[model.PropertyDefinition], len(rows))
	for i, r := range rows {
		n := r.Node
		if r.EnumOptions != "" {
			if err := json.Unmarshal([]byte(r.EnumOptions), &n.Value.EnumOptions); err != nil {
				return store.NewInvariantError("load schema", entity, sc.Name, "property %q: enum options are not a JSON array: %v", r.Name, err)
			}
		}
		nodes[i] = n
	}
	sc.Properties, err = tree.Build(nodes, definitionAccessors)
	if errors.Is(err, tree.ErrOrphan) || errors.Is(err, tree.ErrDuplicateName) {
		return store.NewInvariantError("load schema", entity, sc.Name, "%v", err)
	}
	return err
}

func insertDefinitions(ctx context.Context, tx *store.Tx, scope *string, rows []definitionRow, commit model.Commit) error {
	for _, r := range rows {
		if err := store.InsertCurrent(ctx, tx, definitionCodec, scope, commit, r); err != nil {
			return err
		}
	}
	return nil
}

func prepare(sc model.Schema) ([]definitionRow, model.Schema, error) {
	sc.Name = model.NormalizeKey(sc.Name)
	sc.Owner = model.NormalizeKey(sc.Owner)
	sc.ServiceID = model.NormalizeScope(sc.ServiceID)
	if sc.Name == "" {
		return nil, sc, store.NewInvalidInputError(entity, "", "schema name is empty")
	}

	stack := append([]model.PropertyDefinition(nil), sc.Properties...)
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := d.Validate(); err != nil {
			return nil, sc, store.NewInvalidInputError(entity, sc.Name, "%v", err)
		}
		stack = append(stack, d.StructProperties...)
	}

	nodes, err := tree.Flatten(sc.Properties, definitionAccessors)
	if err != nil {
		return nil, sc, store.NewInvalidInputError(entity, sc.Name, "%v", err)
	}
	rows := make([]definitionRow, len(nodes))
	for i, n := range nodes {
		rows[i] = definitionRow{Schema: sc.Name, Node: n}
		if len(n.Value.EnumOptions) > 0 {
			b, err := json.Marshal(n.Value.EnumOptions)
			if err != nil {
				return nil, sc, fmt.Errorf("encode enum options: %w", err)
			}
			rows[i].EnumOptions = string(b)
		}
		rows[i].Value.EnumOptions = nil
	}
	return rows, sc, nil
}
