// Package locations stores versioned locations and their attribute trees.
package locations

import (
	"context"
	"fmt"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

const entity = "location"

var locationCodec = &store.Codec[model.Location]{
	Table: store.LocationTable,
	Key:   func(l *model.Location) []any { return []any{l.LocationID} },
	Values: func(l *model.Location) []any {
		return []any{l.LocationAddress, l.LocationNamespace, l.Owner}
	},
	Fields: func(l *model.Location) []any {
		return []any{&l.LocationID, &l.LocationAddress, &l.LocationNamespace, &l.Owner}
	},
	Version: func(l *model.Location) *model.Version { return &l.Version },
}

var attributeCodec = store.PropertyValueCodec(store.LocationAttributeTable)

// Store reads and writes locations.
type Store struct {
	db *store.Store
}

// New returns a location store over db.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// Add inserts l as a new location at commit.
func (s *Store) Add(ctx context.Context, tx *store.Tx, l model.Location, commit model.Commit) error {
	rows, l, err := prepare(l)
	if err != nil {
		return err
	}
	if err := store.InsertCurrent(ctx, tx, locationCodec, l.ServiceID, commit, l); err != nil {
		return fmt.Errorf("add location: %w", err)
	}
	if err := insertAttributes(ctx, tx, l.ServiceID, rows, commit); err != nil {
		return fmt.Errorf("add location: %w", err)
	}
	return nil
}

// Update replaces the current version of the location, including its whole
// attribute tree.
func (s *Store) Update(ctx context.Context, tx *store.Tx, l model.Location, commit model.Commit) error {
	rows, l, err := prepare(l)
	if err != nil {
		return err
	}
	if err := store.ReplaceCurrent(ctx, tx, locationCodec, l.ServiceID, commit, l); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if _, err := store.CloseAll(ctx, tx, store.LocationAttributeTable, []any{l.LocationID}, l.ServiceID, commit); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if err := insertAttributes(ctx, tx, l.ServiceID, rows, commit); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// Delete closes the location and its attributes at commit.
func (s *Store) Delete(ctx context.Context, tx *store.Tx, locationID string, scope *string, commit model.Commit) error {
	locationID = model.NormalizeKey(locationID)
	scope = model.NormalizeScope(scope)

	_, ok, err := store.CloseCurrent(ctx, tx, locationCodec, []any{locationID}, scope, commit)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if !ok {
		return store.NewNotFoundError(entity, locationID)
	}
	if _, err := store.CloseAll(ctx, tx, store.LocationAttributeTable, []any{locationID}, scope, commit); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	return nil
}

// Apply dispatches a ledger delta.
func (s *Store) Apply(ctx context.Context, tx *store.Tx, op model.Op, l model.Location, commit model.Commit) error {
	switch op {
	case model.OpAdd:
		return s.Add(ctx, tx, l, commit)
	case model.OpUpdate:
		return s.Update(ctx, tx, l, commit)
	case model.OpDelete:
		return s.Delete(ctx, tx, l.LocationID, l.ServiceID, commit)
	}
	return store.NewInvalidInputError(entity, l.LocationID, "unknown op %q", op)
}

// Fetch returns the current version of a location.
func (s *Store) Fetch(ctx context.Context, locationID string, scope *string) (model.Location, error) {
	return s.FetchAsOf(ctx, locationID, scope, model.MaxCommit)
}

// FetchAsOf returns the location as it was at commit.
func (s *Store) FetchAsOf(ctx context.Context, locationID string, scope *string, commit model.Commit) (model.Location, error) {
	locationID = model.NormalizeKey(locationID)
	scope = model.NormalizeScope(scope)

	var l model.Location
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		var err error
		l, err = store.ReadAsOf(ctx, tx, locationCodec, []any{locationID}, scope, commit)
		if err != nil {
			return err
		}
		return loadAttributes(ctx, tx, &l, commit)
	})
	if err != nil {
		return model.Location{}, err
	}
	return l, nil
}

// List returns the current locations in scope ordered by location id.
func (s *Store) List(ctx context.Context, scope *string, page model.Page) ([]model.Location, model.Paging, error) {
	scope = model.NormalizeScope(scope)
	page = page.Normalize()

	var locs []model.Location
	paging := model.Paging{Offset: page.Offset, Limit: page.Limit}
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		total, err := store.CountAsOf(ctx, tx, store.LocationTable, scope, model.MaxCommit, nil)
		if err != nil {
			return err
		}
		paging.Total = total

		locs, err = store.ListCurrent(ctx, tx, locationCodec, scope, store.Filter{Page: page})
		if err != nil {
			return err
		}
		for i := range locs {
			if err := loadAttributes(ctx, tx, &locs[i], model.MaxCommit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.Paging{}, err
	}
	return locs, paging, nil
}

func loadAttributes(ctx context.Context, tx *store.Tx, l *model.Location, commit model.Commit) error {
	rows, err := store.ListAsOf(ctx, tx, attributeCodec, l.ServiceID, commit, store.Filter{Prefix: []any{l.LocationID}})
	if err != nil {
		return err
	}
	l.Attributes, err = store.BuildProperties(entity, l.LocationID, rows)
	return err
}

func insertAttributes(ctx context.Context, tx *store.Tx, scope *string, rows []store.PropertyRow, commit model.Commit) error {
	for _, r := range rows {
		if err := store.InsertCurrent(ctx, tx, attributeCodec, scope, commit, r); err != nil {
			return err
		}
	}
	return nil
}

func prepare(l model.Location) ([]store.PropertyRow, model.Location, error) {
	l.LocationID = model.NormalizeKey(l.LocationID)
	l.Owner = model.NormalizeKey(l.Owner)
	l.ServiceID = model.NormalizeScope(l.ServiceID)
	if l.LocationID == "" {
		return nil, l, store.NewInvalidInputError(entity, "", "location id is empty")
	}
	rows, err := store.FlattenProperties(entity, l.LocationID, l.Attributes)
	if err != nil {
		return nil, l, err
	}
	return rows, l, nil
}
