// Package products stores versioned products and their property trees.
package products

import (
	"context"
	"fmt"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

const entity = "product"

var productCodec = &store.Codec[model.Product]{
	Table: store.ProductTable,
	Key:   func(p *model.Product) []any { return []any{p.ProductID} },
	Values: func(p *model.Product) []any {
		return []any{p.ProductAddress, p.ProductNamespace, p.Owner}
	},
	Fields: func(p *model.Product) []any {
		return []any{&p.ProductID, &p.ProductAddress, &p.ProductNamespace, &p.Owner}
	},
	Version: func(p *model.Product) *model.Version { return &p.Version },
}

var propertyCodec = store.PropertyValueCodec(store.ProductPropertyTable)

// Store reads and writes products.
type Store struct {
	db *store.Store
}

// New returns a product store over db.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// Add inserts p as a new product at commit.
func (s *Store) Add(ctx context.Context, tx *store.Tx, p model.Product, commit model.Commit) error {
	rows, p, err := prepare(p)
	if err != nil {
		return err
	}
	if err := store.InsertCurrent(ctx, tx, productCodec, p.ServiceID, commit, p); err != nil {
		return fmt.Errorf("add product: %w", err)
	}
	if err := insertProperties(ctx, tx, p.ServiceID, rows, commit); err != nil {
		return fmt.Errorf("add product: %w", err)
	}
	return nil
}

// Update replaces the current version of the product, including its whole
// property tree.
func (s *Store) Update(ctx context.Context, tx *store.Tx, p model.Product, commit model.Commit) error {
	rows, p, err := prepare(p)
	if err != nil {
		return err
	}
	if err := store.ReplaceCurrent(ctx, tx, productCodec, p.ServiceID, commit, p); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if _, err := store.CloseAll(ctx, tx, store.ProductPropertyTable, []any{p.ProductID}, p.ServiceID, commit); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if err := insertProperties(ctx, tx, p.ServiceID, rows, commit); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// Delete closes the product and its properties at commit.
func (s *Store) Delete(ctx context.Context, tx *store.Tx, productID string, scope *string, commit model.Commit) error {
	productID = model.NormalizeKey(productID)
	scope = model.NormalizeScope(scope)

	_, ok, err := store.CloseCurrent(ctx, tx, productCodec, []any{productID}, scope, commit)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if !ok {
		return store.NewNotFoundError(entity, productID)
	}
	if _, err := store.CloseAll(ctx, tx, store.ProductPropertyTable, []any{productID}, scope, commit); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// Apply dispatches a ledger delta.
func (s *Store) Apply(ctx context.Context, tx *store.Tx, op model.Op, p model.Product, commit model.Commit) error {
	switch op {
	case model.OpAdd:
		return s.Add(ctx, tx, p, commit)
	case model.OpUpdate:
		return s.Update(ctx, tx, p, commit)
	case model.OpDelete:
		return s.Delete(ctx, tx, p.ProductID, p.ServiceID, commit)
	}
	return store.NewInvalidInputError(entity, p.ProductID, "unknown op %q", op)
}

// Fetch returns the current version of a product.
func (s *Store) Fetch(ctx context.Context, productID string, scope *string) (model.Product, error) {
	return s.FetchAsOf(ctx, productID, scope, model.MaxCommit)
}

// FetchAsOf returns the product as it was at commit.
func (s *Store) FetchAsOf(ctx context.Context, productID string, scope *string, commit model.Commit) (model.Product, error) {
	productID = model.NormalizeKey(productID)
	scope = model.NormalizeScope(scope)

	var p model.Product
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		var err error
		p, err = store.ReadAsOf(ctx, tx, productCodec, []any{productID}, scope, commit)
		if err != nil {
			return err
		}
		return loadProperties(ctx, tx, &p, commit)
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// List returns the current products in scope ordered by product id.
func (s *Store) List(ctx context.Context, scope *string, page model.Page) ([]model.Product, model.Paging, error) {
	scope = model.NormalizeScope(scope)
	page = page.Normalize()

	var products []model.Product
	paging := model.Paging{Offset: page.Offset, Limit: page.Limit}
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		total, err := store.CountAsOf(ctx, tx, store.ProductTable, scope, model.MaxCommit, nil)
		if err != nil {
			return err
		}
		paging.Total = total

		products, err = store.ListCurrent(ctx, tx, productCodec, scope, store.Filter{Page: page})
		if err != nil {
			return err
		}
		for i := range products {
			if err := loadProperties(ctx, tx, &products[i], model.MaxCommit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.Paging{}, err
	}
	return products, paging, nil
}

func loadProperties(ctx context.Context, tx *store.Tx, p *model.Product, commit model.Commit) error {
	rows, err := store.ListAsOf(ctx, tx, propertyCodec, p.ServiceID, commit, store.Filter{Prefix: []any{p.ProductID}})
	if err != nil {
		return err
	}
	p.Properties, err = store.BuildProperties(entity, p.ProductID, rows)
	return err
}

func insertProperties(ctx context.Context, tx *store.Tx, scope *string, rows []store.PropertyRow, commit model.Commit) error {
	for _, r := range rows {
		if err := store.InsertCurrent(ctx, tx, propertyCodec, scope, commit, r); err != nil {
			return err
		}
	}
	return nil
}

func prepare(p model.Product) ([]store.PropertyRow, model.Product, error) {
	p.ProductID = model.NormalizeKey(p.ProductID)
	p.Owner = model.NormalizeKey(p.Owner)
	p.ServiceID = model.NormalizeScope(p.ServiceID)
	if p.ProductID == "" {
		return nil, p, store.NewInvalidInputError(entity, "", "product id is empty")
	}
	rows, err := store.FlattenProperties(entity, p.ProductID, p.Properties)
	if err != nil {
		return nil, p, err
	}
	return rows, p, nil
}
