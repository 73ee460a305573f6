// Package organizations stores versioned organizations along with their
// metadata, alternate ids and location references.
package organizations

import (
	"context"
	"fmt"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

const entity = "organization"

type metadataRow struct {
	OrgID    string
	Key      string
	Value    string
	Position int
	model.Version
}

type alternateIDRow struct {
	OrgID    string
	IDType   string
	ID       string
	Position int
	model.Version
}

type locationRow struct {
	OrgID      string
	LocationID string
	Position   int
	model.Version
}

var orgCodec = &store.Codec[model.Organization]{
	Table:   store.OrganizationTable,
	Key:     func(o *model.Organization) []any { return []any{o.OrgID} },
	Values:  func(o *model.Organization) []any { return []any{o.Name, o.Address} },
	Fields:  func(o *model.Organization) []any { return []any{&o.OrgID, &o.Name, &o.Address} },
	Version: func(o *model.Organization) *model.Version { return &o.Version },
}

var metadataCodec = &store.Codec[metadataRow]{
	Table:   store.OrganizationMetadataTable,
	Key:     func(r *metadataRow) []any { return []any{r.OrgID, r.Key} },
	Values:  func(r *metadataRow) []any { return []any{r.Value, r.Position} },
	Fields:  func(r *metadataRow) []any { return []any{&r.OrgID, &r.Key, &r.Value, &r.Position} },
	Version: func(r *metadataRow) *model.Version { return &r.Version },
}

var alternateIDCodec = &store.Codec[alternateIDRow]{
	Table:   store.OrganizationAlternateIDTable,
	Key:     func(r *alternateIDRow) []any { return []any{r.OrgID, r.IDType, r.ID} },
	Values:  func(r *alternateIDRow) []any { return []any{r.Position} },
	Fields:  func(r *alternateIDRow) []any { return []any{&r.OrgID, &r.IDType, &r.ID, &r.Position} },
	Version: func(r *alternateIDRow) *model.Version { return &r.Version },
}

var locationCodec = &store.Codec[locationRow]{
	Table:   store.OrganizationLocationTable,
	Key:     func(r *locationRow) []any { return []any{r.OrgID, r.LocationID} },
	Values:  func(r *locationRow) []any { return []any{r.Position} },
	Fields:  func(r *locationRow) []any { return []any{&r.OrgID, &r.LocationID, &r.Position} },
	Version: func(r *locationRow) *model.Version { return &r.Version },
}

// childTables are replaced wholesale on every update.
var childTables = []*store.Table{
	store.OrganizationMetadataTable,
	store.OrganizationAlternateIDTable,
	store.OrganizationLocationTable,
}

// Store reads and writes organizations.
type Store struct {
	db *store.Store
}

// New returns an organization store over db.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// Add inserts o as a new organization at commit.
func (s *Store) Add(ctx context.Context, tx *store.Tx, o model.Organization, commit model.Commit) error {
	o, err := normalize(o)
	if err != nil {
		return err
	}
	if err := store.InsertCurrent(ctx, tx, orgCodec, o.ServiceID, commit, o); err != nil {
		return fmt.Errorf("add organization: %w", err)
	}
	if err := insertChildren(ctx, tx, o, commit); err != nil {
		return fmt.Errorf("add organization: %w", err)
	}
	return nil
}

// Update replaces the current version of the organization with o.
func (s *Store) Update(ctx context.Context, tx *store.Tx, o model.Organization, commit model.Commit) error {
	o, err := normalize(o)
	if err != nil {
		return err
	}
	if err := store.ReplaceCurrent(ctx, tx, orgCodec, o.ServiceID, commit, o); err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if err := closeChildren(ctx, tx, o.OrgID, o.ServiceID, commit); err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if err := insertChildren(ctx, tx, o, commit); err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return nil
}

// Delete closes the organization and all of its child rows at commit.
func (s *Store) Delete(ctx context.Context, tx *store.Tx, orgID string, scope *string, commit model.Commit) error {
	orgID = model.NormalizeKey(orgID)
	scope = model.NormalizeScope(scope)

	_, ok, err := store.CloseCurrent(ctx, tx, orgCodec, []any{orgID}, scope, commit)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if !ok {
		return store.NewNotFoundError(entity, orgID)
	}
	if err := closeChildren(ctx, tx, orgID, scope, commit); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return nil
}

// Apply dispatches a ledger delta.
func (s *Store) Apply(ctx context.Context, tx *store.Tx, op model.Op, o model.Organization, commit model.Commit) error {
	switch op {
	case model.OpAdd:
		return s.Add(ctx, tx, o, commit)
	case model.OpUpdate:
		return s.Update(ctx, tx, o, commit)
	case model.OpDelete:
		return s.Delete(ctx, tx, o.OrgID, o.ServiceID, commit)
	}
	return store.NewInvalidInputError(entity, o.OrgID, "unknown op %q", op)
}

// Fetch returns the current version of an organization.
func (s *Store) Fetch(ctx context.Context, orgID string, scope *string) (model.Organization, error) {
	return s.FetchAsOf(ctx, orgID, scope, model.MaxCommit)
}

// FetchAsOf returns the organization as it was at commit.
func (s *Store) FetchAsOf(ctx context.Context, orgID string, scope *string, commit model.Commit) (model.Organization, error) {
	orgID = model.NormalizeKey(orgID)
	scope = model.NormalizeScope(scope)

	var o model.Organization
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		var err error
		o, err = store.ReadAsOf(ctx, tx, orgCodec, []any{orgID}, scope, commit)
		if err != nil {
			return err
		}
		return loadChildren(ctx, tx, &o, commit)
	})
	if err != nil {
		return model.Organization{}, err
	}
	return o, nil
}

// List returns the current organizations in scope ordered by org id.
func (s *Store) List(ctx context.Context, scope *string, page model.Page) ([]model.Organization, model.Paging, error) {
	scope = model.NormalizeScope(scope)
	page = page.Normalize()

	var orgs []model.Organization
	paging := model.Paging{Offset: page.Offset, Limit: page.Limit}
	err := s.db.ReadTx(ctx, func(tx *store.Tx) error {
		total, err := store.CountAsOf(ctx, tx, store.OrganizationTable, scope, model.MaxCommit, nil)
		if err != nil {
			return err
		}
		paging.Total = total

		orgs, err = store.ListCurrent(ctx, tx, orgCodec, scope, store.Filter{Page: page})
		if err != nil {
			return err
		}
		for i := range orgs {
			if err := loadChildren(ctx, tx, &orgs[i], model.MaxCommit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.Paging{}, err
	}
	return orgs, paging, nil
}

func loadChildren(ctx context.Context, tx *store.Tx, o *model.Organization, commit model.Commit) error {
	f := store.Filter{Prefix: []any{o.OrgID}}

	meta, err := store.ListAsOf(ctx, tx, metadataCodec, o.ServiceID, commit, f)
	if err != nil {
		return err
	}
	o.Metadata = nil
	for _, r := range meta {
		o.Metadata = append(o.Metadata, model.KeyValue{Key: r.Key, Value: r.Value})
	}

	ids, err := store.ListAsOf(ctx, tx, alternateIDCodec, o.ServiceID, commit, f)
	if err != nil {
		return err
	}
	o.AlternateIDs = nil
	for _, r := range ids {
		o.AlternateIDs = append(o.AlternateIDs, model.AlternateID{IDType: r.IDType, ID: r.ID})
	}

	locs, err := store.ListAsOf(ctx, tx, locationCodec, o.ServiceID, commit, f)
	if err != nil {
		return err
	}
	o.Locations = nil
	for _, r := range locs {
		o.Locations = append(o.Locations, r.LocationID)
	}
	return nil
}

func insertChildren(ctx context.Context, tx *store.Tx, o model.Organization, commit model.Commit) error {
	for i, kv := range o.Metadata {
		r := metadataRow{OrgID: o.OrgID, Key: kv.Key, Value: kv.Value, Position: i}
		if err := store.InsertCurrent(ctx, tx, metadataCodec, o.ServiceID, commit, r); err != nil {
			return err
		}
	}
	for i, id := range o.AlternateIDs {
		r := alternateIDRow{OrgID: o.OrgID, IDType: id.IDType, ID: id.ID, Position: i}
		if err := store.InsertCurrent(ctx, tx, alternateIDCodec, o.ServiceID, commit, r); err != nil {
			return err
		}
	}
	for i, loc := range o.Locations {
		r := locationRow{OrgID: o.OrgID, LocationID: loc, Position: i}
		if err := store.InsertCurrent(ctx, tx, locationCodec, o.ServiceID, commit, r); err != nil {
			return err
		}
	}
	return nil
}

func closeChildren(ctx context.Context, tx *store.Tx, orgID string, scope *string, commit model.Commit) error {
	for _, t := range childTables {
		if _, err := store.CloseAll(ctx, tx, t, []any{orgID}, scope, commit); err != nil {
			return err
		}
	}
	return nil
}

func normalize(o model.Organization) (model.Organization, error) {
	o.OrgID = model.NormalizeKey(o.OrgID)
	o.ServiceID = model.NormalizeScope(o.ServiceID)
	if o.OrgID == "" {
		return o, store.NewInvalidInputError(entity, "", "org id is empty")
	}

	keys := make(map[string]bool, len(o.Metadata))
	for _, kv := range o.Metadata {
		if kv.Key == "" {
			return o, store.NewInvalidInputError(entity, o.OrgID, "metadata key is empty")
		}
		if keys[kv.Key] {
			return o, store.NewInvalidInputError(entity, o.OrgID, "duplicate metadata key %q", kv.Key)
		}
		keys[kv.Key] = true
	}

	ids := make(map[model.AlternateID]bool, len(o.AlternateIDs))
	for _, id := range o.AlternateIDs {
		if id.IDType == "" || id.ID == "" {
			return o, store.NewInvalidInputError(entity, o.OrgID, "alternate id needs both a type and an id")
		}
		if ids[id] {
			return o, store.NewInvalidInputError(entity, o.OrgID, "duplicate alternate id %s:%s", id.IDType, id.ID)
		}
		ids[id] = true
	}

	o.Locations = append([]string(nil), o.Locations...)
	locs := make(map[string]bool, len(o.Locations))
	for i, loc := range o.Locations {
		loc = model.NormalizeKey(loc)
		if loc == "" {
			return o, store.NewInvalidInputError(entity, o.OrgID, "location id is empty")
		}
		if locs[loc] {
			return o, store.NewInvalidInputError(entity, o.OrgID, "duplicate location %q", loc)
		}
		locs[loc] = true
		o.Locations[i] = loc
	}
	return o, nil
}
