package ledgersync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/gridstate/internal/agents"
	"github.com/roach88/gridstate/internal/ledger"
	"github.com/roach88/gridstate/internal/locations"
	"github.com/roach88/gridstate/internal/metrics"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/organizations"
	"github.com/roach88/gridstate/internal/products"
	"github.com/roach88/gridstate/internal/schemas"
	"github.com/roach88/gridstate/internal/store"
)

// Applier writes batches into the state store.
type Applier struct {
	db      *store.Store
	agents  *agents.Store
	orgs    *organizations.Store
	locs    *locations.Store
	prods   *products.Store
	schemas *schemas.Store
	ids     IDGenerator
	scope   *string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithIDGenerator overrides the generator used for batches without a commit
// id.
func WithIDGenerator(g IDGenerator) ApplierOption {
	return func(a *Applier) { a.ids = g }
}

// WithDefaultScope sets the service chain for batches that name none.
func WithDefaultScope(scope *string) ApplierOption {
	return func(a *Applier) { a.scope = model.NormalizeScope(scope) }
}

// WithMetrics records applied and rejected batches.
func WithMetrics(m *metrics.Metrics) ApplierOption {
	return func(a *Applier) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ApplierOption {
	return func(a *Applier) { a.logger = l }
}

// NewApplier creates an applier over db.
func NewApplier(db *store.Store, opts ...ApplierOption) *Applier {
	a := &Applier{
		db:      db,
		agents:  agents.New(db),
		orgs:    organizations.New(db),
		locs:    locations.New(db),
		prods:   products.New(db),
		schemas: schemas.New(db),
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ledger returns the commit track the batch's service chain is recorded on.
func (a *Applier) Ledger(scope *string) *ledger.Ledger {
	return ledger.New(a.db, scope).WithLogger(a.logger)
}

// ScopeOf returns the service chain b is recorded on.
func (a *Applier) ScopeOf(b Batch) *string {
	if b.ServiceID == nil {
		return a.scope
	}
	return model.NormalizeScope(b.ServiceID)
}

// Apply records b on its service chain and applies its deltas, all in one
// transaction. Either the whole batch is visible afterwards or none of it.
//
// A batch whose predecessor is not the chain head fails with a
// *ledger.ForkError before any delta is written.
func (a *Applier) Apply(ctx context.Context, b Batch) error {
	if err := b.Validate(); err != nil {
		a.metrics.ApplyFailed(string(store.CodeOf(err)))
		return err
	}
	scope := a.ScopeOf(b)
	if b.CommitID == "" {
		b.CommitID = a.ids.Generate()
	}

	start := time.Now()
	l := a.Ledger(scope)
	err := a.db.InTx(ctx, func(tx *store.Tx) error {
		rec := ledger.CommitRecord{Num: b.Commit, ID: b.CommitID, Predecessor: b.Predecessor}
		if err := l.RecordCommit(ctx, tx, rec); err != nil {
			return err
		}
		for i, d := range b.Deltas {
			if err := a.applyDelta(ctx, tx, d, scope, b.Commit); err != nil {
				return fmt.Errorf("commit %d delta %d (%s %s): %w", b.Commit, i, d.Op, d.Kind, err)
			}
		}
		return nil
	})
	if err != nil {
		a.metrics.ApplyFailed(string(store.CodeOf(err)))
		return err
	}

	a.metrics.CommitApplied(scope, b.Commit, time.Since(start))
	a.logger.Debug("applied commit",
		"commit", int64(b.Commit),
		"commit_id", b.CommitID,
		"service_id", model.ScopeName(scope),
		"deltas", len(b.Deltas))
	return nil
}

// applyDelta stamps the batch scope onto the payload and hands it to the
// matching entity store.
func (a *Applier) applyDelta(ctx context.Context, tx *store.Tx, d Delta, scope *string, commit model.Commit) error {
	switch d.Kind {
	case model.KindAgent:
		v := *d.Agent
		v.ServiceID = scope
		return a.agents.Apply(ctx, tx, d.Op, v, commit)
	case model.KindOrganization:
		v := *d.Organization
		v.ServiceID = scope
		return a.orgs.Apply(ctx, tx, d.Op, v, commit)
	case model.KindLocation:
		v := *d.Location
		v.ServiceID = scope
		return a.locs.Apply(ctx, tx, d.Op, v, commit)
	case model.KindProduct:
		v := *d.Product
		v.ServiceID = scope
		return a.prods.Apply(ctx, tx, d.Op, v, commit)
	case model.KindSchema:
		v := *d.Schema
		v.ServiceID = scope
		return a.schemas.Apply(ctx, tx, d.Op, v, commit)
	}
	return store.NewInvalidInputError("delta", string(d.Kind), "unknown kind")
}
