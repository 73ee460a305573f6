// Package gateway answers external fetch and list queries against the
// current state.
//
// Every query is checked against the deployment's tenant mode before any
// store call, and store failures are translated into *Error values that are
// safe to hand to clients. Point-in-time reads are not exposed here; they
// stay on the entity stores.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/gridstate/internal/agents"
	"github.com/roach88/gridstate/internal/locations"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/organizations"
	"github.com/roach88/gridstate/internal/products"
	"github.com/roach88/gridstate/internal/schemas"
	"github.com/roach88/gridstate/internal/store"
)

// Mode is the tenant contract of a deployment.
type Mode string

const (
	// ModeShared serves one tenant; requests never carry a service id.
	ModeShared Mode = "shared"

	// ModeMultiCircuit partitions state by service id; every request names
	// one.
	ModeMultiCircuit Mode = "multi-circuit"
)

// ParseMode validates a tenant mode from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeShared, ModeMultiCircuit:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown tenant mode %q: must be %s or %s", s, ModeShared, ModeMultiCircuit)
}

// Gateway dispatches queries to the entity stores.
type Gateway struct {
	mode    Mode
	agents  *agents.Store
	orgs    *organizations.Store
	locs    *locations.Store
	prods   *products.Store
	schemas *schemas.Store
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for internal failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a gateway over db.
func New(db *store.Store, mode Mode, opts ...Option) *Gateway {
	g := &Gateway{
		mode:    mode,
		agents:  agents.New(db),
		orgs:    organizations.New(db),
		locs:    locations.New(db),
		prods:   products.New(db),
		schemas: schemas.New(db),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode returns the tenant mode.
func (g *Gateway) Mode() Mode {
	return g.mode
}

// CheckTenant enforces the tenant mode on a request's service id.
func (g *Gateway) CheckTenant(serviceID *string) error {
	switch {
	case g.mode == ModeShared && serviceID != nil:
		return &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeTenantModeMismatch,
			Message: "Circuit ID present, but gridstate is running in shared mode",
		}
	case g.mode == ModeMultiCircuit && serviceID == nil:
		return &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeTenantModeMismatch,
			Message: "Circuit ID is not present, but gridstate is running in multi-circuit mode",
		}
	}
	return nil
}

// FetchAgent returns the current agent with publicKey.
func (g *Gateway) FetchAgent(ctx context.Context, publicKey string, serviceID *string) (AgentSlice, error) {
	return fetch(ctx, g, model.KindAgent, publicKey, serviceID, g.agents.Fetch, NewAgentSlice)
}

// ListAgents returns a page of current agents.
func (g *Gateway) ListAgents(ctx context.Context, serviceID *string, page model.Page) (List[AgentSlice], error) {
	return list(ctx, g, model.KindAgent, serviceID, page, g.agents.List, NewAgentSlice)
}

// FetchOrganization returns the current organization with orgID.
func (g *Gateway) FetchOrganization(ctx context.Context, orgID string, serviceID *string) (OrganizationSlice, error) {
	return fetch(ctx, g, model.KindOrganization, orgID, serviceID, g.orgs.Fetch, NewOrganizationSlice)
}

// ListOrganizations returns a page of current organizations.
func (g *Gateway) ListOrganizations(ctx context.Context, serviceID *string, page model.Page) (List[OrganizationSlice], error) {
	return list(ctx, g, model.KindOrganization, serviceID, page, g.orgs.List, NewOrganizationSlice)
}

// FetchLocation returns the current location with locationID.
func (g *Gateway) FetchLocation(ctx context.Context, locationID string, serviceID *string) (LocationSlice, error) {
	return fetch(ctx, g, model.KindLocation, locationID, serviceID, g.locs.Fetch, NewLocationSlice)
}

// ListLocations returns a page of current locations.
func (g *Gateway) ListLocations(ctx context.Context, serviceID *string, page model.Page) (List[LocationSlice], error) {
	return list(ctx, g, model.KindLocation, serviceID, page, g.locs.List, NewLocationSlice)
}

// FetchProduct returns the current product with productID.
func (g *Gateway) FetchProduct(ctx context.Context, productID string, serviceID *string) (ProductSlice, error) {
	return fetch(ctx, g, model.KindProduct, productID, serviceID, g.prods.Fetch, NewProductSlice)
}

// ListProducts returns a page of current products.
func (g *Gateway) ListProducts(ctx context.Context, serviceID *string, page model.Page) (List[ProductSlice], error) {
	return list(ctx, g, model.KindProduct, serviceID, page, g.prods.List, NewProductSlice)
}

// FetchSchema returns the current schema with name.
func (g *Gateway) FetchSchema(ctx context.Context, name string, serviceID *string) (SchemaSlice, error) {
	return fetch(ctx, g, model.KindSchema, name, serviceID, g.schemas.Fetch, NewSchemaSlice)
}

// ListSchemas returns a page of current schemas.
func (g *Gateway) ListSchemas(ctx context.Context, serviceID *string, page model.Page) (List[SchemaSlice], error) {
	return list(ctx, g, model.KindSchema, serviceID, page, g.schemas.List, NewSchemaSlice)
}

func fetch[E, S any](
	ctx context.Context, g *Gateway, kind model.Kind, key string, serviceID *string,
	get func(context.Context, string, *string) (E, error), render func(E) S,
) (S, error) {
	var zero S
	if err := g.CheckTenant(serviceID); err != nil {
		return zero, err
	}
	e, err := get(ctx, key, serviceID)
	if err != nil {
		return zero, g.fail(kind, key, err)
	}
	return render(e), nil
}

func list[E, S any](
	ctx context.Context, g *Gateway, kind model.Kind, serviceID *string, page model.Page,
	get func(context.Context, *string, model.Page) ([]E, model.Paging, error), render func(E) S,
) (List[S], error) {
	if err := g.CheckTenant(serviceID); err != nil {
		return List[S]{}, err
	}
	items, paging, err := get(ctx, serviceID, page)
	if err != nil {
		return List[S]{}, g.fail(kind, "", err)
	}
	out := List[S]{Data: make([]S, 0, len(items)), Paging: paging}
	for _, e := range items {
		out.Data = append(out.Data, render(e))
	}
	return out, nil
}

func (g *Gateway) fail(kind model.Kind, key string, err error) error {
	ge := translate(kind, key, err)
	if ge.Status >= http.StatusInternalServerError {
		g.logger.Error("query failed",
			"entity", string(kind),
			"key", key,
			"code", ge.Code,
			"error", err)
	}
	return ge
}
