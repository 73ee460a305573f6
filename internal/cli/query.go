package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gridstate/internal/agents"
	"github.com/roach88/gridstate/internal/locations"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/organizations"
	"github.com/roach88/gridstate/internal/products"
	"github.com/roach88/gridstate/internal/schemas"
	"github.com/roach88/gridstate/internal/store"
)

// QueryOptions holds flags shared by get and list.
type QueryOptions struct {
	*RootOptions
	ServiceID string
	AsOf      string
	Offset    int
	Limit     int
}

// ListResult is one page of a list query.
type ListResult struct {
	Data   any          `json:"data" yaml:"data"`
	Paging model.Paging `json:"paging" yaml:"paging"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <kind> <key>",
		Short: "Fetch one entity, optionally as of an earlier commit",
		Long: `Fetch an agent, organization, location, product or schema directly from
the store. With --as-of the version visible at that commit is returned,
including its start and end commit.

Examples:
  gridstate get organization org-1
  gridstate get agent 02a1b2c3 --as-of 11 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.ServiceID, "service-id", "", "tenant scope (default tenant.service_id)")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "current", "commit to read at")
	return cmd
}

func runGet(opts *QueryOptions, cmd *cobra.Command, kindArg, key string) error {
	kind, err := model.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}
	asOf, err := model.ParseCommit(opts.AsOf)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --as-of %q", opts.AsOf), err)
	}

	e, err := openEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.close()

	v, err := fetchAsOf(commandContext(cmd), e.store, kind, key, e.scope(opts.ServiceID), asOf)
	if err != nil {
		return wrapStoreError(fmt.Sprintf("failed to get %s %s", kind, key), err)
	}
	return e.out.Success(v, indentJSON(v))
}

func fetchAsOf(ctx context.Context, db *store.Store, kind model.Kind, key string, scope *string, asOf model.Commit) (any, error) {
	switch kind {
	case model.KindAgent:
		return agents.New(db).FetchAsOf(ctx, key, scope, asOf)
	case model.KindOrganization:
		return organizations.New(db).FetchAsOf(ctx, key, scope, asOf)
	case model.KindLocation:
		return locations.New(db).FetchAsOf(ctx, key, scope, asOf)
	case model.KindProduct:
		return products.New(db).FetchAsOf(ctx, key, scope, asOf)
	case model.KindSchema:
		return schemas.New(db).FetchAsOf(ctx, key, scope, asOf)
	}
	return nil, store.NewInvalidInputError("kind", string(kind), "unknown kind")
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List the current entities of a kind",
		Example: `  gridstate list organizations
  gridstate list product --service-id circuit-01::svc-a --limit 10 --format yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ServiceID, "service-id", "", "tenant scope (default tenant.service_id)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", model.DefaultLimit, "page size")
	return cmd
}

func runList(opts *QueryOptions, cmd *cobra.Command, kindArg string) error {
	kind, err := model.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	e, err := openEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.close()

	page := model.Page{Offset: opts.Offset, Limit: opts.Limit}
	res, err := listCurrent(commandContext(cmd), e.store, kind, e.scope(opts.ServiceID), page)
	if err != nil {
		return wrapStoreError(fmt.Sprintf("failed to list %s", kind), err)
	}
	return e.out.Success(res, indentJSON(res))
}

func listCurrent(ctx context.Context, db *store.Store, kind model.Kind, scope *string, page model.Page) (ListResult, error) {
	var (
		data   any
		paging model.Paging
		err    error
	)
	switch kind {
	case model.KindAgent:
		data, paging, err = orEmpty(agents.New(db).List(ctx, scope, page))
	case model.KindOrganization:
		data, paging, err = orEmpty(organizations.New(db).List(ctx, scope, page))
	case model.KindLocation:
		data, paging, err = orEmpty(locations.New(db).List(ctx, scope, page))
	case model.KindProduct:
		data, paging, err = orEmpty(products.New(db).List(ctx, scope, page))
	case model.KindSchema:
		data, paging, err = orEmpty(schemas.New(db).List(ctx, scope, page))
	default:
		err = store.NewInvalidInputError("kind", string(kind), "unknown kind")
	}
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Data: data, Paging: paging}, nil
}

// orEmpty passes a List result through with a nil page replaced by an
// empty one.
func orEmpty[T any](items []T, paging model.Paging, err error) (any, model.Paging, error) {
	if items == nil {
		items = []T{}
	}
	return items, paging, err
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
