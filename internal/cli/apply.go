package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridstate/internal/ledger"
	"github.com/roach88/gridstate/internal/ledgersync"
	"github.com/roach88/gridstate/internal/model"
)

// ApplyResult reports what an apply run did.
type ApplyResult struct {
	Applied int            `json:"applied" yaml:"applied"`
	Heights []HeightResult `json:"heights" yaml:"heights"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file|dir>...",
		Short: "Apply ledger batch files",
		Long: `Apply batch files (YAML or JSON, one batch each) through the syncer.

A directory argument applies every batch file in it in name order. A batch
that forks below the recorded head rolls that chain back to the batch's
predecessor first.

Exit codes:
  0 - All batches applied
  1 - A batch was rejected (missing commits, invalid delta, etc.)
  2 - Command error (unreadable file, database unreachable, etc.)
  3 - The store failed verification after a rollback

Examples:
  gridstate apply ./batches/0001.yaml ./batches/0002.yaml
  gridstate apply ./batches --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.close()
			return runApply(commandContext(cmd), e, args)
		},
	}
}

func runApply(ctx context.Context, e *env, paths []string) error {
	var batches []ledgersync.Batch
	for _, path := range paths {
		read, err := readBatches(ctx, path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read batches", err)
		}
		batches = append(batches, read...)
	}

	applier := ledgersync.NewApplier(e.store,
		ledgersync.WithDefaultScope(e.cfg.Scope()),
		ledgersync.WithLogger(e.logger))
	src := &countingSource{Source: ledgersync.NewSliceSource(batches...), applier: applier}
	if err := ledgersync.NewSyncer(applier, src, ledgersync.WithSyncLogger(e.logger)).Run(ctx); err != nil {
		return wrapStoreError(fmt.Sprintf("apply stopped after %d batches", max(src.delivered-1, 0)), err)
	}

	res := ApplyResult{Applied: src.delivered, Heights: []HeightResult{}}
	var text []string
	for _, scope := range src.scopes {
		head, err := ledger.New(e.store, scope).CurrentHeight(ctx)
		if err != nil {
			return wrapStoreError("failed to read height", err)
		}
		res.Heights = append(res.Heights, HeightResult{ServiceID: scope, Height: head})
		text = append(text, fmt.Sprintf("  %s at commit %d", model.ScopeName(scope), head))
	}
	summary := fmt.Sprintf("Applied %d batches.", res.Applied)
	if len(text) > 0 {
		summary += "\n" + strings.Join(text, "\n")
	}
	return e.out.Success(res, summary)
}

func readBatches(ctx context.Context, path string) ([]ledgersync.Batch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		b, err := ledgersync.ReadBatchFile(path)
		if err != nil {
			return nil, err
		}
		return []ledgersync.Batch{b}, nil
	}

	var out []ledgersync.Batch
	src := ledgersync.NewDirSource(path, 0)
	for {
		b, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, b)
	}
}

// countingSource records how many batches were handed out and which chains
// they belong to.
type countingSource struct {
	ledgersync.Source
	applier   *ledgersync.Applier
	delivered int
	scopes    []*string
}

func (c *countingSource) Next(ctx context.Context) (ledgersync.Batch, error) {
	b, err := c.Source.Next(ctx)
	if err != nil {
		return b, err
	}
	c.delivered++
	scope := c.applier.ScopeOf(b)
	for _, seen := range c.scopes {
		if model.SameScope(seen, scope) {
			return b, nil
		}
	}
	c.scopes = append(c.scopes, scope)
	return b, nil
}
