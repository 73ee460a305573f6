package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridstate/internal/ledger"
	"github.com/roach88/gridstate/internal/model"
)

// RollbackOptions holds flags for the rollback command.
type RollbackOptions struct {
	*RootOptions
	To        string
	ServiceID string
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollbackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll a commit chain back to an earlier commit",
		Long: `Restore the state of one commit chain to exactly what it was after the
given commit. Rows written later are deleted, rows closed later are reopened
and the commit records above the target are pruned.

Exit codes:
  0 - Rolled back
  1 - Target out of range
  3 - Verification failed; the transaction was aborted and nothing changed

Examples:
  gridstate rollback --to 41
  gridstate rollback --to 0 --service-id circuit-01::svc-a`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "commit to roll back to (required)")
	_ = cmd.MarkFlagRequired("to")
	cmd.Flags().StringVar(&opts.ServiceID, "service-id", "", "commit chain (default tenant.service_id)")

	return cmd
}

func runRollback(opts *RollbackOptions, cmd *cobra.Command) error {
	target, err := model.ParseCommit(opts.To)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --to %q", opts.To), err)
	}

	e, err := openEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.close()

	scope := e.scope(opts.ServiceID)
	res, err := ledger.New(e.store, scope).WithLogger(e.logger).RollbackTo(commandContext(cmd), target)
	if err != nil {
		return wrapStoreError("rollback failed", err)
	}

	return e.out.Success(res, fmt.Sprintf(
		"Rolled %s back from %d to %d: %d rows deleted, %d reopened, %d commits pruned.",
		model.ScopeName(scope), res.Previous, res.Target, res.Deleted, res.Reopened, res.Commits))
}

// HeightResult is the head of one commit chain.
type HeightResult struct {
	ServiceID *string               `json:"service_id,omitempty" yaml:"service_id,omitempty"`
	Height    model.Commit          `json:"height" yaml:"height"`
	Commits   []ledger.CommitRecord `json:"commits,omitempty" yaml:"commits,omitempty"`
}

// NewHeightCommand creates the height command.
func NewHeightCommand(rootOpts *RootOptions) *cobra.Command {
	var serviceID string

	cmd := &cobra.Command{
		Use:   "height",
		Short: "Show the head and recorded commits of a chain",
		Example: `  gridstate height
  gridstate height --service-id circuit-01::svc-a --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := commandContext(cmd)
			scope := e.scope(serviceID)
			l := ledger.New(e.store, scope)
			head, err := l.CurrentHeight(ctx)
			if err != nil {
				return wrapStoreError("failed to read height", err)
			}
			commits, err := l.Commits(ctx)
			if err != nil {
				return wrapStoreError("failed to list commits", err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%s at commit %d", model.ScopeName(scope), head)
			if e.out.Verbose {
				for _, c := range commits {
					fmt.Fprintf(&b, "\n  %d %s (after %d)", c.Num, c.ID, c.Predecessor)
				}
			}
			return e.out.Success(HeightResult{ServiceID: scope, Height: head, Commits: commits}, b.String())
		},
	}

	cmd.Flags().StringVar(&serviceID, "service-id", "", "commit chain (default tenant.service_id)")
	return cmd
}
