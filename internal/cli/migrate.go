package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateResult reports the schema version after migrating.
type MigrateResult struct {
	Backend string `json:"backend" yaml:"backend"`
	Version uint   `json:"version" yaml:"version"`
	Dirty   bool   `json:"dirty" yaml:"dirty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Bring the database schema up to date and report its version.

Example:
  gridstate migrate --db ./gridstate.db
  gridstate migrate --db postgres://grid@localhost/grid --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.Migrate(); err != nil {
				return wrapStoreError("migration failed", err)
			}
			version, dirty, err := e.store.SchemaVersion()
			if err != nil {
				return wrapStoreError("failed to read schema version", err)
			}
			res := MigrateResult{Backend: string(e.store.Backend()), Version: version, Dirty: dirty}
			return e.out.Success(res, fmt.Sprintf("Schema at version %d (%s).", version, res.Backend))
		},
	}
}
