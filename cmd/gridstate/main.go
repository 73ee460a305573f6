// Command gridstate serves and maintains a commit-versioned ledger state
// store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/gridstate/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
