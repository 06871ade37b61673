// Command kild is the client CLI: a thin wrapper over kildd's Unix
// socket for anything touching live PTY state, and direct filesystem
// access via internal/store, internal/dropbox, internal/cleanup for
// read-only or filesystem-shared operations.
//
// Grounded on the teacher's internal/cmd/root.go (cobra root command,
// internal/cli.Name() override, PersistentPreRunE), narrowed to kild's
// single-user, no-rigs, no-beads-check scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/cli"
	"github.com/Wirasm/kild/internal/config"
	"github.com/Wirasm/kild/internal/paths"
)

var (
	jsonOutput bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:               cli.Name(),
	Short:             "kild manages git-worktree-backed agent sessions",
	PersistentPreRunE: persistentPreRun,
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	if err := paths.EnsureRoot(); err != nil {
		return fmt.Errorf("preparing kild home: %w", err)
	}
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")
}

func main() {
	err := rootCmd.Execute()
	daemonPool.CloseAll()
	if err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to the kild CLI's exit-code
// contract: 0 success, 1 generic failure, 2 partial failure. RunE
// functions that hit a partial-failure batch wrap their error in
// partialFailureError so this mapping can tell the two apart; cobra
// itself already printed the error text by the time this runs.
func exitCodeFor(err error) int {
	if _, ok := err.(*partialFailureError); ok {
		return 2
	}
	return 1
}

// partialFailureError signals exit code 2: some sub-operations in a
// batch command (stats --all, inbox --all) failed while others
// succeeded.
type partialFailureError struct{ msg string }

func (e *partialFailureError) Error() string { return e.msg }
