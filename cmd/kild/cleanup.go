package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/cleanup"
	"github.com/Wirasm/kild/internal/protocol"
	"github.com/Wirasm/kild/internal/store"
)

var (
	cleanupStopped   bool
	cleanupOlderThan int
	cleanupOrphans   bool
	cleanupNoPid     bool
	cleanupAll       bool
	cleanupForce     bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove sessions matching a cleanup strategy",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupStopped, "stopped", false, "remove stopped sessions")
	cleanupCmd.Flags().IntVar(&cleanupOlderThan, "older-than", 0, "remove sessions older than N days")
	cleanupCmd.Flags().BoolVar(&cleanupOrphans, "orphans", false, "remove sessions whose worktree is missing")
	cleanupCmd.Flags().BoolVar(&cleanupNoPid, "no-pid", false, "remove sessions with no live agent process")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "remove every session")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "remove even with uncommitted changes")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	strategy, err := cleanupStrategyFromFlags()
	if err != nil {
		return err
	}

	opts := cleanup.Options{Strategy: strategy, OlderThanDays: cleanupOlderThan, Force: cleanupForce}
	if strategy == cleanup.NoPid {
		opts.IsRunning = liveAgentChecker()
	}

	summary, err := cleanup.Run(store.New(), opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(summary)
	}
	fmt.Printf("removed %d of %d sessions\n", len(summary.Removed), summary.Total)
	for _, s := range summary.Skipped {
		fmt.Printf("skipped %s: %s\n", s.SessionID, s.Reason)
	}
	if len(summary.Skipped) > 0 {
		return &partialFailureError{msg: fmt.Sprintf("%d sessions skipped", len(summary.Skipped))}
	}
	return nil
}

func cleanupStrategyFromFlags() (cleanup.Strategy, error) {
	chosen := 0
	strategy := cleanup.All
	if cleanupStopped {
		chosen++
		strategy = cleanup.Stopped
	}
	if cleanupOlderThan > 0 {
		chosen++
		strategy = cleanup.OlderThan
	}
	if cleanupOrphans {
		chosen++
		strategy = cleanup.Orphans
	}
	if cleanupNoPid {
		chosen++
		strategy = cleanup.NoPid
	}
	if cleanupAll {
		chosen++
		strategy = cleanup.All
	}
	if chosen > 1 {
		return 0, fmt.Errorf("only one of --stopped/--older-than/--orphans/--no-pid/--all may be given")
	}
	if chosen == 0 {
		return 0, fmt.Errorf("cleanup requires a strategy flag")
	}
	return strategy, nil
}

// liveAgentChecker asks a running daemon whether a spawn id is live; if
// the daemon isn't reachable every spawn id is treated as not running,
// since the CLI process owns no PTYs of its own to check directly.
func liveAgentChecker() func(string) bool {
	client, _, err := dialDaemon()
	if err != nil {
		return func(string) bool { return false }
	}
	// The connection is intentionally left open for the command's
	// lifetime; the process exits right after runCleanup returns.
	return func(spawnID string) bool {
		resp, serr := client.Send(protocol.NewIsRunning(spawnID))
		if serr != nil {
			return false
		}
		return resp.Running
	}
}
