package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/store"
)

var (
	agentStatusSelf   string
	agentStatusNotify bool
)

var agentStatusCmd = &cobra.Command{
	Use:    "agent-status",
	Short:  "Report an agent's own lifecycle state (used by hooks)",
	Args:   cobra.NoArgs,
	RunE:   runAgentStatus,
	Hidden: true,
}

func init() {
	agentStatusCmd.Flags().StringVar(&agentStatusSelf, "self", "", "this agent's new state (working|idle|waiting|error|done)")
	_ = agentStatusCmd.MarkFlagRequired("self")
	agentStatusCmd.Flags().BoolVar(&agentStatusNotify, "notify", false, "also print the new state to stderr")
	rootCmd.AddCommand(agentStatusCmd)
}

// runAgentStatus is invoked from inside an agent's own hook scripts
// (internal/fleet), never interactively: it identifies the calling
// session via the KILD_SESSION_ID env var injected at spawn time
// (internal/lifecycle.sessionEnv) and records the reported state
// directly in the store, bypassing the daemon since no PTY state
// changes here.
func runAgentStatus(cmd *cobra.Command, args []string) error {
	sessionID := os.Getenv("KILD_SESSION_ID")
	if sessionID == "" {
		return fmt.Errorf("agent-status: KILD_SESSION_ID is not set (not running inside a kild agent session)")
	}

	status := store.AgentStatus(agentStatusSelf)
	switch status {
	case store.AgentWorking, store.AgentIdle, store.AgentWaiting, store.AgentError, store.AgentDone:
	default:
		return fmt.Errorf("agent-status: unknown state %q", agentStatusSelf)
	}

	st := store.New()
	now := time.Now().UTC()
	_, err := st.Update(sessionID, func(rec *store.Record) error {
		for i := range rec.Agents {
			rec.Agents[i].Status = status
			rec.Agents[i].LastActivity = &now
		}
		rec.LastActivity = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("agent-status: updating record: %w", err)
	}

	if agentStatusNotify {
		notifySelf(sessionID, status)
	}
	return nil
}

// notifySelf prints the new state to stderr; no desktop notification is
// sent. It returns nothing, so it never blocks the hook that invoked
// agent-status.
func notifySelf(sessionID string, status store.AgentStatus) {
	fmt.Fprintf(os.Stderr, "kild: %s is now %s\n", sessionID, status)
}
