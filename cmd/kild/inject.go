package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/dropbox"
	"github.com/Wirasm/kild/internal/store"
)

var injectCmd = &cobra.Command{
	Use:   "inject <branch> <text>",
	Short: "Enqueue a task for a session's agent via the fleet inbox",
	Args:  cobra.ExactArgs(2),
	RunE:  runInject,
}

func init() { rootCmd.AddCommand(injectCmd) }

func runInject(cmd *cobra.Command, args []string) error {
	branch, text := args[0], args[1]

	rec, err := findRecordByBranch(branch)
	if err != nil {
		return err
	}

	box := dropbox.Open(rec.ProjectID, rec.Branch, rec.ID)
	taskID, err := box.WriteTask("cli", firstAgentKindOf(rec), text, []string{"dropbox"})
	if errors.Is(err, dropbox.ErrNotApplicable) {
		if jsonOutput {
			return printJSON(map[string]any{"branch": branch, "status": "not_applicable"})
		}
		fmt.Printf("%s has no fleet dropbox provisioned; nothing to inject\n", branch)
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing task: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"branch": branch, "task_id": taskID})
	}
	fmt.Printf("injected task %d for %s\n", taskID, branch)
	return nil
}

func findRecordByBranch(branch string) (*store.Record, error) {
	st := store.New()
	entries, err := st.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Record != nil && e.Record.Branch == branch {
			return e.Record, nil
		}
	}
	return nil, fmt.Errorf("no session found for branch %q", branch)
}

func firstAgentKindOf(rec *store.Record) string {
	if len(rec.Agents) == 0 {
		return ""
	}
	return rec.Agents[0].Kind
}
