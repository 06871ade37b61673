package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/protocol"
)

var completeForce bool

var completeCmd = &cobra.Command{
	Use:   "complete <branch>",
	Short: "Mark a session completed, retaining its worktree and record for audit",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

func init() {
	completeCmd.Flags().BoolVar(&completeForce, "force", false, "complete even with uncommitted changes")
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	branch := args[0]
	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	if _, err := client.Send(protocol.NewCompleteSession(branch, completeForce)); err != nil {
		return printProtocolError(err)
	}
	if jsonOutput {
		return printJSON(map[string]any{"branch": branch, "status": "completed"})
	}
	fmt.Printf("completed %s\n", branch)
	return nil
}
