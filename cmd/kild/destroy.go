package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/protocol"
)

var destroyForce bool

var destroyCmd = &cobra.Command{
	Use:   "destroy <branch>",
	Short: "Kill a session's agent, remove its worktree, and delete its record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyForce, "force", false, "remove even with uncommitted changes")
	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
	branch := args[0]
	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	if _, err := client.Send(protocol.NewDestroySession(branch, destroyForce)); err != nil {
		return printProtocolError(err)
	}
	if jsonOutput {
		return printJSON(map[string]any{"branch": branch, "status": "destroyed"})
	}
	fmt.Printf("destroyed %s\n", branch)
	return nil
}
