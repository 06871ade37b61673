package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/protocol"
)

var stopCmd = &cobra.Command{
	Use:   "stop <branch>",
	Short: "Stop a session's agent process, retaining its worktree",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func init() { rootCmd.AddCommand(stopCmd) }

func runStop(cmd *cobra.Command, args []string) error {
	branch := args[0]
	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	if _, err := client.Send(protocol.NewStopSession(branch)); err != nil {
		return printProtocolError(err)
	}
	if jsonOutput {
		return printJSON(map[string]any{"branch": branch, "status": "stopped"})
	}
	fmt.Printf("stopped %s\n", branch)
	return nil
}
