package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/protocol"
	"github.com/Wirasm/kild/internal/terminal"
)

var openAgent string

var openCmd = &cobra.Command{
	Use:   "open <branch>",
	Short: "Attach to a session's agent PTY, spawning it if necessary",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	openCmd.Flags().StringVar(&openAgent, "agent", "", "not used: when no agent is live, open spawns the session's recorded agent kind (claude if none is recorded)")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	branch := args[0]
	projectPath, err := currentProjectPath("")
	if err != nil {
		return err
	}

	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	if _, err := client.Send(protocol.NewOpenSession(branch, openAgent, projectPath)); err != nil {
		return printProtocolError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return terminal.AttachSession(ctx, client, branch, os.Stdin, os.Stdout)
}
