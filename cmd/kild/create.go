package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/protocol"
)

var (
	createAgent       string
	createNote        string
	createProjectPath string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new worktree-backed agent session",
	Args:  cobra.NoArgs,
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().String("branch", "", "branch to create the session on (required)")
	_ = createCmd.MarkFlagRequired("branch")
	createCmd.Flags().StringVar(&createAgent, "agent", "claude", "agent kind to spawn")
	createCmd.Flags().StringVar(&createNote, "note", "", "free-form note attached to the session")
	createCmd.Flags().StringVar(&createProjectPath, "project-path", "", "project root (defaults to cwd)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	branch, _ := cmd.Flags().GetString("branch")
	agent := createAgent
	if !cmd.Flags().Changed("agent") && cfg != nil && cfg.DefaultAgent != "" {
		agent = cfg.DefaultAgent
	}
	projectPath, err := currentProjectPath(createProjectPath)
	if err != nil {
		return err
	}

	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	resp, err := client.Send(protocol.NewCreateSession(branch, agent, projectPath, createNote))
	if err != nil {
		return printProtocolError(err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"branch": branch, "status": "created", "ack": resp.Type})
	}
	fmt.Printf("created session for branch %q (agent %s)\n", branch, agent)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
