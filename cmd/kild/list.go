package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/store"
	"github.com/Wirasm/kild/internal/terminal"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known session",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() { rootCmd.AddCommand(listCmd) }

func runList(cmd *cobra.Command, args []string) error {
	st := store.New()
	entries, err := st.List()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(entries)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BRANCH\tSTATUS\tAGENT\tWORKTREE")
	for _, e := range entries {
		if e.Record == nil {
			fmt.Fprintf(tw, "?\tload_error\t-\t%s\n", e.LoadError)
			continue
		}
		rec := e.Record
		agent := "-"
		if len(rec.Agents) > 0 {
			agent = terminal.AgentLabel(rec.Agents[0].Kind)
		}
		status := terminal.StatusLabel(string(rec.Status))
		if rec.Degraded {
			status += " (degraded)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Branch, status, agent, rec.WorktreePath)
	}
	return tw.Flush()
}
