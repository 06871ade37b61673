package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/gitwt"
	"github.com/Wirasm/kild/internal/store"
)

var (
	statsAll  bool
	statsBase string
)

var statsCmd = &cobra.Command{
	Use:   "stats [branch]",
	Short: "Show a session's diff stats relative to a base ref",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsAll, "all", false, "report stats for every session")
	statsCmd.Flags().StringVar(&statsBase, "base", "main", "base ref to diff against")
	rootCmd.AddCommand(statsCmd)
}

type statResult struct {
	Branch string          `json:"branch"`
	Stat   *gitwt.DiffStat `json:"stat,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	st := store.New()
	entries, err := st.List()
	if err != nil {
		return err
	}

	var targets []*store.Record
	switch {
	case statsAll:
		for _, e := range entries {
			if e.Record != nil {
				targets = append(targets, e.Record)
			}
		}
	case len(args) == 1:
		branch := args[0]
		for _, e := range entries {
			if e.Record != nil && e.Record.Branch == branch {
				targets = append(targets, e.Record)
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("no session found for branch %q", branch)
		}
	default:
		return fmt.Errorf("stats requires a branch or --all")
	}

	results := make([]statResult, 0, len(targets))
	failures := 0
	for _, rec := range targets {
		repo := gitwt.Open(rec.WorktreePath)
		stat, err := repo.DiffStat(rec.WorktreePath, statsBase)
		if err != nil {
			results = append(results, statResult{Branch: rec.Branch, Error: err.Error()})
			failures++
			continue
		}
		results = append(results, statResult{Branch: rec.Branch, Stat: &stat})
	}

	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Printf("%s: error: %s\n", r.Branch, r.Error)
				continue
			}
			fmt.Printf("%s: +%d -%d across %d files, %d commits\n", r.Branch, r.Stat.Insertions, r.Stat.Deletions, r.Stat.FilesChanged, r.Stat.Commits)
		}
	}

	if failures > 0 {
		return &partialFailureError{msg: fmt.Sprintf("%d of %d sessions failed", failures, len(targets))}
	}
	return nil
}
