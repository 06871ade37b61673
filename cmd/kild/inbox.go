package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Wirasm/kild/internal/dropbox"
	"github.com/Wirasm/kild/internal/store"
)

var (
	inboxAll    bool
	inboxTask   bool
	inboxReport bool
	inboxStatus bool
)

var inboxCmd = &cobra.Command{
	Use:   "inbox [branch]",
	Short: "Show a session's dropbox task/ack/report state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInbox,
}

func init() {
	inboxCmd.Flags().BoolVar(&inboxAll, "all", false, "show every session's inbox")
	inboxCmd.Flags().BoolVar(&inboxTask, "task", false, "show only the current task")
	inboxCmd.Flags().BoolVar(&inboxReport, "report", false, "show only the latest report")
	inboxCmd.Flags().BoolVar(&inboxStatus, "status", false, "show only the handoff history")
	rootCmd.AddCommand(inboxCmd)
}

type inboxResult struct {
	Branch  string                 `json:"branch"`
	Task    string                 `json:"task,omitempty"`
	Report  string                 `json:"report,omitempty"`
	History []dropbox.HistoryEntry `json:"history,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func runInbox(cmd *cobra.Command, args []string) error {
	st := store.New()
	entries, err := st.List()
	if err != nil {
		return err
	}

	var targets []*store.Record
	switch {
	case inboxAll:
		for _, e := range entries {
			if e.Record != nil {
				targets = append(targets, e.Record)
			}
		}
	case len(args) == 1:
		rec, ferr := findRecordByBranch(args[0])
		if ferr != nil {
			return ferr
		}
		targets = append(targets, rec)
	default:
		return fmt.Errorf("inbox requires a branch or --all")
	}

	results := make([]inboxResult, 0, len(targets))
	failures := 0
	for _, rec := range targets {
		box := dropbox.Open(rec.ProjectID, rec.Branch, rec.ID)
		res := inboxResult{Branch: rec.Branch}

		showAll := !inboxTask && !inboxReport && !inboxStatus
		if showAll || inboxTask {
			if data, rerr := os.ReadFile(filepath.Join(box.Dir(), "task.md")); rerr == nil {
				res.Task = string(data)
			}
		}
		if showAll || inboxReport {
			if data, rerr := os.ReadFile(filepath.Join(box.Dir(), "report.md")); rerr == nil {
				res.Report = string(data)
			}
		}
		if showAll || inboxStatus {
			history, herr := box.History()
			if herr != nil {
				res.Error = herr.Error()
				failures++
			} else {
				res.History = history
			}
		}
		results = append(results, res)
	}

	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Printf("=== %s ===\n", r.Branch)
			if r.Task != "" {
				fmt.Println(r.Task)
			}
			if r.Report != "" {
				fmt.Println(r.Report)
			}
			for _, h := range r.History {
				fmt.Printf("[%s] task %d: %s -> %s: %s\n", h.Ts.Format("2006-01-02 15:04:05"), h.TaskID, h.From, h.To, h.Summary)
			}
			if r.Error != "" {
				fmt.Printf("error: %s\n", r.Error)
			}
		}
	}

	if failures > 0 {
		return &partialFailureError{msg: fmt.Sprintf("%d of %d inboxes failed", failures, len(targets))}
	}
	return nil
}
