// Package cleanup scans the store and the project's git worktrees for
// sessions that can safely be removed, classifies them by strategy, and
// reports what it removed or skipped rather than acting on partial
// evidence silently.
//
// Grounded on the teacher's internal/doctor checks (rig_check.go,
// stale_beads_redirect_check.go): each a pure scan → classify → report
// pass over filesystem and store state, adapted from rig/polecat
// terminology to kild's session/worktree domain.
package cleanup

import (
	"time"

	"github.com/Wirasm/kild/internal/gitwt"
	"github.com/Wirasm/kild/internal/store"
)

// Strategy selects which sessions are eligible for removal.
type Strategy int

const (
	// All removes every session regardless of status.
	All Strategy = iota
	// Stopped removes only sessions whose status is "stopped".
	Stopped
	// OlderThan removes sessions whose CreatedAt is older than a
	// strategy-supplied day count.
	OlderThan
	// Orphans removes sessions whose worktree is missing. Records that
	// failed to parse are reported as skipped, not removed.
	Orphans
	// NoPid removes sessions with no live agent process.
	NoPid
)

// SkipReason explains why a candidate session was not removed.
type SkipReason struct {
	SessionID string
	Reason    string
}

// Summary reports the outcome of a cleanup pass.
type Summary struct {
	Removed []string
	Skipped []SkipReason
	Total   int
}

// Options configures a Run.
type Options struct {
	Strategy      Strategy
	OlderThanDays int
	Force         bool
	// IsRunning reports whether the agent with the given spawn id is
	// live; the cleanup engine has no PTY host handle of its own, so
	// callers wire this to ptyhost.Host.IsRunning for the NoPid strategy.
	IsRunning func(spawnID string) bool
}

// Run scans st according to opts.Strategy and removes eligible worktrees
// and store records, refusing to remove a session with uncommitted
// changes unless opts.Force.
func Run(st *store.Store, opts Options) (Summary, error) {
	entries, err := st.List()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Total: len(entries)}

	for _, e := range entries {
		if e.Record == nil {
			// A load_error entry carries no session id to delete by, so
			// under Orphans/All it is reported as skipped, not removed.
			if opts.Strategy == Orphans || opts.Strategy == All {
				summary.Skipped = append(summary.Skipped, SkipReason{Reason: "unparseable record, cannot safely remove without an id: " + e.LoadError})
			}
			continue
		}

		rec := e.Record
		eligible, reason := classify(rec, opts)
		if !eligible {
			if reason != "" {
				summary.Skipped = append(summary.Skipped, SkipReason{SessionID: rec.ID, Reason: reason})
			}
			continue
		}

		if rec.WorktreePath != "" {
			// git worktree subcommands operate repo-wide from within
			// any linked worktree, so opening the Repo at the
			// worktree's own path is sufficient here.
			repo := gitwt.Open(rec.WorktreePath)
			if !opts.Force {
				dirty, derr := repo.HasUncommittedChanges(rec.WorktreePath)
				if derr == nil && dirty {
					summary.Skipped = append(summary.Skipped, SkipReason{SessionID: rec.ID, Reason: "uncommitted changes"})
					continue
				}
			}
			_ = repo.WorktreeRemove(rec.WorktreePath, opts.Force)
		}

		if err := st.Delete(rec.ID); err != nil && err != store.ErrNotFound {
			summary.Skipped = append(summary.Skipped, SkipReason{SessionID: rec.ID, Reason: err.Error()})
			continue
		}
		summary.Removed = append(summary.Removed, rec.ID)
	}

	return summary, nil
}

func classify(rec *store.Record, opts Options) (eligible bool, skipReason string) {
	switch opts.Strategy {
	case All:
		return true, ""
	case Stopped:
		if rec.Status != store.StatusStopped {
			return false, ""
		}
		return true, ""
	case OlderThan:
		cutoff := time.Now().UTC().Add(-time.Duration(opts.OlderThanDays) * 24 * time.Hour)
		if rec.CreatedAt.After(cutoff) {
			return false, ""
		}
		return true, ""
	case Orphans:
		if !rec.Degraded {
			return false, ""
		}
		return true, ""
	case NoPid:
		if opts.IsRunning == nil {
			return false, ""
		}
		for _, a := range rec.Agents {
			if opts.IsRunning(a.SpawnID) {
				return false, ""
			}
		}
		return true, ""
	default:
		return false, ""
	}
}
