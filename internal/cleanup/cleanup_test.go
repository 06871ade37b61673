package cleanup

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wirasm/kild/internal/store"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial")
	return dir
}

func addWorktree(t *testing.T, repoDir, branch string) string {
	t.Helper()
	wtPath := filepath.Join(repoDir, ".kild", "worktrees", branch)
	cmd := exec.Command("git", "worktree", "add", "-b", branch, wtPath)
	cmd.Dir = repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git worktree add: %v\n%s", err, out)
	}
	return wtPath
}

func TestRunOrphansRemovesDegradedSessions(t *testing.T) {
	st := store.NewAt(t.TempDir())
	rec := &store.Record{ID: "p/orphan", ProjectID: "p", Branch: "orphan", WorktreePath: "/does/not/exist", Status: store.StatusActive, CreatedAt: time.Now().UTC()}
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Trigger Degraded via List (Get also sets it, but Run uses List).
	if _, err := st.List(); err != nil {
		t.Fatalf("List: %v", err)
	}

	summary, err := Run(st, Options{Strategy: Orphans, Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Removed) != 1 || summary.Removed[0] != "p/orphan" {
		t.Fatalf("Removed = %v, want [p/orphan]", summary.Removed)
	}
}

func TestRunStoppedStrategyOnlyRemovesStopped(t *testing.T) {
	st := store.NewAt(t.TempDir())
	active := &store.Record{ID: "p/active", ProjectID: "p", Branch: "active", Status: store.StatusActive, CreatedAt: time.Now().UTC()}
	stopped := &store.Record{ID: "p/stopped", ProjectID: "p", Branch: "stopped", Status: store.StatusStopped, CreatedAt: time.Now().UTC()}
	if err := st.Insert(active); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Insert(stopped); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	summary, err := Run(st, Options{Strategy: Stopped, Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Removed) != 1 || summary.Removed[0] != "p/stopped" {
		t.Fatalf("Removed = %v, want [p/stopped]", summary.Removed)
	}
	if _, err := st.Get("p/active"); err != nil {
		t.Fatalf("expected active session to survive: %v", err)
	}
}

func TestRunRefusesDirtyWorktreeWithoutForce(t *testing.T) {
	repoDir := initRepo(t)
	wtPath := addWorktree(t, repoDir, "dirty")
	if err := os.WriteFile(filepath.Join(wtPath, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st := store.NewAt(t.TempDir())
	rec := &store.Record{ID: "p/dirty", ProjectID: "p", Branch: "dirty", WorktreePath: wtPath, Status: store.StatusStopped, CreatedAt: time.Now().UTC()}
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	summary, err := Run(st, Options{Strategy: Stopped, Force: false})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Removed) != 0 {
		t.Fatalf("expected dirty worktree to be skipped, got Removed = %v", summary.Removed)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].SessionID != "p/dirty" {
		t.Fatalf("Skipped = %+v, want one entry for p/dirty", summary.Skipped)
	}
	if _, err := st.Get("p/dirty"); err != nil {
		t.Fatal("expected record to survive since cleanup was refused")
	}
}

func TestRunNoPidStrategyUsesIsRunningCallback(t *testing.T) {
	st := store.NewAt(t.TempDir())
	rec := &store.Record{
		ID: "p/noproc", ProjectID: "p", Branch: "noproc", Status: store.StatusActive, CreatedAt: time.Now().UTC(),
		Agents: []store.Agent{{Kind: "claude", SpawnID: "s1"}},
	}
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	summary, err := Run(st, Options{Strategy: NoPid, Force: true, IsRunning: func(string) bool { return false }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Removed) != 1 {
		t.Fatalf("Removed = %v, want one entry", summary.Removed)
	}
}

func TestRunOlderThanStrategy(t *testing.T) {
	st := store.NewAt(t.TempDir())
	old := &store.Record{ID: "p/old", ProjectID: "p", Branch: "old", Status: store.StatusActive, CreatedAt: time.Now().UTC().Add(-10 * 24 * time.Hour)}
	recent := &store.Record{ID: "p/recent", ProjectID: "p", Branch: "recent", Status: store.StatusActive, CreatedAt: time.Now().UTC()}
	if err := st.Insert(old); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Insert(recent); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	summary, err := Run(st, Options{Strategy: OlderThan, OlderThanDays: 7, Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Removed) != 1 || summary.Removed[0] != "p/old" {
		t.Fatalf("Removed = %v, want [p/old]", summary.Removed)
	}
}
