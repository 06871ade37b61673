// Package gitwt wraps the git subprocess operations the session
// lifecycle and cleanup engine need: worktree add/remove/list, branch
// existence/creation, and uncommitted-changes/unpushed-commit checks.
//
// Adapted and trimmed from the teacher's internal/git.Git — dropped the
// bare-repo clone, submodule, merge/rebase/stash, and remote-tracking
// machinery that gastown's rig/crew model needs but a single-repo
// worktree-per-branch session model does not.
package gitwt

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Error wraps a failed git invocation with its raw stdout/stderr, the
// same shape as the teacher's GitError: callers observe the raw output
// rather than the wrapper trying to classify it.
type Error struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", e.Command, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Repo wraps git operations scoped to one working directory.
type Repo struct {
	dir string
}

// Open returns a Repo rooted at dir: the project's main checkout or any
// of its linked worktrees, since git's worktree commands act on the whole
// repository from either.
func Open(dir string) *Repo {
	return &Repo{dir: dir}
}

func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		command := ""
		for _, a := range args {
			if !strings.HasPrefix(a, "-") {
				command = a
				break
			}
		}
		return "", &Error{Command: command, Args: args, Stdout: strings.TrimSpace(stdout.String()), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether dir is (inside) a git working tree.
func (r *Repo) IsRepo() bool {
	_, err := r.run("rev-parse", "--git-dir")
	return err == nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(name string) (bool, error) {
	_, err := r.run("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		var gerr *Error
		if isGitError(err, &gerr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isGitError(err error, target **Error) bool {
	ge, ok := err.(*Error)
	if ok {
		*target = ge
	}
	return ok
}

// CreateBranch creates a new branch from the current HEAD.
func (r *Repo) CreateBranch(name string) error {
	_, err := r.run("branch", name)
	return err
}

// WorktreeAdd creates a worktree at path. If the branch already exists
// it is checked out as-is; otherwise a new branch is created from HEAD.
func (r *Repo) WorktreeAdd(path, branch string) error {
	exists, err := r.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		_, err := r.run("worktree", "add", path, branch)
		return err
	}
	_, err = r.run("worktree", "add", "-b", branch, path)
	return err
}

// WorktreeRemove removes a worktree, optionally forcing past uncommitted
// changes or untracked files within it.
func (r *Repo) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := r.run(args...)
	return err
}

// WorktreePrune removes worktree administrative entries for paths that
// have been deleted out from under git.
func (r *Repo) WorktreePrune() error {
	_, err := r.run("worktree", "prune")
	return err
}

// Worktree is one entry of WorktreeList.
type Worktree struct {
	Path   string
	Branch string
	Commit string
}

// WorktreeList returns every worktree registered against this repo.
func (r *Repo) WorktreeList() ([]Worktree, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var worktrees []Worktree
	var cur Worktree
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			if cur.Path != "" {
				worktrees = append(worktrees, cur)
				cur = Worktree{}
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		}
	}
	if cur.Path != "" {
		worktrees = append(worktrees, cur)
	}
	return worktrees, nil
}

// HasUncommittedChanges reports whether the worktree at path has any
// staged, unstaged, or untracked changes.
func (r *Repo) HasUncommittedChanges(path string) (bool, error) {
	wt := &Repo{dir: path}
	out, err := wt.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// UnpushedCommits returns the number of commits on branch not present on
// its upstream, or the branch's own ahead-count against the remote
// tracking ref if one exists, 0 with no error if there is none.
func (r *Repo) UnpushedCommits(branch string) (int, error) {
	upstream, err := r.run("rev-parse", "--abbrev-ref", branch+"@{upstream}")
	if err != nil {
		return 0, nil
	}
	out, err := r.run("rev-list", "--count", upstream+".."+branch)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, fmt.Errorf("parsing commit count %q: %w", out, convErr)
	}
	return n, nil
}

// ListBranches returns local branch names matching pattern (glob-style,
// passed through to `git for-each-ref`), or all branches if pattern is
// empty.
func (r *Repo) ListBranches(pattern string) ([]string, error) {
	// A bare prefix matches every branch; a "refs/heads/*" glob would
	// skip slashed names such as feat/x.
	refPattern := "refs/heads"
	if pattern != "" {
		refPattern = "refs/heads/" + pattern
	}
	out, err := r.run("for-each-ref", "--format=%(refname:short)", refPattern)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// DiffStat summarizes a worktree's changes relative to a base ref, for
// the "stats" command's per-session report.
type DiffStat struct {
	FilesChanged int
	Insertions   int
	Deletions    int
	Commits      int
}

// DiffStat computes path's divergence from baseRef: line/file churn via
// --shortstat, commit count via rev-list --count.
func (r *Repo) DiffStat(path, baseRef string) (DiffStat, error) {
	wt := &Repo{dir: path}

	shortstat, err := wt.run("diff", "--shortstat", baseRef+"...HEAD")
	if err != nil {
		return DiffStat{}, err
	}
	stat := parseShortstat(shortstat)

	if out, cerr := wt.run("rev-list", "--count", baseRef+"..HEAD"); cerr == nil {
		if n, convErr := strconv.Atoi(out); convErr == nil {
			stat.Commits = n
		}
	}
	return stat, nil
}

func parseShortstat(s string) DiffStat {
	var stat DiffStat
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		var n int
		switch {
		case strings.Contains(field, "changed"):
			if _, err := fmt.Sscanf(field, "%d", &n); err == nil {
				stat.FilesChanged = n
			}
		case strings.Contains(field, "insertion"):
			if _, err := fmt.Sscanf(field, "%d", &n); err == nil {
				stat.Insertions = n
			}
		case strings.Contains(field, "deletion"):
			if _, err := fmt.Sscanf(field, "%d", &n); err == nil {
				stat.Deletions = n
			}
		}
	}
	return stat
}
