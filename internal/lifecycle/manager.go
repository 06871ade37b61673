// Package lifecycle drives session creation, attach, stop, destroy, and
// completion: the orchestration layer tying together internal/gitwt
// (worktrees), internal/store (durable records), internal/ptyhost
// (daemon-owned agent processes), internal/dropbox (fleet handoff), and
// internal/fleet (agent config hook installation).
//
// Grounded on the teacher's internal/polecat.SessionManager (the
// Start/Stop reuse-vs-zombie-vs-stale decision tree) and
// internal/crew.Manager (flock-guarded create with rollback),
// generalized from tmux-backed sessions to daemon-owned PTYs.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/Wirasm/kild/internal/dropbox"
	"github.com/Wirasm/kild/internal/fleet"
	"github.com/Wirasm/kild/internal/gitwt"
	"github.com/Wirasm/kild/internal/paths"
	"github.com/Wirasm/kild/internal/ptyhost"
	"github.com/Wirasm/kild/internal/store"
)

// GracefulShutdownTimeout mirrors ptyhost's own constant; kept as a
// distinct named constant here because lifecycle's Stop operation is
// the spec-level contract point, not ptyhost's internals.
const GracefulShutdownTimeout = ptyhost.GracefulShutdownTimeout

// Manager orchestrates the full session lifecycle for one kild daemon.
type Manager struct {
	store *store.Store
	host  *ptyhost.Host
}

// New creates a Manager wired to the given store and PTY host.
func New(st *store.Store, host *ptyhost.Host) *Manager {
	return &Manager{store: st, host: host}
}

// CreateOptions configures Create.
type CreateOptions struct {
	Branch      string
	Agent       AgentKind
	ProjectPath string
	Note        string
}

// Create validates inputs, creates (or reuses) the branch's worktree,
// writes the session record, installs fleet hooks (warn-only), and
// spawns the agent's PTY. A mid-way failure triggers best-effort
// rollback: the worktree is removed and the store record deleted before
// the typed error is returned.
func (m *Manager) Create(opts CreateOptions) (*store.Record, error) {
	if err := paths.ValidateBranch(opts.Branch); err != nil {
		return nil, newError(CodeInvalidBranch, "Create", err)
	}
	if !opts.Agent.Valid() {
		return nil, newError(CodeInvalidAgent, "Create", fmt.Errorf("unknown agent kind %q", opts.Agent))
	}

	repo := gitwt.Open(opts.ProjectPath)
	if !repo.IsRepo() {
		return nil, newError(CodeNotARepo, "Create", fmt.Errorf("%s is not a git repository", opts.ProjectPath))
	}

	projectID, err := paths.ProjectID(opts.ProjectPath)
	if err != nil {
		return nil, newError(CodeNotARepo, "Create", err)
	}
	sessionID := paths.SessionID(projectID, opts.Branch)
	worktreePath := paths.WorktreePath(opts.ProjectPath, opts.Branch)

	if err := repo.WorktreeAdd(worktreePath, opts.Branch); err != nil {
		return nil, newError(CodeWorktreeFailed, "Create", err)
	}

	rec := &store.Record{
		ID:           sessionID,
		ProjectID:    projectID,
		Branch:       opts.Branch,
		WorktreePath: worktreePath,
		Status:       store.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if opts.Note != "" {
		rec.Note = &opts.Note
	}

	rollbackWorktree := func() {
		_ = repo.WorktreeRemove(worktreePath, true)
	}

	if err := m.store.Insert(rec); err != nil {
		rollbackWorktree()
		return nil, newError(CodeSessionAlreadyExists, "Create", err)
	}

	// Hook installation failures are warn-and-continue: the session is
	// still usable without fleet integration.
	if err := fleet.Install(opts.Agent.Command(), worktreePath); err != nil {
		fmt.Printf("kild: warning: installing fleet hooks for %s: %v\n", sessionID, err)
	}

	box := dropbox.Open(projectID, opts.Branch, sessionID)
	if err := box.Ensure(true); err != nil {
		fmt.Printf("kild: warning: ensuring dropbox for %s: %v\n", sessionID, err)
	}

	spawnID := sessionID
	if err := m.host.Spawn(spawnID, ptyhost.SpawnOptions{
		Command: opts.Agent.Command(),
		Dir:     worktreePath,
		Env:     sessionEnv(sessionID, projectID, opts.Branch, string(opts.Agent)),
	}); err != nil {
		_, _ = m.store.Update(sessionID, func(r *store.Record) error {
			r.Status = store.StatusStopped
			return nil
		})
		_ = m.store.Delete(sessionID)
		rollbackWorktree()
		return nil, newError(CodePTYSpawnFailed, "Create", err)
	}

	rec.Agents = []store.Agent{{Kind: string(opts.Agent), SpawnID: spawnID, Status: store.AgentWorking}}
	updated, err := m.store.Update(sessionID, func(r *store.Record) error {
		r.Agents = rec.Agents
		return nil
	})
	if err != nil {
		return rec, nil
	}
	return updated, nil
}

func sessionEnv(sessionID, projectID, branch, agent string) []string {
	env := []string{
		"KILD_SESSION_ID=" + sessionID,
		"KILD_PROJECT_ID=" + projectID,
		"KILD_BRANCH=" + branch,
		"KILD_AGENT=" + agent,
	}
	if branch == "brain" {
		env = append(env, "KILD_FLEET_DIR="+paths.ProjectFleetRoot(projectID))
	}
	return env
}

// Open locates an existing session and ensures its agent PTY is live,
// spawning one if the daemon doesn't currently host it (e.g. after a
// daemon restart). Returns the up-to-date record.
func (m *Manager) Open(branch, projectPath string) (*store.Record, error) {
	sessionID, rec, err := m.findByBranch(branch, projectPath)
	if err != nil {
		return nil, err
	}

	if len(rec.Agents) == 0 || !m.host.IsRunning(rec.Agents[0].SpawnID) {
		agent := AgentKind(firstAgentKind(rec))
		if !agent.Valid() {
			agent = AgentClaude
		}
		spawnID := sessionID
		if err := m.host.Spawn(spawnID, ptyhost.SpawnOptions{
			Command: agent.Command(),
			Dir:     rec.WorktreePath,
			Env:     sessionEnv(sessionID, rec.ProjectID, rec.Branch, string(agent)),
		}); err != nil {
			return nil, newError(CodePTYSpawnFailed, "Open", err)
		}
	}

	box := dropbox.Open(rec.ProjectID, rec.Branch, sessionID)
	_ = box.Ensure(true)

	return rec, nil
}

func firstAgentKind(rec *store.Record) string {
	if len(rec.Agents) == 0 {
		return ""
	}
	return rec.Agents[0].Kind
}

// Stop sends SIGTERM (escalating to SIGKILL after
// GracefulShutdownTimeout) to the session's agent process and marks the
// record stopped, while retaining it for a later Open/Destroy.
func (m *Manager) Stop(branch, projectPath string) error {
	sessionID, rec, err := m.findByBranch(branch, projectPath)
	if err != nil {
		return err
	}

	for _, a := range rec.Agents {
		_ = m.host.Kill(a.SpawnID)
	}

	_, err = m.store.Update(sessionID, func(r *store.Record) error {
		r.Status = store.StatusStopped
		return nil
	})
	return err
}

// Destroy removes the worktree (refusing unless force when there are
// uncommitted changes), deletes the store record, and cleans up the
// dropbox directory.
func (m *Manager) Destroy(branch, projectPath string, force bool) error {
	sessionID, rec, err := m.findByBranch(branch, projectPath)
	if err != nil {
		return err
	}

	repo := gitwt.Open(projectPath)
	if !force {
		dirty, derr := repo.HasUncommittedChanges(rec.WorktreePath)
		if derr == nil && dirty {
			return newError(CodeUncommittedChanges, "Destroy", fmt.Errorf("worktree %s has uncommitted changes", rec.WorktreePath))
		}
	}

	for _, a := range rec.Agents {
		_ = m.host.Kill(a.SpawnID)
	}

	if err := repo.WorktreeRemove(rec.WorktreePath, force); err != nil {
		return newError(CodeWorktreeFailed, "Destroy", err)
	}

	box := dropbox.Open(rec.ProjectID, rec.Branch, sessionID)
	_ = box.Cleanup()

	if err := m.store.Delete(sessionID); err != nil {
		return newError(CodeSessionNotFound, "Destroy", err)
	}
	return nil
}

// Complete marks a session completed without removing its worktree or
// record, so it remains available for audit.
func (m *Manager) Complete(branch, projectPath string, force bool) error {
	sessionID, rec, err := m.findByBranch(branch, projectPath)
	if err != nil {
		return err
	}

	repo := gitwt.Open(projectPath)
	if !force {
		dirty, derr := repo.HasUncommittedChanges(rec.WorktreePath)
		if derr == nil && dirty {
			return newError(CodeUncommittedChanges, "Complete", fmt.Errorf("worktree %s has uncommitted changes", rec.WorktreePath))
		}
	}

	for _, a := range rec.Agents {
		_ = m.host.Kill(a.SpawnID)
	}

	_, err = m.store.Update(sessionID, func(r *store.Record) error {
		r.Status = store.StatusCompleted
		return nil
	})
	return err
}

// Refresh re-scans the store and returns every known session.
func (m *Manager) Refresh() ([]store.Entry, error) {
	return m.store.List()
}

func (m *Manager) findByBranch(branch, projectPath string) (sessionID string, rec *store.Record, err error) {
	projectID, perr := paths.ProjectID(projectPath)
	if perr != nil {
		return "", nil, newError(CodeNotARepo, "findByBranch", perr)
	}
	sessionID = paths.SessionID(projectID, branch)
	rec, err = m.store.Get(sessionID)
	if err != nil {
		return "", nil, newError(CodeSessionNotFound, "findByBranch", err)
	}
	return sessionID, rec, nil
}
