// Package store persists session records as one JSON file per session,
// under advisory file locks, with atomic read-modify-write semantics.
//
// Grounded on the teacher's internal/util.AtomicWriteFile (temp file +
// rename) and internal/crew.lockCrew (gofrs/flock per-resource exclusive
// lock held across a mutation).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/Wirasm/kild/internal/paths"
)

// CurrentSchemaVersion is written into every new record.
const CurrentSchemaVersion = 1

// AgentStatus is the closed state-machine status of one agent within a
// session. See Record.Agents.
type AgentStatus string

const (
	AgentWorking AgentStatus = "working"
	AgentIdle    AgentStatus = "idle"
	AgentWaiting AgentStatus = "waiting"
	AgentError   AgentStatus = "error"
	AgentDone    AgentStatus = "done"
)

// SessionStatus is the closed lifecycle status of a session record.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusStopped   SessionStatus = "stopped"
	StatusDestroyed SessionStatus = "destroyed"
	StatusCompleted SessionStatus = "completed"
)

// Agent captures one agent process's identity and observed liveness
// triple (pid, name, start-time): a PID alone is never authoritative, it
// is paired with process name and start time to guard against PID reuse.
type Agent struct {
	Kind             string      `json:"kind"`
	SpawnID          string      `json:"spawn_id"`
	PID              *int        `json:"pid"`
	ProcessName      *string     `json:"process_name"`
	ProcessStartTime *uint64     `json:"process_start_time"`
	WindowID         *string     `json:"window_id"`
	Status           AgentStatus `json:"status"`
	LastActivity     *time.Time  `json:"last_activity"`
}

// Record is the durable, on-disk representation of one session.
type Record struct {
	Version        int           `json:"version"`
	ID             string        `json:"id"`
	ProjectID      string        `json:"project_id"`
	Branch         string        `json:"branch"`
	WorktreePath   string        `json:"worktree_path"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivity   time.Time     `json:"last_activity,omitempty"`
	Agents         []Agent       `json:"agents"`
	Note           *string       `json:"note,omitempty"`
	InitialPrompt  *string       `json:"initial_prompt,omitempty"`
	PRMetadataJSON json.RawMessage `json:"pr_metadata,omitempty"`
	FleetMember    bool          `json:"fleet_member,omitempty"`
	Degraded       bool          `json:"degraded,omitempty"`

	// extra preserves unknown top-level fields across read-modify-write
	// cycles, the same way the teacher's hooks.SettingsJSON.Extra does.
	extra map[string]json.RawMessage `json:"-"`
}

// Entry is one element of a List() result: either a successfully loaded
// Record, or a load_error describing why a file could not be parsed.
type Entry struct {
	Record    *Record
	LoadError string
}

var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")
)

// Store manages the on-disk session records directory.
type Store struct {
	dir string
}

// New creates a Store rooted at paths.SessionsDir().
func New() *Store {
	return &Store{dir: paths.SessionsDir()}
}

// NewAt creates a Store rooted at an explicit directory (used by tests).
func NewAt(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, paths.EncodeSessionID(sessionID)+".json")
}

func (s *Store) lockPath(sessionID string) string {
	return s.path(sessionID) + ".lock"
}

// List returns every session record found in the store directory.
// Corrupt files never panic or silently vanish: they're reported as
// Entries with a LoadError and an absent Record.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}

	var out []Entry
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			out = append(out, Entry{LoadError: fmt.Sprintf("reading %s: %v", name, err)})
			continue
		}
		rec, err := decode(data)
		if err != nil {
			out = append(out, Entry{LoadError: fmt.Sprintf("parsing %s: %v", name, err)})
			continue
		}
		markDegradedIfMissing(rec)
		out = append(out, Entry{Record: rec})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Record == nil || out[j].Record == nil {
			return false
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out, nil
}

// markDegradedIfMissing sets Degraded when the session's worktree has
// vanished out from under it (invariant 1 in spec.md §3: a session exists
// on disk iff its worktree exists, modulo in-flight create/destroy — a
// missing worktree is flagged, never silently deleted).
func markDegradedIfMissing(rec *Record) {
	if rec.Status == StatusDestroyed || rec.Status == StatusCompleted {
		return
	}
	if rec.WorktreePath == "" {
		return
	}
	if _, err := os.Stat(rec.WorktreePath); err != nil {
		rec.Degraded = true
	}
}

// Get returns the record for the given logical SessionId.
func (s *Store) Get(sessionID string) (*Record, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sessionID, err)
	}
	markDegradedIfMissing(rec)
	return rec, nil
}

// Insert creates a new session record. Returns ErrAlreadyExists if a
// record with the same ID already exists on disk.
func (s *Store) Insert(rec *Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}

	fl := flock.New(s.lockPath(rec.ID))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", rec.ID, err)
	}
	defer func() { _ = fl.Unlock() }()

	if _, err := os.Stat(s.path(rec.ID)); err == nil {
		return ErrAlreadyExists
	}

	if rec.Version == 0 {
		rec.Version = CurrentSchemaVersion
	}
	return atomicWrite(s.path(rec.ID), rec)
}

// Update performs a read-modify-write cycle on a session record under an
// exclusive advisory lock: the lock file is the record's own file lock
// sibling, acquired before the read so every writer observes the latest
// on-disk state before mutating.
func (s *Store) Update(sessionID string, fn func(rec *Record) error) (*Record, error) {
	fl := flock.New(s.lockPath(sessionID))
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring lock for %s: %w", sessionID, err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sessionID, err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	if err := atomicWrite(s.path(sessionID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a session's on-disk record (and its lock sibling).
func (s *Store) Delete(sessionID string) error {
	fl := flock.New(s.lockPath(sessionID))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", sessionID, err)
	}
	defer func() {
		_ = fl.Unlock()
		_ = os.Remove(s.lockPath(sessionID))
	}()

	if err := os.Remove(s.path(sessionID)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// decode parses a session record, stashing any unrecognized top-level
// fields in Record.extra so a later Update/atomicWrite round-trips them.
func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, known := range knownFields {
		delete(raw, known)
	}
	rec.extra = raw
	return &rec, nil
}

var knownFields = []string{
	"version", "id", "project_id", "branch", "worktree_path", "status",
	"created_at", "last_activity", "agents", "note", "initial_prompt",
	"pr_metadata", "fleet_member", "degraded",
}

// atomicWrite serializes rec (merging back any preserved unknown fields)
// to a temp file in the same directory, fsyncs, and renames over the
// target — the same pattern as the teacher's util.AtomicWriteFile. No
// pack-library writes forward-compatible JSON atomically; see DESIGN.md.
func atomicWrite(path string, rec *Record) error {
	merged := map[string]json.RawMessage{}
	for k, v := range rec.extra {
		merged[k] = v
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(body, &knownMap); err != nil {
		return err
	}
	for k, v := range knownMap {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling merged record: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
