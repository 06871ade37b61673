// Package fleet installs fleet-integration hooks into an agent's own
// config file inside a session's worktree: JSON for claude, TOML for
// codex/opencode. Every installer fills in only missing or empty
// values, never clobbering something the user already configured.
//
// Grounded on the teacher's internal/hooks/config.go raw-map
// round-trip-preservation pattern (Extra map[string]json.RawMessage),
// generalized from a single Claude Code settings.json writer into a
// dispatcher across the spec's closed agent-kind set.
package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Install writes or patches the fleet-integration hook configuration
// for agentCommand inside worktreePath. Unknown agent commands are a
// no-op (not every agent kind has a hook mechanism kild understands).
func Install(agentCommand, worktreePath string) error {
	switch agentCommand {
	case "claude":
		return EnsureClaude(worktreePath)
	case "codex":
		return EnsureCodex(worktreePath)
	case "opencode":
		return EnsureOpenCode(worktreePath)
	default:
		return nil
	}
}

// --- Claude: JSON settings.json -----------------------------------------

type claudeHookEntry struct {
	Matcher string       `json:"matcher"`
	Hooks   []claudeHook `json:"hooks"`
}

type claudeHook struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type claudeHooks struct {
	SessionStart []claudeHookEntry `json:"SessionStart,omitempty"`
	Stop         []claudeHookEntry `json:"Stop,omitempty"`
}

// EnsureClaude patches <worktree>/.claude/settings.json, preserving
// every unrecognized top-level field via a raw-map round trip the same
// way the teacher's hooks.SettingsJSON does, and filling in the
// SessionStart/Stop hook entries only if they are missing or empty.
func EnsureClaude(worktreePath string) error {
	path := filepath.Join(worktreePath, ".claude", "settings.json")
	extra, err := loadRawJSON(path)
	if err != nil {
		return fmt.Errorf("fleet: loading %s: %w", path, err)
	}

	var existing claudeHooks
	if raw, ok := extra["hooks"]; ok {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("fleet: parsing existing hooks in %s: %w", path, err)
		}
	}

	changed := false
	if len(existing.SessionStart) == 0 {
		existing.SessionStart = []claudeHookEntry{sessionStartHook()}
		changed = true
	}
	if len(existing.Stop) == 0 {
		existing.Stop = []claudeHookEntry{stopHook()}
		changed = true
	}
	if !changed {
		return nil
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	extra["hooks"] = raw

	return writeRawJSON(path, extra)
}

func sessionStartHook() claudeHookEntry {
	return claudeHookEntry{
		Matcher: "*",
		Hooks:   []claudeHook{{Type: "command", Command: "kild agent-status --self working"}},
	}
}

func stopHook() claudeHookEntry {
	return claudeHookEntry{
		Matcher: "*",
		Hooks:   []claudeHook{{Type: "command", Command: "kild agent-status --self idle --notify"}},
	}
}

func loadRawJSON(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("malformed settings json, refusing to clobber: %w", err)
	}
	if extra == nil {
		extra = make(map[string]json.RawMessage)
	}
	return extra, nil
}

func writeRawJSON(path string, extra map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(extra, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// --- Codex / OpenCode: TOML config.toml ---------------------------------

// EnsureCodex patches <worktree>/.codex/config.toml's `notify` command
// array, only if it is currently absent, preserving every other key
// through toml.Primitive side-channel decoding.
func EnsureCodex(worktreePath string) error {
	return ensureTomlNotify(filepath.Join(worktreePath, ".codex", "config.toml"), []string{"kild", "agent-status", "--self", "idle", "--notify"})
}

// EnsureOpenCode patches <worktree>/.opencode/config.toml the same way.
func EnsureOpenCode(worktreePath string) error {
	return ensureTomlNotify(filepath.Join(worktreePath, ".opencode", "config.toml"), []string{"kild", "agent-status", "--self", "idle", "--notify"})
}

func ensureTomlNotify(path string, notifyCmd []string) error {
	raw := map[string]toml.Primitive{}
	if data, err := os.ReadFile(path); err == nil {
		if _, derr := toml.Decode(string(data), &raw); derr != nil {
			return fmt.Errorf("fleet: malformed toml %s, refusing to clobber: %w", path, derr)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if _, exists := raw["notify"]; exists {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(struct {
		Notify []string `toml:"notify"`
	}{Notify: notifyCmd})
}
