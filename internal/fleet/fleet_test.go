package fleet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestEnsureClaudeCreatesSettingsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureClaude(dir); err != nil {
		t.Fatalf("EnsureClaude: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".claude", "settings.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := extra["hooks"]; !ok {
		t.Fatal("expected hooks key to be written")
	}
}

func TestEnsureClaudePreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, ".claude", "settings.json")
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(settingsPath, []byte(`{"editorMode": "vim", "customThing": 42}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := EnsureClaude(dir); err != nil {
		t.Fatalf("EnsureClaude: %v", err)
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(extra["editorMode"]) != `"vim"` {
		t.Fatalf("editorMode = %s, want preserved", extra["editorMode"])
	}
	if string(extra["customThing"]) != "42" {
		t.Fatalf("customThing = %s, want preserved", extra["customThing"])
	}
}

func TestEnsureClaudeDoesNotClobberExistingHooks(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, ".claude", "settings.json")
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	custom := `{"hooks": {"SessionStart": [{"matcher": "*", "hooks": [{"type": "command", "command": "my-own-hook"}]}]}}`
	if err := os.WriteFile(settingsPath, []byte(custom), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := EnsureClaude(dir); err != nil {
		t.Fatalf("EnsureClaude: %v", err)
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var hooks claudeHooks
	if err := json.Unmarshal(extra["hooks"], &hooks); err != nil {
		t.Fatalf("Unmarshal hooks: %v", err)
	}
	if len(hooks.SessionStart) != 1 || hooks.SessionStart[0].Hooks[0].Command != "my-own-hook" {
		t.Fatalf("existing SessionStart hook was clobbered: %+v", hooks.SessionStart)
	}
	if len(hooks.Stop) != 1 {
		t.Fatalf("expected Stop hook to be filled in since it was missing: %+v", hooks.Stop)
	}
}

func TestEnsureClaudeRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, ".claude", "settings.json")
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(settingsPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := EnsureClaude(dir); err == nil {
		t.Fatal("expected EnsureClaude to reject malformed settings.json rather than clobber it")
	}
}

func TestEnsureCodexAddsNotifyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureCodex(dir); err != nil {
		t.Fatalf("EnsureCodex: %v", err)
	}

	var raw map[string]toml.Primitive
	data, err := os.ReadFile(filepath.Join(dir, ".codex", "config.toml"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := raw["notify"]; !ok {
		t.Fatal("expected notify key to be written")
	}
}

func TestEnsureCodexPreservesExistingNotify(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".codex", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	original := "notify = [\"my-own-notifier\"]\nmodel = \"gpt\"\n"
	if err := os.WriteFile(configPath, []byte(original), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := EnsureCodex(dir); err != nil {
		t.Fatalf("EnsureCodex: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != original {
		t.Fatalf("config.toml was modified despite existing notify key: %s", data)
	}
}

func TestInstallIsNoopForUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	if err := Install("gemini", dir); err != nil {
		t.Fatalf("Install: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files written for an agent kind fleet doesn't hook, got %v", entries)
	}
}
