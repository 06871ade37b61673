// Package config persists kild's user-level preferences: the default
// agent kind, CLI color theme, and preferred terminal backend. Every
// other config concern the teacher's internal/config carries (town
// identity, per-rig settings, daemon patrol windows, escalation
// policy) has no kild analogue — kild has one user, one set of
// sessions, no rigs/crews — so only this narrow leaf survives; see
// DESIGN.md for the rest of that package's disposition.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Wirasm/kild/internal/paths"
)

// CurrentVersion is written into every saved config file.
const CurrentVersion = 1

// Config is kild's user-level preference file, stored at
// <root>/config.json.
type Config struct {
	Version                  int    `json:"version"`
	DefaultAgent             string `json:"default_agent,omitempty"`
	CLITheme                 string `json:"cli_theme,omitempty"`
	PreferredTerminalBackend string `json:"preferred_terminal_backend,omitempty"`
}

// Path returns the on-disk location of the config file.
func Path() string {
	return filepath.Join(paths.Root(), "config.json")
}

// Load reads the config file, returning a Config with no preferences set
// (only Version filled in), not an error, if it doesn't exist yet — a fresh install has no preferences
// recorded and that's a valid, common state, not a fault.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config file at an explicit path (used by tests).
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Version: CurrentVersion}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config file atomically (temp file + rename), the
// same pattern internal/store uses for session records.
func Save(cfg *Config) error {
	return SaveTo(Path(), cfg)
}

// SaveTo writes the config file at an explicit path (used by tests).
func SaveTo(path string, cfg *Config) error {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
