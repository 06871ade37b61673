package terminal

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.AmericanEnglish)

// AgentLabel renders an AgentKind value ("codex", "opencode") as the
// display string shown in window titles and status lines ("Codex",
// "Opencode") without hardcoding a per-kind lookup table that would need
// updating every time a new agent kind lands.
func AgentLabel(kind string) string {
	return titleCaser.String(kind)
}

// StatusLabel renders a session/agent status value ("waiting") as the
// display string shown in list/status output ("Waiting").
func StatusLabel(status string) string {
	return titleCaser.String(status)
}
