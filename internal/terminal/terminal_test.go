package terminal

import "testing"

func TestNewRegistryIncludesBuiltins(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("terminal"); !ok {
		t.Fatal("expected built-in terminal backend to be registered")
	}
	if _, ok := r.Get("iterm"); !ok {
		t.Fatal("expected iterm backend to be registered even when unavailable")
	}
	if _, ok := r.Get("ghostty"); !ok {
		t.Fatal("expected ghostty backend to be registered even when unavailable")
	}
}

func TestPlainBackendAlwaysAvailable(t *testing.T) {
	r := NewRegistry()
	available := r.Available()
	found := false
	for _, name := range available {
		if name == "terminal" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Available() = %v, want it to include \"terminal\"", available)
	}
}

func TestGhosttyBackendReportsUnavailable(t *testing.T) {
	r := NewRegistry()
	b, ok := r.Get("ghostty")
	if !ok {
		t.Fatal("expected ghostty to be registered")
	}
	if b.IsAvailable() {
		t.Fatal("expected ghostty to report unavailable until a real IPC contract exists")
	}
}

func TestRegisterOverridesByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&plainBackend{})
	if _, ok := r.Get("terminal"); !ok {
		t.Fatal("expected re-registered backend to still be retrievable")
	}
}

func TestAgentLabelTitleCases(t *testing.T) {
	want := map[string]string{
		"codex":    "Codex",
		"opencode": "Opencode",
		"claude":   "Claude",
	}
	for in, expected := range want {
		if got := AgentLabel(in); got != expected {
			t.Errorf("AgentLabel(%q) = %q, want %q", in, got, expected)
		}
	}
}

func TestStatusLabelTitleCases(t *testing.T) {
	if got := StatusLabel("waiting"); got != "Waiting" {
		t.Errorf("StatusLabel(waiting) = %q, want Waiting", got)
	}
}
