package dropbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Wirasm/kild/internal/paths"
)

func withFleetEnabled(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("KILD_HOME", root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(paths.FleetMarkerPath(), []byte{}, 0o644); err != nil {
		t.Fatalf("WriteFile marker: %v", err)
	}
}

func TestEnsureIsNoopWhenFleetDisabled(t *testing.T) {
	t.Setenv("KILD_HOME", t.TempDir())
	b := Open("proj1", "feat/x", "proj1/feat/x")
	if err := b.Ensure(true); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := os.Stat(b.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected dropbox dir to not be created, stat err = %v", err)
	}
}

func TestEnsureWritesProtocolWhenFleetEnabled(t *testing.T) {
	withFleetEnabled(t)
	b := Open("proj1", "feat/x", "proj1/feat/x")
	if err := b.Ensure(true); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(b.Dir(), "protocol.md"))
	if err != nil {
		t.Fatalf("ReadFile protocol.md: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("protocol.md is empty")
	}
}

func TestWriteTaskIncrementsIDAndAppendsHistory(t *testing.T) {
	withFleetEnabled(t)
	b := Open("proj1", "feat/x", "proj1/feat/x")
	if err := b.Ensure(true); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	id1, err := b.WriteTask("brain", "worker", "do the thing\nwith detail", []string{"dropbox"})
	if err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	if id1 != 1 {
		t.Fatalf("first task id = %d, want 1", id1)
	}

	id2, err := b.WriteTask("brain", "worker", "second task", []string{"dropbox"})
	if err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	if id2 != 2 {
		t.Fatalf("second task id = %d, want 2", id2)
	}

	taskBody, err := os.ReadFile(filepath.Join(b.Dir(), "task.md"))
	if err != nil {
		t.Fatalf("ReadFile task.md: %v", err)
	}
	if string(taskBody) != "# Task 2\n\nsecond task\n" {
		t.Fatalf("task.md = %q", taskBody)
	}

	history, err := b.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].TaskID != 1 || history[1].TaskID != 2 {
		t.Fatalf("history ordering wrong: %+v", history)
	}
	if history[0].Summary != "do the thing" {
		t.Fatalf("Summary = %q, want %q", history[0].Summary, "do the thing")
	}
	if history[0].Dir != "in" || history[1].Dir != "in" {
		t.Fatalf("Dir = %+v, want \"in\" for both entries", history)
	}
	if len(history[0].Delivery) != 1 || history[0].Delivery[0] != "dropbox" {
		t.Fatalf("Delivery = %v, want [\"dropbox\"]", history[0].Delivery)
	}
}

func TestWriteTaskNotApplicableWhenDirMissing(t *testing.T) {
	t.Setenv("KILD_HOME", t.TempDir())
	b := Open("proj1", "feat/x", "proj1/feat/x")
	if _, err := b.WriteTask("brain", "worker", "do the thing", []string{"dropbox"}); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("WriteTask err = %v, want ErrNotApplicable", err)
	}
	if _, statErr := os.Stat(b.Dir()); !os.IsNotExist(statErr) {
		t.Fatalf("expected dropbox dir to remain absent, stat err = %v", statErr)
	}
}

func TestAckAndWriteReport(t *testing.T) {
	withFleetEnabled(t)
	b := Open("proj1", "feat/x", "proj1/feat/x")
	if err := b.Ensure(true); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := b.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.Dir(), "ack")); err != nil {
		t.Fatalf("expected ack file: %v", err)
	}
	if err := b.WriteReport("all done"); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(b.Dir(), "report.md"))
	if err != nil {
		t.Fatalf("ReadFile report.md: %v", err)
	}
	if string(data) != "all done" {
		t.Fatalf("report.md = %q", data)
	}
}

func TestCleanupRemovesDirectory(t *testing.T) {
	withFleetEnabled(t)
	b := Open("proj1", "feat/x", "proj1/feat/x")
	if err := b.Ensure(true); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := b.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(b.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected dropbox dir removed, stat err = %v", err)
	}
}
