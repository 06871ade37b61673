package ptyhost

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSpawnWriteAndReceiveOutput(t *testing.T) {
	h := New(4096)
	err := h.Spawn("s1", SpawnOptions{Command: "/bin/cat", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	_, ch, err := h.Attach("s1", "sub1")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := h.Write("s1", []byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case chunk, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before any output")
		}
		if !strings.Contains(string(chunk.Data), "hello") {
			t.Fatalf("chunk = %q, want to contain %q", chunk.Data, "hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}

	if err := h.Kill("s1"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
}

func TestSpawnDuplicateIDRejected(t *testing.T) {
	h := New(4096)
	if err := h.Spawn("dup", SpawnOptions{Command: "/bin/cat"}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Kill("dup")

	if err := h.Spawn("dup", SpawnOptions{Command: "/bin/cat"}); err == nil {
		t.Fatal("expected duplicate spawn id to be rejected")
	}
}

func TestAttachUnknownSpawnReturnsErrNotFound(t *testing.T) {
	h := New(4096)
	if _, _, err := h.Attach("missing", "sub1"); err != ErrNotFound {
		t.Fatalf("Attach: got %v, want ErrNotFound", err)
	}
}

func TestKillTerminatesAndMarksExited(t *testing.T) {
	h := New(4096)
	if err := h.Spawn("s2", SpawnOptions{Command: "/bin/sh", Args: []string{"-c", "sleep 30"}}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := h.Kill("s2"); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	if h.IsRunning("s2") {
		t.Fatal("expected session to be reported as not running after Kill")
	}
	if _, _, ok := h.ExitStatus("s2"); !ok {
		t.Fatal("expected ExitStatus to be known after Kill")
	}
}

func TestShutdownTerminatesAllSessions(t *testing.T) {
	h := New(4096)
	for _, id := range []string{"a", "b", "c"} {
		if err := h.Spawn(id, SpawnOptions{Command: "/bin/cat"}); err != nil {
			t.Fatalf("Spawn(%s): %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	h.Shutdown(ctx)

	for _, id := range []string{"a", "b", "c"} {
		if h.IsRunning(id) {
			t.Fatalf("session %s still running after Shutdown", id)
		}
	}
}

func TestBuildSpawnEnvStripsClaudeCodeVar(t *testing.T) {
	t.Setenv("CLAUDECODE", "1")
	env := buildSpawnEnv([]string{"KILD_SESSION_ID=abc"})
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			t.Fatalf("CLAUDECODE leaked into spawn env: %v", env)
		}
	}
	var sawOverlay bool
	for _, kv := range env {
		if kv == "KILD_SESSION_ID=abc" {
			sawOverlay = true
		}
	}
	if !sawOverlay {
		t.Fatal("overlay var missing from spawn env")
	}
}
