// Package ptyhost is the daemon-side owner of PTY master/child pairs:
// one goroutine blocks reading each PTY, fanning output to a scrollback
// ring and to attached subscriber channels, while writes and resizes are
// serialized through the session's own mutex.
//
// Grounded on other_examples' victorarias-attn internal/pty.Manager
// (spawn/env-build/reader-loop/reaper shape) and chriswa-spaceterm's PTY
// daemon session (ring-buffer-backed replay on attach). The teacher
// itself never owns a PTY directly — it multiplexes through tmux — so
// this package departs from the teacher's concurrency idiom only to the
// extent the domain (direct PTY ownership, not tmux) requires.
package ptyhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/Wirasm/kild/internal/scrollback"
)

// ErrNotFound is returned when a SpawnId has no live or recently-exited
// session.
var ErrNotFound = errors.New("pty: session not found")

// ExitGracePeriod is how long a ptySession's scrollback and exit status
// remain queryable after the child exits, so a client reconnecting
// shortly after exit can still replay final output.
const ExitGracePeriod = 2 * time.Minute

// GracefulShutdownTimeout bounds how long Kill waits for SIGTERM before
// escalating to SIGKILL.
const GracefulShutdownTimeout = 10 * time.Second

const subscriberChannelCapacity = 64

// SpawnOptions configures a new PTY-hosted child process.
type SpawnOptions struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // additional KILD_* vars, merged over a stripped os.Environ()
	Cols    uint16
	Rows    uint16
}

// Chunk is one unit of PTY output delivered to a subscriber.
type Chunk struct {
	Data []byte
}

// ExitInfo describes how a hosted child exited.
type ExitInfo struct {
	SpawnID  string
	ExitCode int
	Signal   string
}

type subscriber struct {
	ch chan Chunk
}

type ptySession struct {
	id  string
	mu  sync.Mutex // guards ptmx writes and subscriber map mutation
	ptmx *os.File
	cmd  *exec.Cmd

	scrollback *scrollback.Ring

	subs map[string]*subscriber

	running   bool
	exitCode  int
	exitSig   string
	exitedAt  time.Time
	exited    chan struct{}
}

// Host owns every active (and recently-exited, within ExitGracePeriod)
// PTY session.
type Host struct {
	mu       sync.RWMutex
	sessions map[string]*ptySession

	onExit func(ExitInfo)

	scrollbackCap int
}

// New creates a Host. scrollbackCap bounds each session's replay buffer.
func New(scrollbackCap int) *Host {
	if scrollbackCap <= 0 {
		scrollbackCap = 1 << 20
	}
	return &Host{
		sessions:      make(map[string]*ptySession),
		scrollbackCap: scrollbackCap,
	}
}

// SetExitHandler installs a callback invoked once per session when its
// child process exits.
func (h *Host) SetExitHandler(fn func(ExitInfo)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onExit = fn
}

// Spawn starts a new PTY-hosted child and begins its reader goroutine.
func (h *Host) Spawn(spawnID string, opts SpawnOptions) error {
	if spawnID == "" {
		return errors.New("ptyhost: spawn id required")
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}

	h.mu.Lock()
	if _, exists := h.sessions[spawnID]; exists {
		h.mu.Unlock()
		return fmt.Errorf("ptyhost: spawn %s already exists", spawnID)
	}
	h.mu.Unlock()

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = buildSpawnEnv(opts.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return fmt.Errorf("ptyhost: spawning %s: %w", spawnID, err)
	}

	ring, err := scrollback.NewRing(h.scrollbackCap)
	if err != nil {
		_ = ptmx.Close()
		return fmt.Errorf("ptyhost: allocating scrollback: %w", err)
	}

	sess := &ptySession{
		id:         spawnID,
		ptmx:       ptmx,
		cmd:        cmd,
		scrollback: ring,
		subs:       make(map[string]*subscriber),
		running:    true,
		exited:     make(chan struct{}),
	}

	h.mu.Lock()
	h.sessions[spawnID] = sess
	h.mu.Unlock()

	go h.readLoop(sess)
	go h.reap(sess)

	return nil
}

// buildSpawnEnv starts from the daemon's own environment, strips
// CLAUDECODE so a nested agent never believes it is running inside an
// existing Claude Code session, and merges in the caller-supplied
// KILD_* overlay.
func buildSpawnEnv(overlay []string) []string {
	base := os.Environ()
	filtered := make([]string, 0, len(base))
	for _, kv := range base {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		filtered = append(filtered, kv)
	}
	return mergeEnv(filtered, overlay)
}

func mergeEnv(base, overlay []string) []string {
	if len(overlay) == 0 {
		return base
	}
	index := make(map[string]int, len(base))
	out := append([]string(nil), base...)
	for i, kv := range out {
		if k, _, ok := strings.Cut(kv, "="); ok {
			index[k] = i
		}
	}
	for _, kv := range overlay {
		k, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if i, exists := index[k]; exists {
			out[i] = kv
			continue
		}
		index[k] = len(out)
		out = append(out, kv)
	}
	return out
}

func (h *Host) readLoop(sess *ptySession) {
	buf := make([]byte, 32*1024)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sess.scrollback.Push(chunk)
			h.broadcast(sess, chunk)
		}
		if err != nil {
			return
		}
	}
}

func (h *Host) broadcast(sess *ptySession, data []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, sub := range sess.subs {
		select {
		case sub.ch <- Chunk{Data: data}:
		default:
			// Subscriber is slow: drop its oldest queued chunk rather
			// than block the broadcaster, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- Chunk{Data: data}:
			default:
			}
		}
	}
}

func (h *Host) reap(sess *ptySession) {
	err := sess.cmd.Wait()

	exitCode := 0
	signal := ""
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if status.Signaled() {
					signal = status.Signal().String()
					exitCode = 128 + int(status.Signal())
				} else {
					exitCode = status.ExitStatus()
				}
			} else {
				exitCode = exitErr.ExitCode()
			}
		} else {
			exitCode = -1
		}
	}

	sess.mu.Lock()
	sess.running = false
	sess.exitCode = exitCode
	sess.exitSig = signal
	sess.exitedAt = time.Now()
	for id, sub := range sess.subs {
		close(sub.ch)
		delete(sess.subs, id)
	}
	sess.mu.Unlock()
	close(sess.exited)

	_ = sess.ptmx.Close()

	h.mu.RLock()
	onExit := h.onExit
	h.mu.RUnlock()
	if onExit != nil {
		onExit(ExitInfo{SpawnID: sess.id, ExitCode: exitCode, Signal: signal})
	}

	// Give reconnecting clients a window to replay final scrollback
	// before the session is forgotten entirely.
	time.AfterFunc(ExitGracePeriod, func() {
		h.mu.Lock()
		if cur, ok := h.sessions[sess.id]; ok && cur == sess {
			delete(h.sessions, sess.id)
		}
		h.mu.Unlock()
	})
}

func (h *Host) get(spawnID string) (*ptySession, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[spawnID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Attach registers subscriberID on spawnID and returns current
// scrollback for synchronous replay alongside the channel future output
// arrives on.
func (h *Host) Attach(spawnID, subscriberID string) (scrollbackBytes []byte, ch <-chan Chunk, err error) {
	sess, err := h.get(spawnID)
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{ch: make(chan Chunk, subscriberChannelCapacity)}

	sess.mu.Lock()
	sess.subs[subscriberID] = sub
	sess.mu.Unlock()

	return sess.scrollback.Contents(), sub.ch, nil
}

// Detach removes subscriberID from spawnID, closing its channel.
func (h *Host) Detach(spawnID, subscriberID string) error {
	sess, err := h.get(spawnID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sub, ok := sess.subs[subscriberID]; ok {
		close(sub.ch)
		delete(sess.subs, subscriberID)
	}
	return nil
}

// Write sends data to the child's stdin.
func (h *Host) Write(spawnID string, data []byte) error {
	sess, err := h.get(spawnID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.running {
		return fmt.Errorf("ptyhost: %s has exited", spawnID)
	}
	_, werr := sess.ptmx.Write(data)
	return werr
}

// Resize changes the PTY window size.
func (h *Host) Resize(spawnID string, cols, rows uint16) error {
	sess, err := h.get(spawnID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return pty.Setsize(sess.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill signals the child, escalating from SIGTERM to SIGKILL after
// GracefulShutdownTimeout if it hasn't exited.
func (h *Host) Kill(spawnID string) error {
	sess, err := h.get(spawnID)
	if err != nil {
		return err
	}

	if sess.cmd.Process != nil {
		_ = sess.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-sess.exited:
		return nil
	case <-time.After(GracefulShutdownTimeout):
	}

	if sess.cmd.Process != nil {
		_ = sess.cmd.Process.Signal(syscall.SIGKILL)
	}
	<-sess.exited
	return nil
}

// IsRunning reports whether spawnID's child process is still alive.
func (h *Host) IsRunning(spawnID string) bool {
	sess, err := h.get(spawnID)
	if err != nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.running
}

// ExitStatus returns the exit code/signal for a session that has
// already exited, ok=false if it is still running or unknown.
func (h *Host) ExitStatus(spawnID string) (code int, signal string, ok bool) {
	sess, err := h.get(spawnID)
	if err != nil {
		return 0, "", false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return 0, "", false
	}
	return sess.exitCode, sess.exitSig, true
}

// Shutdown terminates every hosted child, waiting up to ctx's deadline
// per-session before escalating, then closes all subscriber channels.
func (h *Host) Shutdown(ctx context.Context) {
	h.mu.RLock()
	sessions := make([]*ptySession, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *ptySession) {
			defer wg.Done()
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Signal(syscall.SIGTERM)
			}
			select {
			case <-s.exited:
			case <-ctx.Done():
				if s.cmd.Process != nil {
					_ = s.cmd.Process.Signal(syscall.SIGKILL)
				}
				<-s.exited
			}
		}(sess)
	}
	wg.Wait()
}
