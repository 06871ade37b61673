// Package daemon wires internal/store, internal/ptyhost, and
// internal/lifecycle into the protocol server kildd runs: one goroutine
// per client connection, dispatching each frame to the store/host/
// lifecycle call that answers it, writing back an Ack/Error/stream of
// PtyOutput frames.
//
// Grounded on the teacher's internal/polecat's per-session goroutine
// ownership model, generalized from tmux panes to PTY subscriber
// channels, and on internal/protocol's own synchronous-request /
// streaming-attach split (C3).
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/Wirasm/kild/internal/dispatch"
	"github.com/Wirasm/kild/internal/lifecycle"
	"github.com/Wirasm/kild/internal/paths"
	"github.com/Wirasm/kild/internal/protocol"
	"github.com/Wirasm/kild/internal/ptyhost"
	"github.com/Wirasm/kild/internal/store"
)

// Server accepts client connections on a Unix domain socket and answers
// every request defined in internal/protocol.
type Server struct {
	store *store.Store
	host  *ptyhost.Host
	mgr   *lifecycle.Manager

	mu       sync.Mutex
	spawnID  map[string]string // branch -> most recently attached spawn_id
	listener net.Listener
}

// New creates a Server over a fresh store/host/manager triple rooted at
// internal/paths' resolved directories.
func New() *Server {
	host := ptyhost.New(4 * 1024 * 1024)
	st := store.New()
	mgr := lifecycle.New(st, host)
	s := &Server{store: st, host: host, mgr: mgr, spawnID: make(map[string]string)}
	host.SetExitHandler(s.onExit)
	return s
}

func (s *Server) onExit(info ptyhost.ExitInfo) {
	log.Printf("daemon: spawn %s exited code=%d signal=%s", info.SpawnID, info.ExitCode, info.Signal)
}

// ListenAndServe opens the daemon socket and serves connections until
// ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	sockPath := paths.SocketPath()
	_ = os.Remove(sockPath) // a prior unclean shutdown can leave a stale socket file behind
	if err := os.MkdirAll(paths.Root(), 0o755); err != nil {
		return fmt.Errorf("creating kild home: %w", err)
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", sockPath, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ptyhost.GracefulShutdownTimeout)
		defer cancel()
		s.host.Shutdown(shutdownCtx)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := protocol.NewReader(conn)
	w := protocol.NewWriter(conn)

	for {
		req, err := r.ReadEnvelope()
		if err != nil {
			return
		}

		switch req.Type {
		case protocol.TypePing:
			_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})

		case protocol.TypeCreateSession:
			s.handleCreate(w, req)

		case protocol.TypeOpenSession:
			s.handleOpen(w, req)

		case protocol.TypeDestroySession:
			s.handleDestroy(w, req)

		case protocol.TypeStopSession:
			s.handleStop(w, req)

		case protocol.TypeCompleteSession:
			s.handleComplete(w, req)

		case protocol.TypeListSessions:
			s.handleList(w, req)

		case protocol.TypeAttach:
			// Attach takes over the connection: it streams PtyOutput
			// frames until Detach, PtyExit, or the socket closes, so it
			// must be the last request handled on this connection.
			s.handleAttach(ctx, conn, r, w, req)
			return

		case protocol.TypeWriteStdin:
			s.handleWriteStdin(req)

		case protocol.TypeResizePty:
			s.handleResize(w, req)

		case protocol.TypeIsRunning:
			s.handleIsRunning(w, req)

		case protocol.TypeShutdown:
			_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
			return

		default:
			writeError(w, req.ID, string(protocol.CodeProtocolError), "unhandled frame type: "+string(req.Type))
		}
	}
}

func writeError(w *protocol.Writer, id, code, message string) {
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeError, ID: id, Code: code, Message: message})
}

func writeFromDispatchErr(w *protocol.Writer, id string, err error) {
	var derr *dispatch.DispatchError
	if errors.As(err, &derr) {
		writeError(w, id, derr.Code, derr.Error())
		return
	}
	writeError(w, id, string(protocol.CodeInternal), err.Error())
}

func (s *Server) handleCreate(w *protocol.Writer, req protocol.Envelope) {
	events, err := dispatch.Dispatch(dispatch.Command{
		Kind:        dispatch.CommandCreate,
		Branch:      req.Branch,
		Agent:       lifecycle.AgentKind(req.Agent),
		ProjectPath: req.ProjectPath,
		Note:        req.Note,
	}, s.mgr)
	if err != nil {
		writeFromDispatchErr(w, req.ID, err)
		return
	}
	rec := events[0].Record
	s.rememberSpawn(rec)
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
}

func (s *Server) handleOpen(w *protocol.Writer, req protocol.Envelope) {
	events, err := dispatch.Dispatch(dispatch.Command{
		Kind: dispatch.CommandOpen, Branch: req.Branch, Agent: lifecycle.AgentKind(req.Agent), ProjectPath: req.ProjectPath,
	}, s.mgr)
	if err != nil {
		writeFromDispatchErr(w, req.ID, err)
		return
	}
	s.rememberSpawn(events[0].Record)
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
}

func (s *Server) handleDestroy(w *protocol.Writer, req protocol.Envelope) {
	_, err := dispatch.Dispatch(dispatch.Command{
		Kind: dispatch.CommandDestroy, Branch: req.Branch, ProjectPath: req.ProjectPath, Force: req.Force,
	}, s.mgr)
	if err != nil {
		writeFromDispatchErr(w, req.ID, err)
		return
	}
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
}

func (s *Server) handleStop(w *protocol.Writer, req protocol.Envelope) {
	_, err := dispatch.Dispatch(dispatch.Command{
		Kind: dispatch.CommandStop, Branch: req.Branch, ProjectPath: req.ProjectPath,
	}, s.mgr)
	if err != nil {
		writeFromDispatchErr(w, req.ID, err)
		return
	}
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
}

func (s *Server) handleComplete(w *protocol.Writer, req protocol.Envelope) {
	_, err := dispatch.Dispatch(dispatch.Command{
		Kind: dispatch.CommandComplete, Branch: req.Branch, ProjectPath: req.ProjectPath, Force: req.Force,
	}, s.mgr)
	if err != nil {
		writeFromDispatchErr(w, req.ID, err)
		return
	}
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
}

func (s *Server) handleList(w *protocol.Writer, req protocol.Envelope) {
	entries, err := s.store.List()
	if err != nil {
		writeError(w, req.ID, string(protocol.CodeInternal), err.Error())
		return
	}
	summaries := make([]protocol.SessionSummary, 0, len(entries))
	for _, e := range entries {
		if e.Record == nil {
			continue
		}
		summaries = append(summaries, protocol.SessionSummary{
			ID: e.Record.ID, Branch: e.Record.Branch, Status: string(e.Record.Status),
			WorktreePath: e.Record.WorktreePath, Degraded: e.Record.Degraded,
		})
	}
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeSessionList, ID: req.ID, Sessions: summaries})
}

func (s *Server) handleWriteStdin(req protocol.Envelope) {
	data, err := req.Data()
	if err != nil {
		return
	}
	_ = s.host.Write(req.SpawnID, data)
}

func (s *Server) handleResize(w *protocol.Writer, req protocol.Envelope) {
	if err := s.host.Resize(req.SpawnID, uint16(req.Cols), uint16(req.Rows)); err != nil {
		writeError(w, req.ID, string(protocol.CodeInternal), err.Error())
		return
	}
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID})
}

func (s *Server) handleIsRunning(w *protocol.Writer, req protocol.Envelope) {
	running := s.host.IsRunning(req.SpawnID)
	_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypeAck, ID: req.ID, Running: running})
}

func (s *Server) handleAttach(ctx context.Context, conn net.Conn, r *protocol.Reader, w *protocol.Writer, req protocol.Envelope) {
	spawnID := s.resolveSpawnID(req)
	if spawnID == "" {
		writeError(w, req.ID, string(protocol.CodeSessionNotFound), "no live agent for branch "+req.Branch)
		return
	}

	scrollback, ch, err := s.host.Attach(spawnID, req.SubscriberID)
	if err != nil {
		writeError(w, req.ID, string(protocol.CodeSessionNotFound), err.Error())
		return
	}
	defer s.host.Detach(spawnID, req.SubscriberID)

	ack := protocol.Envelope{Type: protocol.TypeAck, ID: req.ID, SpawnID: spawnID}
	if len(scrollback) > 0 {
		ack.DataB64 = protocol.EncodeData(scrollback)
	}
	if err := w.WriteEnvelope(ack); err != nil {
		return
	}

	// A reader goroutine drains client frames (WriteStdin/ResizePty/
	// Detach) concurrently with the loop below streaming
	// PtyOutput, since one connection now carries both directions.
	detach := make(chan struct{})
	go func() {
		defer close(detach)
		for {
			frame, err := r.ReadEnvelope()
			if err != nil {
				return
			}
			switch frame.Type {
			case protocol.TypeWriteStdin:
				s.handleWriteStdin(frame)
			case protocol.TypeResizePty:
				_ = s.host.Resize(frame.SpawnID, uint16(frame.Cols), uint16(frame.Rows))
			case protocol.TypeDetach:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-detach:
			return
		case chunk, ok := <-ch:
			if !ok {
				code, signal, _ := s.host.ExitStatus(spawnID)
				_ = w.WriteEnvelope(protocol.Envelope{Type: protocol.TypePtyExit, ID: req.ID, SpawnID: spawnID, ExitCode: &code, Message: signal})
				return
			}
			out := protocol.Envelope{Type: protocol.TypePtyOutput, ID: req.ID, SpawnID: spawnID, DataB64: protocol.EncodeData(chunk.Data)}
			if err := w.WriteEnvelope(out); err != nil {
				return
			}
		}
	}
}

func (s *Server) rememberSpawn(rec *store.Record) {
	if rec == nil || len(rec.Agents) == 0 {
		return
	}
	s.mu.Lock()
	s.spawnID[rec.Branch] = rec.Agents[0].SpawnID
	s.mu.Unlock()
}

// resolveSpawnID looks up the most recently created spawn for req's
// branch; it falls back to scanning the store when the in-memory cache
// hasn't seen this branch yet (e.g. after a daemon restart).
func (s *Server) resolveSpawnID(req protocol.Envelope) string {
	s.mu.Lock()
	if id, ok := s.spawnID[req.Branch]; ok {
		s.mu.Unlock()
		return id
	}
	s.mu.Unlock()

	entries, err := s.store.List()
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Record == nil || e.Record.Branch != req.Branch {
			continue
		}
		if req.ProjectPath != "" && e.Record.ProjectID != "" {
			if projectID, perr := paths.ProjectID(req.ProjectPath); perr == nil && projectID != e.Record.ProjectID {
				continue
			}
		}
		if len(e.Record.Agents) > 0 {
			return e.Record.Agents[0].SpawnID
		}
	}
	return ""
}
