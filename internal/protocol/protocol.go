// Package protocol implements the newline-delimited JSON wire format
// spoken between kild clients (the cmd/kild CLI) and kildd (the daemon)
// over a Unix domain socket.
//
// Grounded on the teacher's internal/git.GitError / bdError pattern for
// a stable-string-coded typed error, generalized to a tagged-union
// message envelope the way the teacher's internal/mail frames JSONL
// records.
package protocol

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// Type is the tagged-union discriminator carried by every frame.
type Type string

const (
	TypePing            Type = "ping"
	TypeCreateSession   Type = "create_session"
	TypeDestroySession  Type = "destroy_session"
	TypeListSessions    Type = "list_sessions"
	TypeAttach          Type = "attach"
	TypeWriteStdin      Type = "write_stdin"
	TypeResizePty       Type = "resize_pty"
	TypeDetach          Type = "detach"
	TypeShutdown        Type = "shutdown"
	TypeStopSession     Type = "stop_session"
	TypeCompleteSession Type = "complete_session"
	TypeOpenSession     Type = "open_session"
	TypeIsRunning       Type = "is_running"

	TypeAck            Type = "ack"
	TypeSessionList    Type = "session_list"
	TypePtyOutput      Type = "pty_output"
	TypePtyExit        Type = "pty_exit"
	TypeError          Type = "error"
	TypeSessionChanged Type = "session_changed"
)

// Envelope is the single JSON shape of every frame: all request and
// response fields live on it, and Type says which of them are set.
type Envelope struct {
	Type Type   `json:"type"`
	ID   string `json:"id,omitempty"`

	// Request payloads.
	Branch      string `json:"branch,omitempty"`
	Agent       string `json:"agent,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	Note        string `json:"note,omitempty"`
	SpawnID     string `json:"spawn_id,omitempty"`
	SubscriberID string `json:"subscriber_id,omitempty"`
	DataB64     string `json:"data_b64,omitempty"`
	Cols        int    `json:"cols,omitempty"`
	Rows        int    `json:"rows,omitempty"`
	Force       bool   `json:"force,omitempty"`

	// Response payloads.
	Sessions  []SessionSummary `json:"sessions,omitempty"`
	ExitCode  *int             `json:"exit_code,omitempty"`
	Code      string           `json:"code,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
	Running   bool             `json:"running,omitempty"`
}

// SessionSummary is the wire-level projection of a store.Record used in
// SessionList / SessionChanged frames.
type SessionSummary struct {
	ID           string `json:"id"`
	Branch       string `json:"branch"`
	Status       string `json:"status"`
	WorktreePath string `json:"worktree_path"`
	Degraded     bool   `json:"degraded,omitempty"`
}

// Ping through Shutdown are request message constructors. Each returns
// an Envelope ready to be written by Client.Send.

func NewPing() Envelope { return Envelope{Type: TypePing, ID: newID()} }

func NewCreateSession(branch, agent, projectPath, note string) Envelope {
	return Envelope{Type: TypeCreateSession, ID: newID(), Branch: branch, Agent: agent, ProjectPath: projectPath, Note: note}
}

func NewDestroySession(branch string, force bool) Envelope {
	return Envelope{Type: TypeDestroySession, ID: newID(), Branch: branch, Force: force}
}

func NewStopSession(branch string) Envelope {
	return Envelope{Type: TypeStopSession, ID: newID(), Branch: branch}
}

func NewCompleteSession(branch string, force bool) Envelope {
	return Envelope{Type: TypeCompleteSession, ID: newID(), Branch: branch, Force: force}
}

func NewOpenSession(branch, agent, projectPath string) Envelope {
	return Envelope{Type: TypeOpenSession, ID: newID(), Branch: branch, Agent: agent, ProjectPath: projectPath}
}

func NewIsRunning(spawnID string) Envelope {
	return Envelope{Type: TypeIsRunning, ID: newID(), SpawnID: spawnID}
}

func NewListSessions() Envelope { return Envelope{Type: TypeListSessions, ID: newID()} }

func NewAttach(branch, subscriberID string) Envelope {
	return Envelope{Type: TypeAttach, ID: newID(), Branch: branch, SubscriberID: subscriberID}
}

func NewWriteStdin(spawnID string, data []byte) Envelope {
	return Envelope{Type: TypeWriteStdin, ID: newID(), SpawnID: spawnID, DataB64: base64.StdEncoding.EncodeToString(data)}
}

func NewResizePty(spawnID string, cols, rows int) Envelope {
	return Envelope{Type: TypeResizePty, ID: newID(), SpawnID: spawnID, Cols: cols, Rows: rows}
}

func NewDetach(spawnID, subscriberID string) Envelope {
	return Envelope{Type: TypeDetach, ID: newID(), SpawnID: spawnID, SubscriberID: subscriberID}
}

func NewShutdown() Envelope { return Envelope{Type: TypeShutdown, ID: newID()} }

func newID() string { return uuid.NewString() }

// Data decodes the base64 stdin/output payload of an Envelope.
func (e Envelope) Data() ([]byte, error) {
	if e.DataB64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(e.DataB64)
}

// EncodeData base64-encodes a scrollback/pty-output payload for the
// DataB64 field, mirroring the encoding NewWriteStdin applies to stdin.
func EncodeData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// --- Error taxonomy -------------------------------------------------

// Code is a stable, machine-checkable error identifier, mirroring the
// teacher's typed-error-with-Code()-string shape.
type Code string

const (
	CodeSessionNotFound      Code = "session_not_found"
	CodeSessionAlreadyExists Code = "session_already_exists"
	CodeInvalidBranch        Code = "invalid_branch"
	CodeInvalidAgent         Code = "invalid_agent"
	CodeWorktreeFailed       Code = "worktree_failed"
	CodePTYSpawnFailed       Code = "pty_spawn_failed"
	CodeIOError              Code = "io_error"
	CodeProtocolError        Code = "protocol_error"
	CodeInvalidRequest       Code = "invalid_request"
	CodeDaemonUnavailable    Code = "daemon_unavailable"
	CodePermissionDenied     Code = "permission_denied"
	CodeTimeout              Code = "timeout"
	CodeParseError           Code = "parse_error"
	CodeCleanupSkipped       Code = "cleanup_skipped"
	CodeUncommittedChanges   Code = "uncommitted_changes"
	CodeNotAttached          Code = "not_attached"
	CodeInternal             Code = "internal"
)

// Error is a typed protocol error carrying a stable Code and an
// underlying cause.
type Error struct {
	code    Code
	message string
	cause   error
}

func NewError(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Code() string { return string(e.code) }

func (e *Error) Unwrap() error { return e.cause }

// errorEnvelope builds the wire Envelope for an Error response.
func errorEnvelope(id string, err *Error) Envelope {
	return Envelope{Type: TypeError, ID: id, Code: err.Code(), Message: err.message}
}

// AsError converts an Envelope of TypeError back into an *Error. Returns
// nil if env is not an error frame.
func AsError(env Envelope) *Error {
	if env.Type != TypeError {
		return nil
	}
	return &Error{code: Code(env.Code), message: env.Message}
}

// --- Framing ----------------------------------------------------------

// Reader reads one JSON object per line from the underlying connection.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// ReadEnvelope reads and decodes the next line-delimited frame.
func (r *Reader) ReadEnvelope() (Envelope, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Envelope{}, err
	}
	var env Envelope
	if jerr := json.Unmarshal(line, &env); jerr != nil {
		return Envelope{}, WrapError(CodeProtocolError, "decoding frame", jerr)
	}
	return env, nil
}

// Writer writes one JSON object per line to the underlying connection.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEnvelope encodes and flushes one frame, terminated by "\n".
func (w *Writer) WriteEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	data = append(data, '\n')
	_, err = w.w.Write(data)
	return err
}

// --- Sync client --------------------------------------------------------

// Client is a synchronous request/response client over one net.Conn.
type Client struct {
	conn net.Conn
	r    *Reader
	w    *Writer
}

func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, r: NewReader(conn), w: NewWriter(conn)}
}

// Send writes req and blocks for exactly one response frame. A
// TypeError response is converted into a Go error implementing the
// Code() string taxonomy.
func (c *Client) Send(req Envelope) (Envelope, error) {
	if err := c.w.WriteEnvelope(req); err != nil {
		return Envelope{}, fmt.Errorf("sending request: %w", err)
	}
	resp, err := c.r.ReadEnvelope()
	if err != nil {
		return Envelope{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.Type == TypeError {
		return Envelope{}, AsError(resp)
	}
	return resp, nil
}

// SendAsync writes req without waiting for a response — used for
// fire-and-forget frames like WriteStdin / ResizePty.
func (c *Client) SendAsync(req Envelope) error {
	return c.w.WriteEnvelope(req)
}

// Stream delivers every subsequent frame on ch until a Detach or PtyExit
// frame arrives (returning nil) or a read fails, including when the
// connection is closed (returning that error). The channel is closed when
// Stream returns.
func (c *Client) Stream(ch chan<- Envelope) error {
	defer close(ch)
	for {
		env, err := c.r.ReadEnvelope()
		if err != nil {
			return err
		}
		ch <- env
		if env.Type == TypePtyExit || env.Type == TypeDetach {
			return nil
		}
	}
}

// Probe performs a zero-byte read-deadline peek to check whether the
// connection is still alive before reuse from a pool, mirroring the
// "probe before reuse" contract.
func (c *Client) Probe() bool {
	if err := c.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		return false
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	one := make([]byte, 1)
	_, err := c.conn.Read(one)
	if err == nil {
		// Unexpected unsolicited byte: treat the connection as unusable
		// rather than risk desyncing request/response ordering.
		return false
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Conn() net.Conn { return c.conn }
