// Package dispatch separates the pure "what happened" decision from the
// side-effecting work of carrying it out: Dispatch takes a closed
// Command variant and the lifecycle Manager that owns the side effects,
// and returns a list of Events plus a typed DispatchError rather than
// letting callers thread raw lifecycle errors through their own event
// loop.
//
// Grounded on the teacher's separation of step evaluation (internal/
// formula, a pure parse/validate pass over a formula.toml) from the
// side-effecting command handlers in internal/cmd (crew_lifecycle.go,
// polecat_spawn.go) that call into internal/crew, internal/polecat,
// internal/tmux to actually do the work — generalized here from
// formula-step evaluation to session-lifecycle commands.
package dispatch

import (
	"github.com/Wirasm/kild/internal/lifecycle"
	"github.com/Wirasm/kild/internal/store"
)

// CommandKind discriminates the closed Command variant set.
type CommandKind string

const (
	CommandCreate        CommandKind = "create"
	CommandDestroy       CommandKind = "destroy"
	CommandOpen          CommandKind = "open"
	CommandStop          CommandKind = "stop"
	CommandComplete      CommandKind = "complete"
	CommandRefresh       CommandKind = "refresh"
	CommandAddProject    CommandKind = "add_project"
	CommandRemoveProject CommandKind = "remove_project"
	CommandSelectProject CommandKind = "select_project"
)

// Command is one request to the dispatcher. Only the fields relevant to
// Kind are read.
type Command struct {
	Kind        CommandKind
	Branch      string
	Agent       lifecycle.AgentKind
	ProjectPath string
	Note        string
	Force       bool
}

// EventKind discriminates the closed Event variant set emitted by a
// successful Dispatch call.
type EventKind string

const (
	EventSessionCreated   EventKind = "session_created"
	EventSessionDestroyed EventKind = "session_destroyed"
	EventSessionOpened    EventKind = "session_opened"
	EventSessionStopped   EventKind = "session_stopped"
	EventSessionCompleted EventKind = "session_completed"
	EventSessionsListed   EventKind = "sessions_listed"
	EventProjectAdded     EventKind = "project_added"
	EventProjectRemoved   EventKind = "project_removed"
	EventProjectSelected  EventKind = "project_selected"
)

// Event is one outcome of a dispatched Command.
type Event struct {
	Kind      EventKind
	SessionID string
	Branch    string
	Record    *store.Record
	Entries   []store.Entry
}

// DispatchError wraps the originating error while preserving its stable
// Code() string, so a caller one layer up (the protocol server, the CLI)
// can map it to an exit code or wire error code without re-deriving it.
type DispatchError struct {
	Command CommandKind
	Code    string
	Err     error
}

func (e *DispatchError) Error() string {
	return string(e.Command) + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

type coder interface {
	Code() string
}

func wrapErr(kind CommandKind, err error) *DispatchError {
	code := "internal"
	if c, ok := err.(coder); ok {
		code = c.Code()
	}
	return &DispatchError{Command: kind, Code: code, Err: err}
}

// Dispatch carries out cmd against mgr and returns the resulting Events.
// No I/O happens inside this function that mgr itself doesn't already
// perform; Dispatch returns control to the caller's event loop between
// commands rather than looping internally.
func Dispatch(cmd Command, mgr *lifecycle.Manager) ([]Event, error) {
	switch cmd.Kind {
	case CommandCreate:
		rec, err := mgr.Create(lifecycle.CreateOptions{
			Branch:      cmd.Branch,
			Agent:       cmd.Agent,
			ProjectPath: cmd.ProjectPath,
			Note:        cmd.Note,
		})
		if err != nil {
			return nil, wrapErr(cmd.Kind, err)
		}
		return []Event{{Kind: EventSessionCreated, SessionID: rec.ID, Branch: rec.Branch, Record: rec}}, nil

	case CommandDestroy:
		if err := mgr.Destroy(cmd.Branch, cmd.ProjectPath, cmd.Force); err != nil {
			return nil, wrapErr(cmd.Kind, err)
		}
		return []Event{{Kind: EventSessionDestroyed, Branch: cmd.Branch}}, nil

	case CommandOpen:
		rec, err := mgr.Open(cmd.Branch, cmd.ProjectPath)
		if err != nil {
			return nil, wrapErr(cmd.Kind, err)
		}
		return []Event{{Kind: EventSessionOpened, SessionID: rec.ID, Branch: rec.Branch, Record: rec}}, nil

	case CommandStop:
		if err := mgr.Stop(cmd.Branch, cmd.ProjectPath); err != nil {
			return nil, wrapErr(cmd.Kind, err)
		}
		return []Event{{Kind: EventSessionStopped, Branch: cmd.Branch}}, nil

	case CommandComplete:
		if err := mgr.Complete(cmd.Branch, cmd.ProjectPath, cmd.Force); err != nil {
			return nil, wrapErr(cmd.Kind, err)
		}
		return []Event{{Kind: EventSessionCompleted, Branch: cmd.Branch}}, nil

	case CommandRefresh:
		entries, err := mgr.Refresh()
		if err != nil {
			return nil, wrapErr(cmd.Kind, err)
		}
		return []Event{{Kind: EventSessionsListed, Entries: entries}}, nil

	case CommandAddProject, CommandRemoveProject, CommandSelectProject:
		// Project bookkeeping has no lifecycle side effects of its own
		// yet (sessions are already scoped by ProjectPath per-command);
		// these variants exist so the dispatcher's Command set matches
		// the full closed set named in the design, and emit a bare
		// acknowledgement event for the caller's event loop to render.
		return []Event{{Kind: projectEventFor(cmd.Kind), Branch: cmd.ProjectPath}}, nil

	default:
		return nil, &DispatchError{Command: cmd.Kind, Code: "internal", Err: errUnknownCommand(cmd.Kind)}
	}
}

func projectEventFor(kind CommandKind) EventKind {
	switch kind {
	case CommandAddProject:
		return EventProjectAdded
	case CommandRemoveProject:
		return EventProjectRemoved
	default:
		return EventProjectSelected
	}
}

type unknownCommandError string

func (e unknownCommandError) Error() string { return "dispatch: unknown command kind: " + string(e) }

func errUnknownCommand(kind CommandKind) error { return unknownCommandError(kind) }
