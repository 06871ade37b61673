package lifecycle

import "fmt"

// Code is a stable machine-checkable lifecycle error identifier.
type Code string

const (
	CodeInvalidBranch        Code = "invalid_branch"
	CodeInvalidAgent         Code = "invalid_agent"
	CodeNotARepo             Code = "not_a_repo"
	CodeSessionAlreadyExists Code = "session_already_exists"
	CodeSessionNotFound      Code = "session_not_found"
	CodeWorktreeFailed       Code = "worktree_failed"
	CodePTYSpawnFailed       Code = "pty_spawn_failed"
	CodeUncommittedChanges   Code = "uncommitted_changes"
)

// Error is a typed lifecycle error carrying a stable Code, the same
// "typed error with Code() string" shape the teacher uses for
// GitError/bdError, generalized to session lifecycle operations.
type Error struct {
	code    Code
	op      string
	cause   error
}

func newError(code Code, op string, cause error) *Error {
	return &Error{code: code, op: op, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("lifecycle.%s: %s: %v", e.op, e.code, e.cause)
	}
	return fmt.Sprintf("lifecycle.%s: %s", e.op, e.code)
}

func (e *Error) Code() string { return string(e.code) }

func (e *Error) Unwrap() error { return e.cause }
