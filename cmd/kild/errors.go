package main

import (
	"fmt"
	"os"

	"github.com/Wirasm/kild/internal/protocol"
)

// hints maps a wire error code to a one-line suggestion, following
// spec.md §7's "one-line problem + one-line hint" user-visible contract.
var hints = map[string]string{
	string(protocol.CodeSessionNotFound):      "check the branch name with 'kild list'",
	string(protocol.CodeSessionAlreadyExists): "use 'kild open' to reattach to the existing session",
	string(protocol.CodeInvalidBranch):        "branch names must follow git's ref grammar (no spaces, leading '-', or '..')",
	string(protocol.CodeUncommittedChanges):   "commit or stash changes, or pass --force",
	string(protocol.CodePTYSpawnFailed):       "verify the agent binary is installed and on PATH",
	string(protocol.CodeDaemonUnavailable):    "start it with 'kildd'",
}

// printProtocolError reports err to stderr in the spec's user-visible
// shape and returns it unchanged so cobra's own error path still fires.
func printProtocolError(err error) error {
	perr, ok := err.(*protocol.Error)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", perr.Error())
	if hint, ok := hints[perr.Code()]; ok {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	return err
}
