// Package cli provides CLI configuration utilities.
package cli

import (
	"os"
	"sync"
)

var (
	name     string
	nameOnce sync.Once
)

// Name returns the kild CLI command name.
// Defaults to "kild", but can be overridden with the KILD_COMMAND env
// var so a user can alias it alongside another tool of the same name.
func Name() string {
	nameOnce.Do(func() {
		name = os.Getenv("KILD_COMMAND")
		if name == "" {
			name = "kild"
		}
	})
	return name
}
