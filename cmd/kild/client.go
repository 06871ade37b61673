package main

import (
	"fmt"
	"os"

	"github.com/Wirasm/kild/internal/paths"
	"github.com/Wirasm/kild/internal/protocol"
)

// daemonPool caches one live connection per socket path across the
// dialDaemon calls a single kild invocation makes, probing liveness
// before reuse rather than dialing fresh every time. root.go's main closes everything still pooled once the
// command finishes.
var daemonPool = protocol.NewPool()

// dialDaemon connects to kildd's Unix socket, reusing a pooled
// connection when one is still alive. Callers get a typed
// CodeDaemonUnavailable error (rather than a raw "connection refused")
// when the daemon isn't running, since every live-PTY command needs it.
// The returned close func evicts the connection from the pool, for
// callers (like attach) that know the connection can't be reused
// afterwards.
func dialDaemon() (*protocol.Client, func() error, error) {
	sockPath := paths.SocketPath()
	c, err := daemonPool.Get(sockPath)
	if err != nil {
		return nil, nil, protocol.WrapError(protocol.CodeDaemonUnavailable,
			fmt.Sprintf("kildd is not running (tried %s)", sockPath), err)
	}
	closeConn := func() error {
		daemonPool.Evict(sockPath)
		return nil
	}
	return c, closeConn, nil
}

// currentProjectPath resolves the project root a command should operate
// against: the current working directory, unless --project-path was
// given.
func currentProjectPath(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	return os.Getwd()
}
