// Command kildd is the kild daemon: it owns every live PTY and serves
// the Unix-domain-socket protocol that cmd/kild speaks to it.
//
// Grounded on the teacher's internal/boot package (single-process
// supervisor, signal-driven graceful shutdown) generalized from the
// teacher's tmux-multiplexed model to direct PTY ownership.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wirasm/kild/internal/daemon"
	"github.com/Wirasm/kild/internal/paths"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kildd:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := paths.EnsureRoot(); err != nil {
		return fmt.Errorf("preparing kild home: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := daemon.New()
	log.Printf("kildd: listening on %s", paths.SocketPath())
	return srv.ListenAndServe(ctx)
}
