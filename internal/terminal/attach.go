package terminal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/Wirasm/kild/internal/protocol"
)

// AttachSession puts the calling process's stdin into raw mode, sends the
// attach request, replays the returned scrollback snapshot, then streams
// the live PTY output from conn to out while forwarding stdin keystrokes
// (including application-cursor-mode escape sequences, which the remote
// PTY itself interprets — this layer passes bytes through untranslated)
// to the daemon as write_stdin frames until ctx is canceled or the
// remote session exits.
//
// Raw mode is restored on return via a deferred Restore call, so there
// is no partial-restore state for a caller to leak.
func AttachSession(ctx context.Context, conn *protocol.Client, sessionID string, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("terminal: entering raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(f.Fd()), state) }()
	}

	subscriberID := newSubscriberID()
	resp, err := conn.Send(protocol.NewAttach(sessionID, subscriberID))
	if err != nil {
		return err
	}
	spawnID := resp.SpawnID
	if scrollback, derr := resp.Data(); derr == nil && len(scrollback) > 0 {
		if _, werr := out.Write(scrollback); werr != nil {
			return werr
		}
	}

	ch := make(chan protocol.Envelope, 64)
	errCh := make(chan error, 2)
	go func() { errCh <- conn.Stream(ch) }()
	go func() { errCh <- pumpStdin(ctx, conn, spawnID, in) }()
	go func() { errCh <- pumpOutput(ch, out) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func pumpStdin(ctx context.Context, conn *protocol.Client, spawnID string, in io.Reader) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := in.Read(buf)
		if n > 0 {
			if sendErr := conn.SendAsync(protocol.NewWriteStdin(spawnID, buf[:n])); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func newSubscriberID() string {
	return uuid.NewString()
}

func pumpOutput(ch <-chan protocol.Envelope, out io.Writer) error {
	for env := range ch {
		switch env.Type {
		case protocol.TypePtyOutput:
			data, err := env.Data()
			if err != nil {
				return err
			}
			if _, err := out.Write(data); err != nil {
				return err
			}
		case protocol.TypePtyExit:
			return nil
		}
	}
	return nil
}
