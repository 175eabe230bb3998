// Package orchestrator owns the transport lifecycle on both sides of
// a duolink connection: accepting and spawning a worker per connection
// on the listening side, and dialing with bounded automatic retry on
// the connecting side. Each worker owns its stream, keypair, and
// session state exclusively; workers share no mutable state.
package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/postalsys/duolink/internal/handshake"
	"github.com/postalsys/duolink/internal/logging"
	"github.com/postalsys/duolink/internal/protocol"
	"github.com/postalsys/duolink/internal/retry"
	"github.com/postalsys/duolink/internal/session"
)

// Server accepts connections on a listener and runs the handshake and
// session loop on an independent goroutine per connection.
type Server struct {
	Log *slog.Logger

	// In and Out are the local operator's line source and sink for
	// every accepted connection's session loop. They default to
	// os.Stdin/os.Stdout; tests inject their own to avoid touching the
	// process's real standard streams.
	In  io.Reader
	Out io.Writer
}

// NewServer creates a Server wired to the process's standard streams
// and defaulting to a no-op logger.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Server{Log: log, In: os.Stdin, Out: os.Stdout}
}

// Run binds addr and serves until ctx is canceled or the listener
// fails. Each accepted connection is handed to an independent
// goroutine; a per-connection failure never stops the accept loop.
func (s *Server) Run(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("orchestrator: bind %s: %w", addr, err)
	}
	s.Log.Info("server listening", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("orchestrator: accept: %w", err)
		}

		connID := uuid.NewString()
		connLog := s.Log.With(logging.KeyConnID, connID, logging.KeyRemoteAddr, conn.RemoteAddr().String())
		go s.serveConnection(conn, connLog)
	}
}

// serveConnection runs the handshake then the session loop for one
// accepted connection, logging and closing regardless of outcome.
func (s *Server) serveConnection(conn net.Conn, log *slog.Logger) {
	defer conn.Close()

	keys, err := handshake.RunServer(conn, log)
	if err != nil {
		log.Warn("handshake failed", logging.KeyError, err)
		return
	}
	log.Info("handshake complete")

	loop := session.New(conn, keys, s.In, s.Out, conn.RemoteAddr().String(), log)
	if err := loop.RunServer(); err != nil && !errors.Is(err, session.ErrPeerDisconnected) && !errors.Is(err, io.EOF) {
		log.Warn("session loop ended with error", logging.KeyError, err)
		return
	}
	log.Info("session closed")
}

// Client dials a server and runs the handshake, retrying on failure
// per spec.md §4.G.
type Client struct {
	Log *slog.Logger

	// MaxAttempts bounds the automatic retry loop; spec.md fixes this
	// at protocol.MaxConnectionAttempts.
	MaxAttempts int
}

// NewClient creates a Client, defaulting to protocol.MaxConnectionAttempts
// and a no-op logger.
func NewClient(log *slog.Logger) *Client {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Client{Log: log, MaxAttempts: protocol.MaxConnectionAttempts}
}

// Connect dials addr and runs the handshake, retrying with backoff up
// to MaxAttempts times. Every attempt whose handshake fails sends a
// Leave frame on that connection before closing it, the last attempt
// included; once all attempts have failed Connect returns the final
// error. On success it runs the client session loop to completion.
func (c *Client) Connect(ctx context.Context, addr string, in io.Reader, out io.Writer) error {
	backoff := retry.NewDefault()

	var lastErr error
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff.Wait(ctx); err != nil {
				return fmt.Errorf("orchestrator: retry canceled: %w", err)
			}
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = fmt.Errorf("orchestrator: dial %s: %w", addr, err)
			c.Log.Warn("dial failed", logging.KeyAttempt, attempt+1, logging.KeyError, err)
			continue
		}

		keys, err := handshake.RunClient(conn, c.Log)
		if err != nil {
			lastErr = err
			c.Log.Warn("handshake failed", logging.KeyAttempt, attempt+1, logging.KeyError, err)
			sendLeave(conn, c.Log)
			conn.Close()
			continue
		}

		c.Log.Info("handshake complete")
		loop := session.New(conn, keys, in, out, conn.RemoteAddr().String(), c.Log)
		runErr := loop.RunClient()
		conn.Close()
		if runErr != nil && !errors.Is(runErr, session.ErrPeerDisconnected) && !errors.Is(runErr, io.EOF) {
			return fmt.Errorf("orchestrator: session loop: %w", runErr)
		}
		return nil
	}

	return fmt.Errorf("orchestrator: exhausted %d attempts: %w", c.MaxAttempts, lastErr)
}

func sendLeave(conn net.Conn, log *slog.Logger) {
	w := protocol.NewFrameWriter(conn)
	if err := w.WriteFrame(protocol.FrameLeave, nil); err != nil {
		log.Debug("failed to send Leave frame", logging.KeyError, err)
	}
}

// PromptRetry asks the operator on an interactive terminal whether to
// retry after a handshake failure, per spec.md §4.G/§7. When in is
// not a TTY, it returns false without prompting, matching the
// non-interactive no-retry path.
func PromptRetry(in *os.File, out io.Writer, isTerminal func(fd uintptr) bool) bool {
	if !isTerminal(in.Fd()) {
		return false
	}

	fmt.Fprint(out, "Handshake failed. Retry? [y/N] ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}
