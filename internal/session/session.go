// Package session implements the post-handshake chat loop: each peer
// alternates sending one encrypted line and receiving one, with
// opposite turn order on the two sides so a single round trip always
// completes without both peers blocking on a read at once.
package session

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/postalsys/duolink/internal/cipher"
	"github.com/postalsys/duolink/internal/handshake"
	"github.com/postalsys/duolink/internal/logging"
	"github.com/postalsys/duolink/internal/protocol"
)

// ErrPeerDisconnected is returned when a zero-byte read signals the
// peer has closed its half of the transport. It terminates the loop
// without being treated as a failure.
var ErrPeerDisconnected = errors.New("session: peer disconnected")

// Loop owns the frame codec and cipher state for one connection's
// chat phase. It is used exactly once and discarded with its
// connection.
type Loop struct {
	keys SessionKeys

	reader *protocol.FrameReader
	writer *protocol.FrameWriter

	in  *bufio.Scanner
	out io.Writer

	peerLabel string
	log       *slog.Logger
}

// SessionKeys mirrors handshake.SessionKeys; session only needs the
// peer's public key and the local private key, but takes the whole
// bundle so callers can pass the handshake's result directly.
type SessionKeys = handshake.SessionKeys

// New constructs a Loop over conn using the keys produced by a
// completed handshake. in is the local line source (stdin in
// production), out is where decrypted inbound lines are rendered
// (stdout in production), and peerLabel prefixes each rendered line
// per spec.md §6 ("<peer-ip>: [<message>]").
func New(conn io.ReadWriter, keys SessionKeys, in io.Reader, out io.Writer, peerLabel string, log *slog.Logger) *Loop {
	if log == nil {
		log = logging.NopLogger()
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, protocol.MaxPacketSize), protocol.MaxPacketSize)

	return &Loop{
		keys:      keys,
		reader:    protocol.NewFrameReader(conn),
		writer:    protocol.NewFrameWriter(conn),
		in:        scanner,
		out:       out,
		peerLabel: peerLabel,
		log:       log,
	}
}

// RunServer runs the server's turn discipline: read-then-send.
func (l *Loop) RunServer() error {
	for {
		if err := l.receiveAndRender(); err != nil {
			return err
		}
		if err := l.promptAndSend(); err != nil {
			return err
		}
	}
}

// RunClient runs the client's turn discipline: send-then-read.
func (l *Loop) RunClient() error {
	for {
		if err := l.promptAndSend(); err != nil {
			return err
		}
		if err := l.receiveAndRender(); err != nil {
			return err
		}
	}
}

// promptAndSend reads one line from the local input, encrypts it
// under the peer's public key, and frames it onto the wire. The
// trailing newline the line-oriented scanner strips is re-added
// before encryption, matching spec.md §6's "trailing newline included
// in encryption, stripped by the receiver".
func (l *Loop) promptAndSend() error {
	fmt.Fprint(l.out, "Localhost: ")
	if !l.in.Scan() {
		if err := l.in.Err(); err != nil {
			return fmt.Errorf("session: reading local input: %w", err)
		}
		return io.EOF
	}

	line := append(l.in.Bytes(), '\n')
	ciphertext := cipher.Encrypt(line, l.keys.PeerPub.E, l.keys.PeerPub.N)

	if err := l.writer.WriteFrame(frameKindForOutbound(), ciphertext); err != nil {
		return fmt.Errorf("session: writing message frame: %w", err)
	}
	return nil
}

// receiveAndRender reads one framed, encrypted line from the peer,
// decrypts it under the local private key, strips the trailing
// newline, and renders it to out.
func (l *Loop) receiveAndRender() error {
	frame, err := l.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrPeerDisconnected
		}
		return fmt.Errorf("session: reading message frame: %w", err)
	}
	if frame.Type != frameKindForOutbound() {
		return fmt.Errorf("%w: expected message frame, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}

	plain := cipher.Decrypt(frame.Payload, l.keys.LocalPriv.D, l.keys.LocalPriv.N)
	plain = bytes.TrimSuffix(plain, []byte{'\n'})

	fmt.Fprintf(l.out, "%s: [%s]\n", l.peerLabel, plain)
	return nil
}

// frameKindForOutbound is the wire frame type carrying an encrypted
// chat message. FrameMessage sits outside the handshake's seven-variant
// closed union by design, but reuses the same length-delimited frame
// codec as every handshake payload: a bare variable-length ciphertext,
// the same shape as KeysValidated's payload.
func frameKindForOutbound() protocol.FrameType {
	return protocol.FrameMessage
}
