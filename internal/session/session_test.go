package session

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/postalsys/duolink/internal/handshake"
	"github.com/postalsys/duolink/internal/keypair"
)

func mustKeypair(t *testing.T, bits int) (keypair.PublicKey, keypair.PrivateKey) {
	t.Helper()
	pub, priv, err := keypair.Generate(bits)
	if err != nil {
		t.Fatalf("keypair.Generate() error = %v", err)
	}
	return pub, priv
}

// TestSessionRoundTrip is spec.md scenario S3's continuation: after a
// handshake, one client message and one server reply cross in a
// single round trip, each rendered with the peer label prefix.
func TestSessionRoundTrip(t *testing.T) {
	const bits = 256
	clientPub, clientPriv := mustKeypair(t, bits)
	serverPub, serverPriv := mustKeypair(t, bits)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientKeys := handshake.SessionKeys{LocalPub: clientPub, LocalPriv: clientPriv, PeerPub: serverPub}
	serverKeys := handshake.SessionKeys{LocalPub: serverPub, LocalPriv: serverPriv, PeerPub: clientPub}

	clientIn := strings.NewReader("hello from client\n")
	serverIn := strings.NewReader("hello from server\n")
	var clientOut, serverOut bytes.Buffer

	clientLoop := New(clientConn, clientKeys, clientIn, &clientOut, "server", nil)
	serverLoop := New(serverConn, serverKeys, serverIn, &serverOut, "client", nil)

	// Each side's input holds one line. The client loop exits with
	// io.EOF from its second prompt; closing its connection on exit
	// unblocks the server's pending frame read, which the session loop
	// turns into ErrPeerDisconnected.
	done := make(chan error, 2)
	go func() {
		err := clientLoop.RunClient()
		clientConn.Close()
		done <- err
	}()
	go func() {
		err := serverLoop.RunServer()
		serverConn.Close()
		done <- err
	}()

	for i := 0; i < 2; i++ {
		err := <-done
		if err != nil && !errors.Is(err, ErrPeerDisconnected) && !errors.Is(err, io.EOF) {
			t.Fatalf("loop returned error = %v", err)
		}
	}

	if !strings.Contains(serverOut.String(), "hello from client") {
		t.Errorf("server output = %q, want it to contain the client's message", serverOut.String())
	}
	if !strings.Contains(clientOut.String(), "hello from server") {
		t.Errorf("client output = %q, want it to contain the server's message", clientOut.String())
	}
}

// TestSessionDisconnect is spec.md scenario S5: closing the transport
// mid-loop surfaces ErrPeerDisconnected rather than a hard error.
func TestSessionDisconnect(t *testing.T) {
	const bits = 256
	clientPub, clientPriv := mustKeypair(t, bits)

	clientConn, serverConn := net.Pipe()
	serverConn.Close()

	keys := handshake.SessionKeys{LocalPub: clientPub, LocalPriv: clientPriv, PeerPub: clientPub}
	var out bytes.Buffer
	loop := New(clientConn, keys, strings.NewReader(""), &out, "peer", nil)

	err := loop.receiveAndRender()
	if !errors.Is(err, ErrPeerDisconnected) {
		t.Fatalf("receiveAndRender() error = %v, want ErrPeerDisconnected", err)
	}
}
