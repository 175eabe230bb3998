// Package handshake drives the six-frame mutual key exchange that
// opens every duolink connection: each peer generates a fresh keypair,
// the two sides exchange public keys (the server's confidentially
// under the client's), and both independently compute a MasterNonce
// that the client echoes back encrypted for the server to verify.
package handshake

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/postalsys/duolink/internal/cipher"
	"github.com/postalsys/duolink/internal/keypair"
	"github.com/postalsys/duolink/internal/logging"
	"github.com/postalsys/duolink/internal/protocol"
)

// Error kinds surfaced by a failed handshake. Each is a sentinel so
// callers can classify failures with errors.Is regardless of which
// step produced them.
var (
	// ErrTransport wraps an underlying stream read/write failure.
	ErrTransport = errors.New("handshake: transport error")

	// ErrInvalidKeySize is returned when a KeysValidated ciphertext
	// decrypts to a length other than protocol.MNonceSize.
	ErrInvalidKeySize = errors.New("handshake: invalid key size")

	// ErrHandshakeFailed is returned when the server reports KO, or the
	// client cannot interpret the server's delivered key material.
	ErrHandshakeFailed = errors.New("handshake: failed")
)

// KeyBits is the per-prime bit length used for every handshake
// keypair, matching keypair.DefaultBits.
const KeyBits = keypair.DefaultBits

// SessionKeys is the result of a completed handshake: the local
// keypair and the peer's public key, scoped to one connection.
type SessionKeys struct {
	LocalPub  keypair.PublicKey
	LocalPriv keypair.PrivateKey
	PeerPub   keypair.PublicKey
}

// RunClient drives the client side of the handshake over conn,
// implementing states INIT -> SENT_HELLO -> RECV_SHELLO ->
// SENT_PUBKEY -> RECV_SPUBKEY -> SENT_NONCE -> DONE|FAILED.
func RunClient(conn io.ReadWriter, log *slog.Logger) (SessionKeys, error) {
	if log == nil {
		log = noopLogger()
	}
	r := protocol.NewFrameReader(conn)
	w := protocol.NewFrameWriter(conn)

	cPub, cPriv, err := keypair.Generate(KeyBits)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: generating client keypair: %w", ErrHandshakeFailed, err)
	}

	// Step 1: C -> S HelloClient{nC}
	cNonce, err := randomBytes(protocol.CNonceSize)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: sampling client nonce: %v", ErrHandshakeFailed, err)
	}
	hc := &protocol.HelloClient{}
	copy(hc.Nonce[:], cNonce)
	if err := w.WriteFrame(protocol.FrameHelloClient, hc.Encode()); err != nil {
		return SessionKeys{}, fmt.Errorf("%w: writing HelloClient: %v", ErrTransport, err)
	}
	log.Debug("handshake: sent HelloClient")

	// Step 2: S -> C HelloServer{nS}
	frame, err := r.Read()
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: reading HelloServer: %v", ErrTransport, err)
	}
	if frame.Type != protocol.FrameHelloServer {
		return SessionKeys{}, fmt.Errorf("%w: expected HelloServer, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}
	hs, err := protocol.DecodeHelloServer(frame.Payload)
	if err != nil {
		return SessionKeys{}, err
	}
	log.Debug("handshake: received HelloServer")

	// Step 3: C -> S SharingPubKey{C_pub} (plaintext)
	spk := &protocol.SharingPubKey{E: cPub.E, N: cPub.N}
	if err := w.WriteFrame(protocol.FrameSharingPubKey, spk.Encode()); err != nil {
		return SessionKeys{}, fmt.Errorf("%w: writing SharingPubKey: %v", ErrTransport, err)
	}
	log.Debug("handshake: sent SharingPubKey")

	// Step 4: S -> C SharingCryptedPubKey{E_Cpub(serialize(S_pub))}
	frame, err = r.Read()
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: reading SharingCryptedPubKey: %v", ErrTransport, err)
	}
	if frame.Type != protocol.FrameSharingCryptedPubKey {
		return SessionKeys{}, fmt.Errorf("%w: expected SharingCryptedPubKey, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}
	scpk, err := protocol.DecodeSharingCryptedPubKey(frame.Payload)
	if err != nil {
		return SessionKeys{}, err
	}

	plain := cipher.Decrypt(scpk.Ciphertext, cPriv.D, cPriv.N)
	sSpk, err := protocol.DecodeSharingPubKey(plain)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: decrypted SharingCryptedPubKey is not a PublicKey: %w", ErrHandshakeFailed, err)
	}
	sPub := keypair.PublicKey{E: sSpk.E, N: sSpk.N}
	log.Debug("handshake: received and decrypted server public key")

	// Step 5: C -> S KeysValidated{E_Spub(nC‖nS)}
	masterNonce := append(append([]byte(nil), hc.Nonce[:]...), hs.Nonce[:]...)
	echo := cipher.Encrypt(masterNonce, sPub.E, sPub.N)
	kv := &protocol.KeysValidated{Ciphertext: echo}
	if err := w.WriteFrame(protocol.FrameKeysValidated, kv.Encode()); err != nil {
		return SessionKeys{}, fmt.Errorf("%w: writing KeysValidated: %v", ErrTransport, err)
	}
	log.Debug("handshake: sent KeysValidated")

	// Step 6: S -> C HandshakeValidated{status}
	frame, err = r.Read()
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: reading HandshakeValidated: %v", ErrTransport, err)
	}
	if frame.Type != protocol.FrameHandshakeValidated {
		return SessionKeys{}, fmt.Errorf("%w: expected HandshakeValidated, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}
	hv, err := protocol.DecodeHandshakeValidated(frame.Payload)
	if err != nil {
		return SessionKeys{}, err
	}
	if !hv.OK {
		return SessionKeys{}, fmt.Errorf("%w: server reported KO", ErrHandshakeFailed)
	}

	log.Debug("handshake: client reached DONE")
	return SessionKeys{LocalPub: cPub, LocalPriv: cPriv, PeerPub: sPub}, nil
}

// RunServer drives the server side of the handshake over conn,
// implementing states INIT -> RECV_CHELLO -> SENT_SHELLO ->
// RECV_CPUBKEY -> SENT_SPUBKEY -> RECV_NONCE -> SENT_STATUS ->
// DONE|FAILED. Once the server has read a KeysValidated frame it emits
// step 6 exactly once, OK or KO. A failure before that point (key
// generation, a transport error, an unexpected frame variant, or an
// undecodable payload) returns without sending any status frame.
func RunServer(conn io.ReadWriter, log *slog.Logger) (SessionKeys, error) {
	if log == nil {
		log = noopLogger()
	}
	r := protocol.NewFrameReader(conn)
	w := protocol.NewFrameWriter(conn)

	sPub, sPriv, err := keypair.Generate(KeyBits)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: generating server keypair: %w", ErrHandshakeFailed, err)
	}

	// Step 1: C -> S HelloClient{nC}
	frame, err := r.Read()
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: reading HelloClient: %v", ErrTransport, err)
	}
	if frame.Type != protocol.FrameHelloClient {
		return SessionKeys{}, fmt.Errorf("%w: expected HelloClient, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}
	hc, err := protocol.DecodeHelloClient(frame.Payload)
	if err != nil {
		return SessionKeys{}, err
	}

	// Step 2: S -> C HelloServer{nS}
	sNonce, err := randomBytes(protocol.SNonceSize)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: sampling server nonce: %v", ErrHandshakeFailed, err)
	}
	hs := &protocol.HelloServer{}
	copy(hs.Nonce[:], sNonce)
	if err := w.WriteFrame(protocol.FrameHelloServer, hs.Encode()); err != nil {
		return SessionKeys{}, fmt.Errorf("%w: writing HelloServer: %v", ErrTransport, err)
	}
	log.Debug("handshake: sent HelloServer")

	masterNonce := append(append([]byte(nil), hc.Nonce[:]...), hs.Nonce[:]...)

	// Step 3: C -> S SharingPubKey{C_pub}
	frame, err = r.Read()
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: reading SharingPubKey: %v", ErrTransport, err)
	}
	if frame.Type != protocol.FrameSharingPubKey {
		return SessionKeys{}, fmt.Errorf("%w: expected SharingPubKey, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}
	cspk, err := protocol.DecodeSharingPubKey(frame.Payload)
	if err != nil {
		return SessionKeys{}, err
	}
	cPub := keypair.PublicKey{E: cspk.E, N: cspk.N}

	// Step 4: S -> C SharingCryptedPubKey{E_Cpub(serialize(S_pub))}
	serializedS := (&protocol.SharingPubKey{E: sPub.E, N: sPub.N}).Encode()
	crypted := cipher.Encrypt(serializedS, cPub.E, cPub.N)
	scpk := &protocol.SharingCryptedPubKey{Ciphertext: crypted}
	if err := w.WriteFrame(protocol.FrameSharingCryptedPubKey, scpk.Encode()); err != nil {
		return SessionKeys{}, fmt.Errorf("%w: writing SharingCryptedPubKey: %v", ErrTransport, err)
	}
	log.Debug("handshake: sent encrypted server public key")

	// Step 5: C -> S KeysValidated{E_Spub(nC‖nS)}
	frame, err = r.Read()
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: reading KeysValidated: %v", ErrTransport, err)
	}
	if frame.Type != protocol.FrameKeysValidated {
		return SessionKeys{}, fmt.Errorf("%w: expected KeysValidated, got %s", protocol.ErrUnexpectedFrame, frame.Type)
	}
	kv, err := protocol.DecodeKeysValidated(frame.Payload)
	if err != nil {
		return SessionKeys{}, err
	}

	decrypted := cipher.Decrypt(kv.Ciphertext, sPriv.D, sPriv.N)

	// Step 6: S -> C HandshakeValidated{status}, sent exactly once
	// regardless of outcome.
	ok := len(decrypted) == protocol.MNonceSize && constantEqual(decrypted, masterNonce)
	hv := &protocol.HandshakeValidated{OK: ok}
	if werr := w.WriteFrame(protocol.FrameHandshakeValidated, hv.Encode()); werr != nil {
		return SessionKeys{}, fmt.Errorf("%w: writing HandshakeValidated: %v", ErrTransport, werr)
	}

	if len(decrypted) != protocol.MNonceSize {
		return SessionKeys{}, fmt.Errorf("%w: decrypted KeysValidated length %d, want %d", ErrInvalidKeySize, len(decrypted), protocol.MNonceSize)
	}
	if !ok {
		return SessionKeys{}, fmt.Errorf("%w: MasterNonce mismatch", ErrHandshakeFailed)
	}

	log.Debug("handshake: server reached DONE")
	return SessionKeys{LocalPub: sPub, LocalPriv: sPriv, PeerPub: cPub}, nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// constantEqual compares two byte slices without short-circuiting on
// the first mismatch. Timing resistance is not a goal of this
// protocol, but the comparison is already a simple loop so there is no
// reason to use the shorter-but-leakier bytes.Equal here instead.
func constantEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

func noopLogger() *slog.Logger {
	return logging.NopLogger()
}
