// Package protocol defines the wire frames exchanged between the two
// peers of a duolink session: the six handshake frames, the single
// Leave frame used to tear down a connection early, and the Message
// frame that carries chat lines after the handshake.
package protocol

import "fmt"

// Wire-level size constants, fixed by the protocol and never negotiated.
const (
	// CNonceSize is the length in bytes of the client's handshake nonce.
	CNonceSize = 12

	// SNonceSize is the length in bytes of the server's handshake nonce.
	SNonceSize = 12

	// MNonceSize is the length of the MasterNonce, the concatenation of
	// the client and server nonces.
	MNonceSize = CNonceSize + SNonceSize

	// MaxPacketSize is the read-buffer sizing hint for the session loop,
	// not a hard ceiling on handshake payload size.
	MaxPacketSize = 1024

	// MaxConnectionAttempts bounds the client's automatic handshake
	// retry loop before it gives up and sends Leave.
	MaxConnectionAttempts = 3

	// HeaderSize is the size of a frame header: one type byte followed
	// by a four-byte big-endian payload length.
	HeaderSize = 5

	// MaxFramePayloadSize bounds how large a single frame's payload is
	// allowed to be, guarding FrameReader against a hostile or corrupt
	// length field driving an unbounded allocation. It is intentionally
	// larger than MaxPacketSize since the ciphertext of a chat line near
	// that size exceeds it: encryption adds a length header and widens
	// every chunk by one byte.
	MaxFramePayloadSize = 8192
)

// statusOK and statusKO are the two legal values of a HandshakeValidated
// status field. They never escape the codec boundary as raw bytes; see
// DecodeHandshakeValidated.
var (
	statusOK = [2]byte{'O', 'K'}
	statusKO = [2]byte{'K', 'O'}
)

// FrameType identifies one of the seven closed handshake frame variants
// or the session-phase FrameMessage.
type FrameType uint8

const (
	FrameHelloClient FrameType = iota + 1
	FrameHelloServer
	FrameSharingPubKey
	FrameSharingCryptedPubKey
	FrameKeysValidated
	FrameHandshakeValidated
	FrameLeave

	// FrameMessage carries one encrypted chat line during the session
	// phase. It is not part of the seven-variant handshake union but
	// reuses the same length-delimited frame codec.
	FrameMessage
)

// String returns a human-readable frame type name, for logging.
func (t FrameType) String() string {
	switch t {
	case FrameHelloClient:
		return "HELLO_CLIENT"
	case FrameHelloServer:
		return "HELLO_SERVER"
	case FrameSharingPubKey:
		return "SHARING_PUBKEY"
	case FrameSharingCryptedPubKey:
		return "SHARING_CRYPTED_PUBKEY"
	case FrameKeysValidated:
		return "KEYS_VALIDATED"
	case FrameHandshakeValidated:
		return "HANDSHAKE_VALIDATED"
	case FrameLeave:
		return "LEAVE"
	case FrameMessage:
		return "MESSAGE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// IsValid reports whether t is one of the seven handshake frame types;
// FrameMessage is not included.
func (t FrameType) IsValid() bool {
	return t >= FrameHelloClient && t <= FrameLeave
}
