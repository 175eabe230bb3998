package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var (
	// ErrInvalidData is returned when a frame's payload bytes do not
	// parse as the variant its type byte claims.
	ErrInvalidData = errors.New("protocol: invalid data")

	// ErrUnexpectedFrame is returned by handshake and session code (not
	// this package) when a well-formed frame arrives in a state that
	// doesn't permit it. Defined here so every package that classifies
	// wire errors shares one sentinel.
	ErrUnexpectedFrame = errors.New("protocol: unexpected frame")

	// ErrFrameTooLarge is returned when a decoded length exceeds
	// MaxFramePayloadSize.
	ErrFrameTooLarge = errors.New("protocol: frame payload exceeds maximum size")
)

// Frame is a self-delimiting wire record: a one-byte type tag, a
// four-byte big-endian payload length, and the payload itself.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// Encode serializes the frame to bytes.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxFramePayloadSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = uint8(f.Type)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// String returns a debug representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Type=%s, PayloadLen=%d}", f.Type, len(f.Payload))
}

// FrameReader reads frames from an io.Reader, one at a time.
type FrameReader struct {
	r      io.Reader
	header [HeaderSize]byte
}

// NewFrameReader creates a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Read blocks until a complete frame has arrived, or returns the
// underlying read error (io.EOF on a clean peer disconnect).
func (fr *FrameReader) Read() (*Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		return nil, err
	}

	frameType := FrameType(fr.header[0])
	length := binary.BigEndian.Uint32(fr.header[1:5])
	if length > MaxFramePayloadSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{Type: frameType, Payload: payload}, nil
}

// FrameWriter writes frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter creates a FrameWriter over w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write serializes and writes f in a single underlying Write call.
func (fw *FrameWriter) Write(f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = fw.w.Write(data)
	return err
}

// WriteFrame is a convenience wrapper that builds and writes a frame
// from a type and payload in one call.
func (fw *FrameWriter) WriteFrame(frameType FrameType, payload []byte) error {
	return fw.Write(&Frame{Type: frameType, Payload: payload})
}

// ============================================================================
// Payload structures
// ============================================================================

// HelloClient is the payload of a HelloClient frame: the client's
// handshake nonce.
type HelloClient struct {
	Nonce [CNonceSize]byte
}

// Encode serializes HelloClient to bytes.
func (h *HelloClient) Encode() []byte {
	out := make([]byte, CNonceSize)
	copy(out, h.Nonce[:])
	return out
}

// DecodeHelloClient deserializes HelloClient from bytes.
func DecodeHelloClient(buf []byte) (*HelloClient, error) {
	if len(buf) != CNonceSize {
		return nil, fmt.Errorf("%w: HelloClient wrong length %d", ErrInvalidData, len(buf))
	}
	h := &HelloClient{}
	copy(h.Nonce[:], buf)
	return h, nil
}

// HelloServer is the payload of a HelloServer frame: the server's
// handshake nonce.
type HelloServer struct {
	Nonce [SNonceSize]byte
}

// Encode serializes HelloServer to bytes.
func (h *HelloServer) Encode() []byte {
	out := make([]byte, SNonceSize)
	copy(out, h.Nonce[:])
	return out
}

// DecodeHelloServer deserializes HelloServer from bytes.
func DecodeHelloServer(buf []byte) (*HelloServer, error) {
	if len(buf) != SNonceSize {
		return nil, fmt.Errorf("%w: HelloServer wrong length %d", ErrInvalidData, len(buf))
	}
	h := &HelloServer{}
	copy(h.Nonce[:], buf)
	return h, nil
}

// SharingPubKey is the payload of a SharingPubKey frame: a public key
// sent in the clear. E and N are each serialized as a four-byte length
// prefix followed by the big-endian value, since neither has a fixed
// width.
type SharingPubKey struct {
	E *big.Int
	N *big.Int
}

// Encode serializes SharingPubKey to bytes.
func (s *SharingPubKey) Encode() []byte {
	eBytes := s.E.Bytes()
	nBytes := s.N.Bytes()

	buf := make([]byte, 4+len(eBytes)+4+len(nBytes))
	offset := 0
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(eBytes)))
	offset += 4
	copy(buf[offset:], eBytes)
	offset += len(eBytes)
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(nBytes)))
	offset += 4
	copy(buf[offset:], nBytes)

	return buf
}

// DecodeSharingPubKey deserializes SharingPubKey from bytes.
func DecodeSharingPubKey(buf []byte) (*SharingPubKey, error) {
	eBytes, rest, err := readLenPrefixed(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: SharingPubKey.E: %v", ErrInvalidData, err)
	}
	nBytes, rest, err := readLenPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: SharingPubKey.N: %v", ErrInvalidData, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: SharingPubKey trailing bytes", ErrInvalidData)
	}

	return &SharingPubKey{
		E: new(big.Int).SetBytes(eBytes),
		N: new(big.Int).SetBytes(nBytes),
	}, nil
}

// SharingCryptedPubKey is the payload of a SharingCryptedPubKey frame:
// a ciphertext whose decryption yields a serialized SharingPubKey. The
// whole frame payload is the ciphertext; no inner length prefix is
// needed since the frame header already carries the exact length.
type SharingCryptedPubKey struct {
	Ciphertext []byte
}

// Encode serializes SharingCryptedPubKey to bytes.
func (s *SharingCryptedPubKey) Encode() []byte {
	out := make([]byte, len(s.Ciphertext))
	copy(out, s.Ciphertext)
	return out
}

// DecodeSharingCryptedPubKey deserializes SharingCryptedPubKey from
// bytes.
func DecodeSharingCryptedPubKey(buf []byte) (*SharingCryptedPubKey, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return &SharingCryptedPubKey{Ciphertext: out}, nil
}

// KeysValidated is the payload of a KeysValidated frame: the client's
// encrypted MasterNonce echo.
type KeysValidated struct {
	Ciphertext []byte
}

// Encode serializes KeysValidated to bytes.
func (k *KeysValidated) Encode() []byte {
	out := make([]byte, len(k.Ciphertext))
	copy(out, k.Ciphertext)
	return out
}

// DecodeKeysValidated deserializes KeysValidated from bytes.
func DecodeKeysValidated(buf []byte) (*KeysValidated, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return &KeysValidated{Ciphertext: out}, nil
}

// HandshakeValidated is the payload of a HandshakeValidated frame. The
// two-byte OK/KO wire discriminator is decoded into a bool here and
// must never flow past this boundary as raw bytes.
type HandshakeValidated struct {
	OK bool
}

// Encode serializes HandshakeValidated to its two-byte wire form.
func (h *HandshakeValidated) Encode() []byte {
	if h.OK {
		return statusOK[:]
	}
	return statusKO[:]
}

// DecodeHandshakeValidated deserializes HandshakeValidated from bytes.
func DecodeHandshakeValidated(buf []byte) (*HandshakeValidated, error) {
	if len(buf) != 2 {
		return nil, fmt.Errorf("%w: HandshakeValidated wrong length %d", ErrInvalidData, len(buf))
	}
	switch [2]byte{buf[0], buf[1]} {
	case statusOK:
		return &HandshakeValidated{OK: true}, nil
	case statusKO:
		return &HandshakeValidated{OK: false}, nil
	default:
		return nil, fmt.Errorf("%w: HandshakeValidated status %q neither OK nor KO", ErrInvalidData, buf)
	}
}

// readLenPrefixed reads a four-byte big-endian length followed by that
// many bytes, returning the slice and whatever remains of buf.
func readLenPrefixed(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("length prefix truncated")
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, fmt.Errorf("value truncated: want %d have %d", n, len(buf))
	}
	return buf[:n], buf[n:], nil
}
