// Package cipher implements the raw modular-exponentiation block
// transform ("enigma") used to encrypt and decrypt both handshake
// payloads and chat messages. It deliberately applies no padding
// scheme beyond what chunking itself requires: pairing a public
// exponent with its companion private exponent over the same modulus
// is self-inverse on the whole buffer, which the wire codec relies on
// directly.
package cipher

import (
	"encoding/binary"
	"math/big"

	"github.com/postalsys/duolink/internal/bigmath"
)

// lengthPrefixSize is the width of the length header Encrypt embeds
// ahead of the plaintext, so Decrypt can discard the trailing chunk
// padding without guessing at the original length.
const lengthPrefixSize = 4

// chunkWidth returns the number of plaintext bytes one chunk can
// safely hold under modulus: one byte narrower than the modulus
// itself, so every chunk parses to an integer strictly less than
// modulus, per spec.md §4.C ("chunked to fit the modulus").
func chunkWidth(modulus *big.Int) int {
	w := len(modulus.Bytes())
	if w <= 1 {
		return 1
	}
	return w - 1
}

// Encrypt applies c = m^exponent mod modulus to data, split into
// chunks sized to the modulus (see chunkWidth). The plaintext is first
// framed with its own length, since a whole-chunk-grid ciphertext
// carries no length of its own, then zero-padded at the END to a whole
// multiple of chunkWidth so every chunk — including the last — is read
// at a fixed width; this keeps the length header pinned to a fixed
// position within each decrypted chunk rather than sliding around
// depending on how short the final chunk happens to be. Each resulting
// ciphertext chunk is left-padded to the modulus' full byte width so
// chunk boundaries survive the round trip even when a chunk's value
// has leading zero bytes. Decrypt with the matching (d, n) exponent
// recovers data exactly, regardless of size.
func Encrypt(data []byte, exponent, modulus *big.Int) []byte {
	cw := chunkWidth(modulus)
	outWidth := len(modulus.Bytes())

	framed := make([]byte, lengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(framed[:lengthPrefixSize], uint32(len(data)))
	copy(framed[lengthPrefixSize:], data)

	numChunks := (len(framed) + cw - 1) / cw
	padded := make([]byte, numChunks*cw)
	copy(padded, framed)

	out := make([]byte, 0, numChunks*outWidth)
	m := new(big.Int)
	for i := 0; i < numChunks; i++ {
		start := i * cw
		m.SetBytes(padded[start : start+cw])
		c := new(big.Int).Exp(m, exponent, modulus)
		out = append(out, bigmath.PadLeft(c.Bytes(), outWidth)...)
	}
	return out
}

// Decrypt reverses Encrypt: it reads data in fixed modulus-byte-width
// ciphertext chunks, decrypts each with (exponent, modulus), left-pads
// the recovered chunk back to chunkWidth bytes (undoing exactly the
// padding Encrypt's chunk grid introduced), and strips the embedded
// length header. Malformed input that isn't a whole multiple of the
// modulus width, or that decrypts to fewer than the header's own
// bytes, yields a short or empty result rather than a panic.
func Decrypt(data []byte, exponent, modulus *big.Int) []byte {
	outWidth := len(modulus.Bytes())
	cw := chunkWidth(modulus)

	numChunks := len(data) / outWidth
	framed := make([]byte, 0, numChunks*cw)
	m := new(big.Int)
	for i := 0; i < numChunks; i++ {
		start := i * outWidth
		chunk := data[start : start+outWidth]
		m.SetBytes(chunk)
		p := new(big.Int).Exp(m, exponent, modulus)
		framed = append(framed, bigmath.PadLeft(p.Bytes(), cw)...)
	}

	if len(framed) < lengthPrefixSize {
		return nil
	}
	n := binary.BigEndian.Uint32(framed[:lengthPrefixSize])
	rest := framed[lengthPrefixSize:]
	if uint64(n) > uint64(len(rest)) {
		return rest
	}
	return rest[:n]
}
