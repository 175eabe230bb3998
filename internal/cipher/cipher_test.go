package cipher

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/postalsys/duolink/internal/keypair"
	"github.com/postalsys/duolink/internal/protocol"
)

// TestEncryptDecryptRoundTrip exercises spec.md testable property 1:
// for a real keypair, Decrypt(Encrypt(x, e, n), d, n) == x, byte for
// byte, including payloads that span more than one chunk.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	pub, priv, err := keypair.Generate(1024)
	if err != nil {
		t.Fatalf("keypair.Generate() error = %v", err)
	}

	payloads := [][]byte{
		[]byte("Hello"),
		[]byte(""),
		bytes.Repeat([]byte{0x00}, 3),
		bytes.Repeat([]byte{0xAB}, 24),
		bytes.Repeat([]byte{0xFF}, 255),
		bytes.Repeat([]byte{0x42}, 600),
	}

	for _, p := range payloads {
		ct := Encrypt(p, pub.E, pub.N)
		pt := Decrypt(ct, priv.D, priv.N)
		if !bytes.Equal(pt, p) {
			t.Errorf("round trip of %d-byte payload: got %x, want %x", len(p), pt, p)
		}
	}
}

// TestToyKeypairRoundTrip is spec.md scenario S1: the classic textbook
// (e=17, n=3233) / (d=413, n=3233) pair recovers a multi-byte message
// encrypted and decrypted in one call, not one byte at a time.
func TestToyKeypairRoundTrip(t *testing.T) {
	e := big.NewInt(17)
	d := big.NewInt(413)
	n := big.NewInt(3233)

	msg := []byte("Hello")
	ct := Encrypt(msg, e, n)
	pt := Decrypt(ct, d, n)

	if !bytes.Equal(pt, msg) {
		t.Fatalf("toy round trip = %q, want %q", pt, msg)
	}
}

// TestChunkWidth checks chunkWidth derives from the modulus rather
// than a fixed constant, and is always strictly smaller than the
// modulus' own byte width so every chunk value is guaranteed less
// than modulus.
func TestChunkWidth(t *testing.T) {
	cases := []struct {
		modulus  *big.Int
		wantWide int
	}{
		{big.NewInt(3233), 1},                        // fits in 2 bytes
		{new(big.Int).Lsh(big.NewInt(1), 2048), 256}, // 257-byte modulus
	}
	for _, c := range cases {
		outWidth := len(c.modulus.Bytes())
		got := chunkWidth(c.modulus)
		if got != c.wantWide {
			t.Errorf("chunkWidth(%d-byte modulus) = %d, want %d", outWidth, got, c.wantWide)
		}
		if got >= outWidth {
			t.Errorf("chunkWidth(%d) = %d, not strictly smaller than modulus width %d", c.modulus, got, outWidth)
		}
	}
}

// TestEncryptedSharingPubKeyRoundTrip is spec.md scenario S3's core
// property: encrypting a serialized SharingPubKey (as the server does
// under the client's public key in step 4) and decrypting it again
// must hand back exactly what DecodeSharingPubKey can parse, even
// though the encoded form's own length prefixes are full of leading
// zero bytes that a naive chunk transform would lose.
func TestEncryptedSharingPubKeyRoundTrip(t *testing.T) {
	serverPub, _, err := keypair.Generate(1024)
	if err != nil {
		t.Fatalf("keypair.Generate() error = %v", err)
	}
	clientPub, clientPriv, err := keypair.Generate(1024)
	if err != nil {
		t.Fatalf("keypair.Generate() error = %v", err)
	}

	original := &protocol.SharingPubKey{E: serverPub.E, N: serverPub.N}
	serialized := original.Encode()

	ciphertext := Encrypt(serialized, clientPub.E, clientPub.N)
	decrypted := Decrypt(ciphertext, clientPriv.D, clientPriv.N)

	if !bytes.Equal(decrypted, serialized) {
		t.Fatalf("decrypted SharingPubKey encoding does not match original: got %d bytes, want %d bytes", len(decrypted), len(serialized))
	}

	recovered, err := protocol.DecodeSharingPubKey(decrypted)
	if err != nil {
		t.Fatalf("DecodeSharingPubKey() error = %v", err)
	}
	if recovered.E.Cmp(original.E) != 0 {
		t.Errorf("recovered E = %s, want %s", recovered.E, original.E)
	}
	if recovered.N.Cmp(original.N) != 0 {
		t.Errorf("recovered N = %s, want %s", recovered.N, original.N)
	}
}
