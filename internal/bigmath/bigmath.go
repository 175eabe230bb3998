// Package bigmath provides the arbitrary-precision integer primitives the
// rest of duolink's key generation and cipher transform are built on.
package bigmath

import "math/big"

// ModPow computes base^exp mod mod for unsigned arbitrary-precision
// integers. It is a thin wrapper over math/big's own exponentiation;
// no constant-time guarantees are made or required.
func ModPow(base, exp, mod *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, mod)
}

// ModInverse returns x such that a*x ≡ 1 (mod m), i.e. the modular
// inverse of a modulo m. ok is false when a and m are not coprime, in
// which case the returned value is nil and must not be used.
func ModInverse(a, m *big.Int) (inv *big.Int, ok bool) {
	inv = new(big.Int).ModInverse(a, m)
	if inv == nil {
		return nil, false
	}
	return inv, true
}

// GCD returns the greatest common divisor of a and b.
func GCD(a, b *big.Int) *big.Int {
	return new(big.Int).GCD(nil, nil, a, b)
}

// LCM returns the least common multiple of a and b.
func LCM(a, b *big.Int) *big.Int {
	g := GCD(a, b)
	if g.Sign() == 0 {
		return big.NewInt(0)
	}
	// lcm(a,b) = a*b / gcd(a,b), computed as (a/gcd)*b to keep the
	// intermediate product smaller.
	q := new(big.Int).Div(a, g)
	return q.Mul(q, b)
}

// IsCoprime reports whether gcd(a, b) == 1.
func IsCoprime(a, b *big.Int) bool {
	return GCD(a, b).Cmp(big.NewInt(1)) == 0
}

// BytesToUint decodes a big-endian byte slice into an unsigned integer.
func BytesToUint(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// UintToBytes encodes an unsigned integer as big-endian bytes. Leading
// zero bytes are not preserved — callers that need a fixed width must
// pad the result themselves.
func UintToBytes(n *big.Int) []byte {
	return n.Bytes()
}

// PadLeft left-pads b with zero bytes until it is exactly width bytes
// long. If b is already width bytes or longer it is returned
// unchanged, since that indicates the caller picked too small a width
// for the value and truncating would silently lose data.
func PadLeft(b []byte, width int) []byte {
	if len(b) >= width {
		return b
	}
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	return out
}
