// Package keypair generates the asymmetric keypairs used by the
// handshake: a (public, private) exponent pair sharing a modulus
// n = p*q for two independently sampled large primes.
package keypair

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/postalsys/duolink/internal/bigmath"
)

// DefaultBits is the bit length used for each of the two sampled primes,
// per spec.md §4.B ("approximately 1024 bits each").
const DefaultBits = 1024

// maxRestarts bounds the number of times GenerateFromSource will resample
// primes before giving up as KeyGenFailed. The p == q case does not
// cost a restart, since generateBase resamples q itself; a restart
// follows a failed prime sample, or a failed exponent or inverse
// search, none of which is expected with a well-behaved random source.
const maxRestarts = 8

// ErrKeyGenFailed is returned when prime generation or the modular
// inverse search could not produce a valid keypair within maxRestarts
// attempts.
var ErrKeyGenFailed = errors.New("keypair: key generation failed")

// PublicKey is the (e, n) pair shared with the peer in the clear.
type PublicKey struct {
	E *big.Int
	N *big.Int
}

// PrivateKey is the (d, n) pair that must never be serialized onto the
// wire.
type PrivateKey struct {
	D *big.Int
	N *big.Int
}

// primeBase is the (p, q, n) triple used once during generation and
// then discarded.
type primeBase struct {
	p, q, n *big.Int
}

// Generate produces a fresh (PublicKey, PrivateKey) pair using primes of
// the given bit length, reading randomness from rand.Reader.
func Generate(bits int) (PublicKey, PrivateKey, error) {
	return GenerateFromSource(rand.Reader, bits)
}

// GenerateFromSource is Generate with an explicit randomness source,
// primarily so tests can inject a deterministic reader.
func GenerateFromSource(random io.Reader, bits int) (PublicKey, PrivateKey, error) {
	var lastErr error
	for attempt := 0; attempt < maxRestarts; attempt++ {
		base, err := generateBase(random, bits)
		if err != nil {
			lastErr = err
			continue
		}

		r := bigmath.LCM(new(big.Int).Sub(base.p, big.NewInt(1)), new(big.Int).Sub(base.q, big.NewInt(1)))

		e, err := smallestCoprimeExponent(r)
		if err != nil {
			lastErr = err
			continue
		}

		d, ok := bigmath.ModInverse(e, r)
		if !ok {
			lastErr = fmt.Errorf("%w: no modular inverse for e=%s mod r=%s", ErrKeyGenFailed, e, r)
			continue
		}

		return PublicKey{E: e, N: base.n}, PrivateKey{D: d, N: base.n}, nil
	}
	return PublicKey{}, PrivateKey{}, fmt.Errorf("%w after %d attempts: %v", ErrKeyGenFailed, maxRestarts, lastErr)
}

// generateBase samples two distinct primes and their product, rejecting
// and resampling q whenever p == q per spec.md §3's PrimeBase invariant.
func generateBase(random io.Reader, bits int) (primeBase, error) {
	p, err := rand.Prime(random, bits)
	if err != nil {
		return primeBase{}, fmt.Errorf("%w: sampling p: %v", ErrKeyGenFailed, err)
	}

	var q *big.Int
	for {
		q, err = rand.Prime(random, bits)
		if err != nil {
			return primeBase{}, fmt.Errorf("%w: sampling q: %v", ErrKeyGenFailed, err)
		}
		if q.Cmp(p) != 0 {
			break
		}
		// p == q: resample q, per spec.md §3 ("they must differ").
	}

	n := new(big.Int).Mul(p, q)
	return primeBase{p: p, q: q, n: n}, nil
}

// smallestCoprimeExponent returns the smallest e >= 2 with gcd(e, r) == 1,
// per spec.md §4.B step 3. r is always even (lcm of two even numbers, as
// p-1 and q-1 are even for odd primes p,q), so e is never 2 in practice,
// but the search still starts at 2 to match the source's contract.
func smallestCoprimeExponent(r *big.Int) (*big.Int, error) {
	two := big.NewInt(2)
	e := new(big.Int).Set(two)
	for e.Cmp(r) < 0 {
		if bigmath.IsCoprime(e, r) {
			return new(big.Int).Set(e), nil
		}
		e.Add(e, big.NewInt(1))
	}
	return nil, fmt.Errorf("%w: no exponent coprime with r=%s", ErrKeyGenFailed, r)
}
