package bigmath

import (
	"math/big"
	"testing"
)

func bi(n int64) *big.Int { return big.NewInt(n) }

func TestModPow(t *testing.T) {
	// 4^13 mod 497 = 445 (textbook RSA example)
	got := ModPow(bi(4), bi(13), bi(497))
	if got.Cmp(bi(445)) != 0 {
		t.Fatalf("ModPow(4,13,497) = %s, want 445", got)
	}
}

func TestModInverse(t *testing.T) {
	// e=17, r=780 -> d=413 (spec.md S1)
	inv, ok := ModInverse(bi(17), bi(780))
	if !ok {
		t.Fatalf("expected inverse to exist")
	}
	if inv.Cmp(bi(413)) != 0 {
		t.Fatalf("ModInverse(17,780) = %s, want 413", inv)
	}
}

func TestModInverseNotCoprime(t *testing.T) {
	if _, ok := ModInverse(bi(4), bi(8)); ok {
		t.Fatalf("expected no inverse for gcd(4,8) != 1")
	}
}

func TestGCD(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{100, 9, 1},
		{9, 100, 1},
		{90, 100, 10},
		{559, 255, 1},
	}
	for _, c := range cases {
		got := GCD(bi(c.a), bi(c.b))
		if got.Cmp(bi(c.want)) != 0 {
			t.Errorf("GCD(%d,%d) = %s, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestLCM(t *testing.T) {
	// lcm(60, 52) where p-1=60 (p=61), q-1=52 (q=53) from spec.md S1 example
	got := LCM(bi(60), bi(52))
	if got.Cmp(bi(780)) != 0 {
		t.Fatalf("LCM(60,52) = %s, want 780", got)
	}
}

func TestIsCoprime(t *testing.T) {
	if !IsCoprime(bi(17), bi(780)) {
		t.Errorf("expected 17 and 780 to be coprime")
	}
	if IsCoprime(bi(4), bi(8)) {
		t.Errorf("expected 4 and 8 to not be coprime")
	}
}

func TestPadLeft(t *testing.T) {
	got := PadLeft([]byte{0x01, 0x02}, 4)
	want := []byte{0x00, 0x00, 0x01, 0x02}
	if len(got) != len(want) {
		t.Fatalf("PadLeft length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PadLeft() = %x, want %x", got, want)
		}
	}
}

func TestBytesUintRoundTrip(t *testing.T) {
	n := bi(3233)
	got := BytesToUint(UintToBytes(n))
	if got.Cmp(n) != 0 {
		t.Fatalf("round trip = %s, want %s", got, n)
	}
}
