package rsakey

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/modmath"
	"github.com/user/lcgrsa/internal/prime"
)

func generateFromSeed(t *testing.T, seed uint64) *Keys {
	t.Helper()
	keys, err := Generate(context.Background(), prime.NewGenerator(lcg.New(seed)))
	if err != nil {
		t.Fatalf("Generate(seed %d): %v", seed, err)
	}
	return keys
}

func TestGenerateIsDeterministic(t *testing.T) {
	for _, seed := range []uint64{1, 42, 1700000000000} {
		a := generateFromSeed(t, seed)
		b := generateFromSeed(t, seed)

		pairs := [][2]*big.Int{
			{a.Primes.P, b.Primes.P},
			{a.Primes.Q, b.Primes.Q},
			{a.PublicKey.N, b.PublicKey.N},
			{a.PrivateKey.D, b.PrivateKey.D},
			{Phi(a.Primes.P, a.Primes.Q), Phi(b.Primes.P, b.Primes.Q)},
		}
		for i, pair := range pairs {
			if pair[0].Cmp(pair[1]) != 0 {
				t.Errorf("seed %d component %d differs: %s vs %s", seed, i, pair[0], pair[1])
			}
		}
	}
}

func TestGeneratedKeyInvariants(t *testing.T) {
	keys := generateFromSeed(t, 42)

	if err := keys.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if keys.PublicKey.E.Int64() != PublicExponent {
		t.Errorf("e = %s, want %d", keys.PublicKey.E, PublicExponent)
	}
	if keys.Primes.P.Cmp(keys.Primes.Q) == 0 {
		t.Error("p == q")
	}
	n := new(big.Int).Mul(keys.Primes.P, keys.Primes.Q)
	if n.Cmp(keys.PublicKey.N) != 0 || n.Cmp(keys.PrivateKey.N) != 0 {
		t.Error("n != p*q")
	}
	for _, p := range []*big.Int{keys.Primes.P, keys.Primes.Q} {
		if !p.ProbablyPrime(prime.DefaultRounds) {
			t.Errorf("%s is not prime", p)
		}
	}
}

func TestGenerateRedrawsEqualPrimes(t *testing.T) {
	// The source yields the same prime twice before a second one.
	src := &fixedSource{values: []int64{65537, 65537, 65537, 65539}}
	keys, err := Generate(context.Background(), prime.NewGenerator(src))
	if err != nil {
		t.Fatal(err)
	}
	if keys.Primes.P.Int64() != 65537 || keys.Primes.Q.Int64() != 65539 {
		t.Errorf("got p=%s q=%s, want 65537 and 65539", keys.Primes.P, keys.Primes.Q)
	}
	if src.pos != 4 {
		t.Errorf("drew %d candidates, want 4", src.pos)
	}
}

func TestGeneratePropagatesExhaustion(t *testing.T) {
	never := prime.OracleFunc(func(*big.Int, int) bool { return false })
	g := prime.NewGenerator(lcg.New(3), prime.WithOracle(never), prime.WithMaxAttempts(10))

	_, err := Generate(context.Background(), g)
	if !errors.Is(err, prime.ErrSearchExhausted) {
		t.Errorf("got %v, want ErrSearchExhausted", err)
	}
}

func TestDeriveFixedPrimes(t *testing.T) {
	// phi = 1008 * 1012 = 1020096 > 65537
	p, q := big.NewInt(1009), big.NewInt(1013)
	keys, err := Derive(p, q, big.NewInt(PublicExponent))
	if err != nil {
		t.Fatal(err)
	}

	if keys.PublicKey.N.Int64() != 1009*1013 {
		t.Errorf("n = %s, want %d", keys.PublicKey.N, 1009*1013)
	}

	phi := Phi(p, q)
	if phi.Int64() != 1008*1012 {
		t.Errorf("phi = %s, want %d", phi, 1008*1012)
	}

	de := new(big.Int).Mul(keys.PrivateKey.D, keys.PublicKey.E)
	if de.Mod(de, phi).Int64() != 1 {
		t.Errorf("d*e mod phi = %s, want 1", de)
	}
}

func TestDeriveTextbookExample(t *testing.T) {
	keys, err := Derive(big.NewInt(61), big.NewInt(53), big.NewInt(17))
	if err != nil {
		t.Fatal(err)
	}
	if keys.PublicKey.N.Int64() != 3233 {
		t.Errorf("n = %s, want 3233", keys.PublicKey.N)
	}
	if keys.PrivateKey.D.Int64() != 2753 {
		t.Errorf("d = %s, want 2753", keys.PrivateKey.D)
	}
}

func TestDeriveErrors(t *testing.T) {
	tests := []struct {
		name    string
		p, q, e int64
		want    error
	}{
		{"equal primes", 1009, 1009, PublicExponent, modmath.ErrInvalidArgument},
		{"prime below two", 1, 1013, PublicExponent, modmath.ErrInvalidArgument},
		// phi(7, 11) = 60 shares a factor with 3
		{"e not coprime to phi", 7, 11, 3, modmath.ErrInverseDoesNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive(big.NewInt(tt.p), big.NewInt(tt.q), big.NewInt(tt.e))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublicAndWipe(t *testing.T) {
	keys := generateFromSeed(t, 5)
	pub := keys.Public()
	n := new(big.Int).Set(keys.PublicKey.N)

	keys.Wipe()

	if keys.PrivateKey.D.Sign() != 0 || keys.Primes.P.Sign() != 0 || keys.Primes.Q.Sign() != 0 {
		t.Error("Wipe left secret material behind")
	}
	if pub.N.Cmp(n) != 0 {
		t.Error("Public() copy was affected by Wipe")
	}
}

func TestEncryptDecryptSingleCharacter(t *testing.T) {
	keys := generateFromSeed(t, 42)

	c, err := EncryptString("A", keys.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptString(c, keys.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	if got != "A" {
		t.Errorf("decrypted %q, want %q", got, "A")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keys := generateFromSeed(t, 1234)

	messages := [][]byte{
		[]byte("hi"),
		[]byte("hello"),
		[]byte("héllo"),
		{0x01, 0x00, 0xff},
		[]byte(""),
	}

	for _, msg := range messages {
		if !Fits(msg, keys.PublicKey) {
			t.Fatalf("test message %q does not fit a %d-bit modulus", msg, keys.Bits())
		}

		c, err := Encrypt(msg, keys.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		if c.Cmp(keys.PublicKey.N) >= 0 {
			t.Errorf("ciphertext %s is not below n", c)
		}

		got, err := Decrypt(c, keys.PrivateKey)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, msg) {
			t.Errorf("round trip of %x gave %x", msg, got)
		}
	}
}

func TestEncryptOversizedMessageWraps(t *testing.T) {
	keys, err := Derive(big.NewInt(1009), big.NewInt(1013), big.NewInt(PublicExponent))
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("this message is far larger than n")
	if Fits(msg, keys.PublicKey) {
		t.Fatal("message unexpectedly fits")
	}

	c, err := Encrypt(msg, keys.PublicKey)
	if err != nil {
		t.Fatalf("oversized messages are not an error: %v", err)
	}
	got, err := Decrypt(c, keys.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}

	wrapped := new(big.Int).Mod(new(big.Int).SetBytes(msg), keys.PublicKey.N)
	if new(big.Int).SetBytes(got).Cmp(wrapped) != 0 {
		t.Errorf("decrypted %x, want m mod n = %s", got, wrapped)
	}
}

func TestCiphertextBase64(t *testing.T) {
	for _, v := range []int64{0, 1, 255, 256, 1 << 40} {
		c := big.NewInt(v)
		s := CiphertextToBase64(c)
		back, err := CiphertextFromBase64(s)
		if err != nil {
			t.Fatalf("%d: %v", v, err)
		}
		if back.Cmp(c) != 0 {
			t.Errorf("%d encoded as %q decoded to %s", v, s, back)
		}
	}

	if got := CiphertextToBase64(big.NewInt(0)); got != "AA==" {
		t.Errorf("zero encoded as %q, want AA==", got)
	}
	if got := CiphertextToBase64(big.NewInt(65)); got != "QQ==" {
		t.Errorf("65 encoded as %q, want QQ==", got)
	}

	for _, bad := range []string{"", "   ", "not base64!"} {
		if _, err := CiphertextFromBase64(bad); !errors.Is(err, modmath.ErrInvalidArgument) {
			t.Errorf("%q: got %v, want ErrInvalidArgument", bad, err)
		}
	}
}

type fixedSource struct {
	values []int64
	pos    int
}

func (s *fixedSource) NextBig() *big.Int {
	v := s.values[s.pos%len(s.values)]
	s.pos++
	return big.NewInt(v)
}
