package rsakey

import (
	"context"
	"fmt"
	"math/big"

	"github.com/user/lcgrsa/internal/modmath"
	"github.com/user/lcgrsa/internal/prime"
)

// PublicExponent is the fixed e.
const PublicExponent = 65537

type PublicKey struct {
	E *big.Int `json:"e"`
	N *big.Int `json:"n"`
}

type PrivateKey struct {
	D *big.Int `json:"d"`
	N *big.Int `json:"n"`
}

// Primes are the factors of N. They are secret material: only key derivation
// and interchange export should read them.
type Primes struct {
	P *big.Int `json:"-"`
	Q *big.Int `json:"-"`
}

// Keys is a complete textbook RSA key pair.
type Keys struct {
	PublicKey  PublicKey  `json:"public_key"`
	PrivateKey PrivateKey `json:"private_key"`
	Primes     Primes     `json:"-"`
}

// Generate draws p and q from g (re-drawing q until it differs from p) and
// derives the key pair.
func Generate(ctx context.Context, g *prime.Generator) (*Keys, error) {
	p, err := g.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate prime p: %w", err)
	}

	q, err := g.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate prime q: %w", err)
	}

	for p.Cmp(q) == 0 {
		q, err = g.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to regenerate prime q: %w", err)
		}
	}

	return Derive(p, q, big.NewInt(PublicExponent))
}

// Derive builds a key pair from two distinct primes and a public exponent.
func Derive(p, q, e *big.Int) (*Keys, error) {
	if p == nil || q == nil || e == nil {
		return nil, fmt.Errorf("%w: nil key component", modmath.ErrInvalidArgument)
	}
	two := big.NewInt(2)
	if p.Cmp(two) < 0 || q.Cmp(two) < 0 {
		return nil, fmt.Errorf("%w: primes must be at least 2", modmath.ErrInvalidArgument)
	}
	if p.Cmp(q) == 0 {
		return nil, fmt.Errorf("%w: p and q must be distinct", modmath.ErrInvalidArgument)
	}

	// n = p * q
	n := new(big.Int).Mul(p, q)

	// d = e^(-1) mod φ(n)
	d, err := modmath.ModInverse(e, Phi(p, q))
	if err != nil {
		return nil, fmt.Errorf("failed to calculate private exponent: %w", err)
	}

	return &Keys{
		PublicKey:  PublicKey{E: new(big.Int).Set(e), N: n},
		PrivateKey: PrivateKey{D: d, N: new(big.Int).Set(n)},
		Primes:     Primes{P: new(big.Int).Set(p), Q: new(big.Int).Set(q)},
	}, nil
}

// Phi returns (p-1)(q-1).
func Phi(p, q *big.Int) *big.Int {
	p1 := new(big.Int).Sub(p, big.NewInt(1))
	q1 := new(big.Int).Sub(q, big.NewInt(1))
	return p1.Mul(p1, q1)
}

// Bits is the bit length of the modulus.
func (k *Keys) Bits() int {
	return k.PublicKey.N.BitLen()
}

// Public returns a copy holding only the public half.
func (k *Keys) Public() PublicKey {
	return PublicKey{E: new(big.Int).Set(k.PublicKey.E), N: new(big.Int).Set(k.PublicKey.N)}
}

// Wipe zeroes the private exponent and the primes in place.
func (k *Keys) Wipe() {
	for _, v := range []*big.Int{k.PrivateKey.D, k.Primes.P, k.Primes.Q} {
		if v != nil {
			v.SetInt64(0)
		}
	}
}

// Validate checks the structural invariants of the key pair.
func (k *Keys) Validate() error {
	if k.PublicKey.N == nil || k.PublicKey.E == nil || k.PrivateKey.D == nil || k.PrivateKey.N == nil {
		return fmt.Errorf("%w: incomplete key", modmath.ErrInvalidArgument)
	}
	if k.PublicKey.N.Cmp(k.PrivateKey.N) != 0 {
		return fmt.Errorf("%w: public and private modulus differ", modmath.ErrInvalidArgument)
	}
	p, q := k.Primes.P, k.Primes.Q
	if p == nil || q == nil {
		return nil
	}
	if new(big.Int).Mul(p, q).Cmp(k.PublicKey.N) != 0 {
		return fmt.Errorf("%w: n != p*q", modmath.ErrInvalidArgument)
	}
	if p.Cmp(q) == 0 {
		return fmt.Errorf("%w: p == q", modmath.ErrInvalidArgument)
	}
	de := new(big.Int).Mul(k.PrivateKey.D, k.PublicKey.E)
	if de.Mod(de, Phi(p, q)).Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("%w: d*e != 1 mod phi(n)", modmath.ErrInvalidArgument)
	}
	return nil
}
