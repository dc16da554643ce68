package modmath

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInverseDoesNotExist is returned when gcd(a, m) != 1.
	ErrInverseDoesNotExist = errors.New("modular inverse does not exist")
	// ErrInvalidArgument covers nil operands, negative exponents and
	// non-positive moduli.
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// ModInverse returns x in [0, m) such that a*x ≡ 1 (mod m), computed with the
// extended Euclidean algorithm.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if a == nil || m == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	if m.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus %s is not positive", ErrInvalidArgument, m)
	}

	oldR, r := new(big.Int).Mod(a, m), new(big.Int).Set(m)
	oldS, s := big.NewInt(1), big.NewInt(0)

	quotient := new(big.Int)
	tmp := new(big.Int)
	for r.Sign() != 0 {
		quotient.Quo(oldR, r)

		// (oldR, r) = (r, oldR - quotient*r)
		tmp.Mul(quotient, r)
		tmp.Sub(oldR, tmp)
		oldR, r = r, new(big.Int).Set(tmp)

		// (oldS, s) = (s, oldS - quotient*s)
		tmp.Mul(quotient, s)
		tmp.Sub(oldS, tmp)
		oldS, s = s, new(big.Int).Set(tmp)
	}

	if oldR.Cmp(one) != 0 {
		return nil, fmt.Errorf("%w: gcd(%s, %s) = %s", ErrInverseDoesNotExist, a, m, oldR)
	}

	if oldS.Sign() < 0 {
		oldS.Add(oldS, m)
	}
	return oldS.Mod(oldS, m), nil
}

// ModPow computes base^exp mod mod by square-and-multiply.
func ModPow(base, exp, mod *big.Int) (*big.Int, error) {
	if base == nil || exp == nil || mod == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	if mod.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus %s is not positive", ErrInvalidArgument, mod)
	}
	if exp.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative exponent %s", ErrInvalidArgument, exp)
	}

	result := new(big.Int).Mod(one, mod)
	b := new(big.Int).Mod(base, mod)
	e := new(big.Int).Set(exp)

	for e.Sign() > 0 {
		if e.Bit(0) == 1 {
			result.Mul(result, b)
			result.Mod(result, mod)
		}
		b.Mul(b, b)
		b.Mod(b, mod)
		e.Rsh(e, 1)
	}
	return result, nil
}

// GCD is the plain Euclidean gcd of two non-negative integers.
func GCD(a, b *big.Int) *big.Int {
	x, y := new(big.Int).Abs(a), new(big.Int).Abs(b)
	for y.Cmp(zero) != 0 {
		x, y = y, x.Mod(x, y)
	}
	return x
}
