package prime

import "math/big"

// DefaultRounds is the confidence parameter handed to the oracle.
const DefaultRounds = 5

// Oracle decides whether a candidate is probably prime.
type Oracle interface {
	IsProbablePrime(n *big.Int, rounds int) bool
	Name() string
}

// MillerRabin runs rounds of Miller-Rabin with pseudorandom bases followed by
// a Baillie-PSW test, as implemented by math/big.
type MillerRabin struct{}

func (MillerRabin) IsProbablePrime(n *big.Int, rounds int) bool {
	if n == nil || n.Sign() <= 0 {
		return false
	}
	if rounds < 0 {
		rounds = 0
	}
	return n.ProbablyPrime(rounds)
}

func (MillerRabin) Name() string {
	return "Miller-Rabin"
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(n *big.Int, rounds int) bool

func (f OracleFunc) IsProbablePrime(n *big.Int, rounds int) bool {
	return f(n, rounds)
}

func (f OracleFunc) Name() string {
	return "custom"
}
