package lcg

import (
	"math/big"
	"sync"
	"time"
)

// MMIX parameters (Knuth). The modulus is 2^64, so the recurrence is
// evaluated with native uint64 wrap-around.
const (
	Multiplier uint64 = 6364136223846793005
	Increment  uint64 = 1442695040888963407
)

// Modulus is 2^64.
var Modulus = new(big.Int).Lsh(big.NewInt(1), 64)

// Source yields successive pseudo-random values as big integers.
type Source interface {
	NextBig() *big.Int
}

// Generator is a linear congruential generator. Draws are serialized, so a
// single Generator may be shared between goroutines, but the interleaving of
// their draws is then scheduler dependent.
type Generator struct {
	mu   sync.Mutex
	seed uint64
}

// New creates a generator starting from seed.
func New(seed uint64) *Generator {
	return &Generator{seed: seed}
}

// NewFromTime seeds a generator from the wall clock in milliseconds.
func NewFromTime() *Generator {
	return New(uint64(time.Now().UnixMilli()))
}

// Next advances the state and returns it.
func (g *Generator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seed = Multiplier*g.seed + Increment
	return g.seed
}

func (g *Generator) NextBig() *big.Int {
	return new(big.Int).SetUint64(g.Next())
}

// Seed returns the current state without advancing it.
func (g *Generator) Seed() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seed
}
