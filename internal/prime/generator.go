package prime

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/user/lcgrsa/internal/lcg"
)

// MinCandidate is the smallest draw accepted as a candidate.
var MinCandidate = big.NewInt(65537)

// DefaultMaxAttempts is the attempt budget applied by callers that load a
// configuration. A bare Generator searches without bound.
const DefaultMaxAttempts = 1_000_000

// ErrSearchExhausted is returned when the attempt budget runs out before a
// prime is found.
var ErrSearchExhausted = errors.New("prime search exhausted")

// Stats describes one prime search.
type Stats struct {
	Attempts      int `json:"attempts"`
	BelowFloor    int `json:"below_floor"`
	OracleRejects int `json:"oracle_rejects"`
}

// Attempt is reported to the progress callback after every draw.
type Attempt struct {
	Number    int
	Candidate *big.Int
	Accepted  bool
}

// Generator searches an LCG stream for probable primes.
type Generator struct {
	source      lcg.Source
	oracle      Oracle
	rounds      int
	maxAttempts int
	onAttempt   func(Attempt)
}

type Option func(*Generator)

func WithOracle(o Oracle) Option {
	return func(g *Generator) {
		if o != nil {
			g.oracle = o
		}
	}
}

func WithRounds(rounds int) Option {
	return func(g *Generator) {
		if rounds > 0 {
			g.rounds = rounds
		}
	}
}

// WithMaxAttempts bounds the number of draws per search. Zero means no bound.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxAttempts = n
		}
	}
}

// WithProgress registers a callback invoked after every draw.
func WithProgress(fn func(Attempt)) Option {
	return func(g *Generator) {
		g.onAttempt = fn
	}
}

// NewGenerator creates a prime generator drawing from source.
func NewGenerator(source lcg.Source, opts ...Option) *Generator {
	g := &Generator{
		source: source,
		oracle: MillerRabin{},
		rounds: DefaultRounds,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the next probable prime in the stream.
func (g *Generator) Generate(ctx context.Context) (*big.Int, error) {
	p, _, err := g.GenerateWithStats(ctx)
	return p, err
}

// GenerateWithStats is Generate plus the search statistics. A draw below
// MinCandidate is discarded; an even draw is bumped to the next odd number
// and tested in the same iteration without re-checking the floor.
func (g *Generator) GenerateWithStats(ctx context.Context) (*big.Int, Stats, error) {
	var stats Stats

	for {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}

		if g.maxAttempts > 0 && stats.Attempts >= g.maxAttempts {
			return nil, stats, fmt.Errorf("%w after %d attempts", ErrSearchExhausted, stats.Attempts)
		}

		candidate := g.source.NextBig()
		stats.Attempts++

		if candidate.Cmp(MinCandidate) < 0 {
			stats.BelowFloor++
			g.report(stats.Attempts, candidate, false)
			continue
		}

		if candidate.Bit(0) == 0 {
			candidate.Add(candidate, big.NewInt(1))
		}

		if g.oracle.IsProbablePrime(candidate, g.rounds) {
			g.report(stats.Attempts, candidate, true)
			return candidate, stats, nil
		}

		stats.OracleRejects++
		g.report(stats.Attempts, candidate, false)
	}
}

func (g *Generator) report(n int, candidate *big.Int, accepted bool) {
	if g.onAttempt == nil {
		return
	}
	g.onAttempt(Attempt{Number: n, Candidate: candidate, Accepted: accepted})
}

// Rounds returns the oracle confidence parameter in use.
func (g *Generator) Rounds() int {
	return g.rounds
}

// Oracle returns the primality oracle candidates are tested with.
func (g *Generator) Oracle() Oracle {
	return g.oracle
}
