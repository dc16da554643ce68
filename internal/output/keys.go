package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/modmath"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
)

// Component is one named key integer in decimal.
type Component struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// KeyReport is what generate and inspect print about a key pair.
type KeyReport struct {
	Seed       uint64      `json:"seed,omitempty"`
	Bits       int         `json:"bits"`
	Provider   string      `json:"provider,omitempty"`
	Oracle     string      `json:"oracle"`
	Rounds     int         `json:"rounds"`
	Components []Component `json:"components"`
	Checks     []Check     `json:"checks"`
	PublicPEM  string      `json:"public_key"`
	PrivatePEM string      `json:"private_key"`
}

// ReportOptions describes how a key pair was made and how to check it. A nil
// Oracle means Miller-Rabin; Rounds below one means prime.DefaultRounds.
type ReportOptions struct {
	Seed     uint64
	Provider string
	Oracle   prime.Oracle
	Rounds   int
}

func (o ReportOptions) oracle() (prime.Oracle, int) {
	oracle, rounds := o.Oracle, o.Rounds
	if oracle == nil {
		oracle = prime.MillerRabin{}
	}
	if rounds < 1 {
		rounds = prime.DefaultRounds
	}
	return oracle, rounds
}

// NewKeyReport collects the components and consistency checks of keys.
func NewKeyReport(keys *rsakey.Keys, pair interchange.PEMPair, opts ReportOptions) (*KeyReport, error) {
	crt, err := interchange.ComputeCRT(keys.PrivateKey.D, keys.Primes.P, keys.Primes.Q)
	if err != nil {
		return nil, err
	}
	oracle, rounds := opts.oracle()

	return &KeyReport{
		Seed:     opts.Seed,
		Bits:     keys.Bits(),
		Provider: opts.Provider,
		Oracle:   oracle.Name(),
		Rounds:   rounds,
		Components: []Component{
			{"n", keys.PublicKey.N.String()},
			{"e", keys.PublicKey.E.String()},
			{"d", keys.PrivateKey.D.String()},
			{"p", keys.Primes.P.String()},
			{"q", keys.Primes.Q.String()},
			{"dp", crt.DP.String()},
			{"dq", crt.DQ.String()},
			{"qi", crt.QI.String()},
		},
		Checks:     CheckKeys(keys, oracle, rounds),
		PublicPEM:  pair.PublicPEM,
		PrivatePEM: pair.PrivatePEM,
	}, nil
}

// CheckKeys verifies n = p*q, gcd(e, phi) = 1, d*e = 1 mod phi, primality of
// p and q under oracle, and a short round trip.
func CheckKeys(keys *rsakey.Keys, oracle prime.Oracle, rounds int) []Check {
	var checks []Check
	one := big.NewInt(1)

	n := new(big.Int).Mul(keys.Primes.P, keys.Primes.Q)
	checks = append(checks, Check{Name: "n = p*q", OK: n.Cmp(keys.PublicKey.N) == 0})

	phi := rsakey.Phi(keys.Primes.P, keys.Primes.Q)
	checks = append(checks, Check{
		Name: "gcd(e, phi) = 1",
		OK:   modmath.GCD(keys.PublicKey.E, phi).Cmp(one) == 0,
	})

	de := new(big.Int).Mul(keys.PrivateKey.D, keys.PublicKey.E)
	de.Mod(de, phi)
	checks = append(checks, Check{Name: "d*e mod phi = 1", OK: de.Cmp(one) == 0})

	checks = append(checks, Check{
		Name:   "p and q are probable primes",
		OK:     oracle.IsProbablePrime(keys.Primes.P, rounds) && oracle.IsProbablePrime(keys.Primes.Q, rounds),
		Detail: fmt.Sprintf("%s, %d rounds", oracle.Name(), rounds),
	})

	rt := Check{Name: `"test" round trip`}
	if c, err := rsakey.EncryptString("test", keys.PublicKey); err != nil {
		rt.Detail = err.Error()
	} else if got, err := rsakey.DecryptString(c, keys.PrivateKey); err != nil {
		rt.Detail = err.Error()
	} else {
		rt.OK = got == "test"
		if !rt.OK {
			rt.Detail = fmt.Sprintf("decrypted %q", got)
		}
	}
	checks = append(checks, rt)

	return checks
}

// AllPassed reports whether every check succeeded.
func AllPassed(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// WriteKeyReport renders r as "table", "json" or "pem".
func WriteKeyReport(w io.Writer, format string, r *KeyReport) error {
	switch format {
	case "pem":
		_, err := fmt.Fprintf(w, "%s\n%s\n", r.PublicPEM, r.PrivatePEM)
		return err
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case "table", "":
		return writeKeyTable(w, r)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeKeyTable(w io.Writer, r *KeyReport) error {
	fmt.Fprintln(w, "\nKey Pair")
	fmt.Fprintln(w, "========")
	if r.Seed != 0 {
		fmt.Fprintf(w, "Seed: %d\n", r.Seed)
	}
	fmt.Fprintf(w, "Modulus: %d bits\n", r.Bits)
	fmt.Fprintf(w, "Primality: %s, %d rounds\n", r.Oracle, r.Rounds)
	if r.Provider != "" {
		fmt.Fprintf(w, "Encoder: %s\n", r.Provider)
	}
	fmt.Fprintln(w)

	components := newTable(w)
	components.SetHeader([]string{"Component", "Value"})
	for _, c := range r.Components {
		components.Append([]string{c.Name, c.Value})
	}
	components.Render()

	fmt.Fprintln(w)
	checks := newTable(w)
	checks.SetHeader([]string{"Check", "Result", "Detail"})
	for _, c := range r.Checks {
		result := "PASS"
		if !c.OK {
			result = "FAIL"
		}
		checks.Append([]string{c.Name, result, c.Detail})
	}
	checks.Render()

	if r.PublicPEM != "" || r.PrivatePEM != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", r.PublicPEM, r.PrivatePEM)
	}
	return nil
}
