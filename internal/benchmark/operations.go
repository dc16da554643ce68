package benchmark

import (
	"context"
	"fmt"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
)

// DefaultOperations are run when a Config names none.
var DefaultOperations = []string{"prime", "keygen", "roundtrip", "export"}

// roundTripMessage is encrypted and decrypted by the roundtrip operation.
const roundTripMessage = "test"

type PrimeSearch struct{}

func (PrimeSearch) Name() string { return "Prime" }

func (PrimeSearch) Run(ctx context.Context, g *prime.Generator) (int, error) {
	p, err := g.Generate(ctx)
	if err != nil {
		return 0, err
	}
	return p.BitLen(), nil
}

type KeyDerivation struct{}

func (KeyDerivation) Name() string { return "KeyGen" }

func (KeyDerivation) Run(ctx context.Context, g *prime.Generator) (int, error) {
	keys, err := rsakey.Generate(ctx, g)
	if err != nil {
		return 0, err
	}
	return keys.Bits(), nil
}

// RoundTrip derives a key pair and checks that a short message survives
// encryption and decryption.
type RoundTrip struct{}

func (RoundTrip) Name() string { return "RoundTrip" }

func (RoundTrip) Run(ctx context.Context, g *prime.Generator) (int, error) {
	keys, err := rsakey.Generate(ctx, g)
	if err != nil {
		return 0, err
	}

	c, err := rsakey.EncryptString(roundTripMessage, keys.PublicKey)
	if err != nil {
		return 0, err
	}
	got, err := rsakey.DecryptString(c, keys.PrivateKey)
	if err != nil {
		return 0, err
	}
	if got != roundTripMessage {
		return 0, fmt.Errorf("round trip mismatch: got %q", got)
	}
	return keys.Bits(), nil
}

// PEMExport derives a key pair, exports it and imports it again.
type PEMExport struct {
	Bridge *interchange.Bridge
}

func (PEMExport) Name() string { return "Export" }

func (e PEMExport) Run(ctx context.Context, g *prime.Generator) (int, error) {
	keys, err := rsakey.Generate(ctx, g)
	if err != nil {
		return 0, err
	}

	pair, err := e.Bridge.Export(keys)
	if err != nil {
		return 0, err
	}
	back, err := e.Bridge.Import(pair.PublicPEM, pair.PrivatePEM)
	if err != nil {
		return 0, err
	}
	if back.PublicKey.N.Cmp(keys.PublicKey.N) != 0 {
		return 0, fmt.Errorf("export round trip changed the modulus")
	}
	return keys.Bits(), nil
}

func getOperation(name string, bridge *interchange.Bridge) (Operation, error) {
	switch name {
	case "prime":
		return PrimeSearch{}, nil
	case "keygen":
		return KeyDerivation{}, nil
	case "roundtrip":
		return RoundTrip{}, nil
	case "export":
		return PEMExport{Bridge: bridge}, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", name)
	}
}
