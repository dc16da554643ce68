package interchange

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/user/lcgrsa/internal/modmath"
	"github.com/user/lcgrsa/internal/rsakey"
)

const (
	KeyTypeRSA = "RSA"

	// Algorithm tags attached to exported records: the public half is an
	// encryption key, the private half a signing key.
	AlgPublic  = "RSA-OAEP-256"
	AlgPrivate = "RS256"
)

// JWK is the key-object record exchanged with a Provider. Integer fields are
// base64url (no padding) encodings of big-endian magnitudes.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
	Alg string `json:"alg,omitempty"`
	Ext bool   `json:"ext,omitempty"`
}

// EncodeInt returns the base64url form of x's big-endian bytes. Zero is
// encoded as a single zero byte.
func EncodeInt(x *big.Int) string {
	b := x.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeInt parses a base64url integer field. Trailing padding is tolerated.
func DecodeInt(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing field %q", ErrKeyFormat, field)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: field %q is not base64url: %v", ErrKeyFormat, field, err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// CRT holds the Chinese Remainder Theorem parameters of a private key.
type CRT struct {
	DP *big.Int
	DQ *big.Int
	QI *big.Int
}

// ComputeCRT derives dp = d mod (p-1), dq = d mod (q-1) and qi = q^-1 mod p.
func ComputeCRT(d, p, q *big.Int) (CRT, error) {
	one := big.NewInt(1)
	if d == nil || p == nil || q == nil || p.Cmp(one) <= 0 || q.Cmp(one) <= 0 {
		return CRT{}, fmt.Errorf("%w: CRT needs d and primes greater than one", modmath.ErrInvalidArgument)
	}
	p1 := new(big.Int).Sub(p, one)
	q1 := new(big.Int).Sub(q, one)

	qi, err := modmath.ModInverse(q, p)
	if err != nil {
		return CRT{}, fmt.Errorf("failed to compute qi: %w", err)
	}

	return CRT{
		DP: new(big.Int).Mod(d, p1),
		DQ: new(big.Int).Mod(d, q1),
		QI: qi,
	}, nil
}

// PublicJWK builds the public record for pub.
func PublicJWK(pub rsakey.PublicKey) JWK {
	return JWK{
		Kty: KeyTypeRSA,
		N:   EncodeInt(pub.N),
		E:   EncodeInt(pub.E),
		Alg: AlgPublic,
		Ext: true,
	}
}

// PrivateJWK builds the full private record including CRT parameters.
func PrivateJWK(keys *rsakey.Keys) (JWK, error) {
	if keys.Primes.P == nil || keys.Primes.Q == nil {
		return JWK{}, fmt.Errorf("%w: private export needs both primes", modmath.ErrInvalidArgument)
	}

	crt, err := ComputeCRT(keys.PrivateKey.D, keys.Primes.P, keys.Primes.Q)
	if err != nil {
		return JWK{}, err
	}

	return JWK{
		Kty: KeyTypeRSA,
		N:   EncodeInt(keys.PrivateKey.N),
		E:   EncodeInt(keys.PublicKey.E),
		D:   EncodeInt(keys.PrivateKey.D),
		P:   EncodeInt(keys.Primes.P),
		Q:   EncodeInt(keys.Primes.Q),
		DP:  EncodeInt(crt.DP),
		DQ:  EncodeInt(crt.DQ),
		QI:  EncodeInt(crt.QI),
		Alg: AlgPrivate,
		Ext: true,
	}, nil
}

// publicFromJWK decodes n and e.
func publicFromJWK(j JWK) (rsakey.PublicKey, error) {
	if j.Kty != KeyTypeRSA {
		return rsakey.PublicKey{}, fmt.Errorf("%w: unsupported key type %q", ErrKeyFormat, j.Kty)
	}
	n, err := DecodeInt("n", j.N)
	if err != nil {
		return rsakey.PublicKey{}, err
	}
	e, err := DecodeInt("e", j.E)
	if err != nil {
		return rsakey.PublicKey{}, err
	}
	return rsakey.PublicKey{E: e, N: n}, nil
}

// privateFromJWK decodes every private field and checks the CRT parameters
// against d, p and q.
func privateFromJWK(j JWK) (*rsakey.Keys, error) {
	pub, err := publicFromJWK(j)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{"d": j.D, "p": j.P, "q": j.Q, "dp": j.DP, "dq": j.DQ, "qi": j.QI}
	values := make(map[string]*big.Int, len(fields))
	for name, s := range fields {
		v, err := DecodeInt(name, s)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}

	keys := &rsakey.Keys{
		PublicKey:  pub,
		PrivateKey: rsakey.PrivateKey{D: values["d"], N: new(big.Int).Set(pub.N)},
		Primes:     rsakey.Primes{P: values["p"], Q: values["q"]},
	}

	crt, err := ComputeCRT(keys.PrivateKey.D, keys.Primes.P, keys.Primes.Q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	if crt.DP.Cmp(values["dp"]) != 0 || crt.DQ.Cmp(values["dq"]) != 0 || crt.QI.Cmp(values["qi"]) != 0 {
		return nil, fmt.Errorf("%w: CRT parameters do not match d, p and q", ErrKeyFormat)
	}

	if err := keys.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return keys, nil
}
