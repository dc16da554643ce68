package interchange

import (
	"crypto/rsa"
	"crypto/x509"
	encoding_asn1 "encoding/asn1"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Provider turns key-object records into binary key encodings and back:
// SubjectPublicKeyInfo for public keys, PKCS#8 for private keys.
type Provider interface {
	Name() string
	MarshalPublicKey(j JWK) ([]byte, error)
	MarshalPrivateKey(j JWK) ([]byte, error)
	ParsePublicKey(der []byte) (JWK, error)
	ParsePrivateKey(der []byte) (JWK, error)
}

// NewProvider returns the provider registered under name.
func NewProvider(name string) (Provider, error) {
	switch name {
	case "", "asn1":
		return ASN1Provider{}, nil
	case "x509":
		return X509Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown key provider: %s", name)
	}
}

var oidRSAEncryption = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}

// ASN1Provider encodes the DER structures directly. It applies no key size
// policy, so it accepts the small moduli produced here.
type ASN1Provider struct{}

func (ASN1Provider) Name() string { return "asn1" }

func (ASN1Provider) MarshalPublicKey(j JWK) ([]byte, error) {
	pub, err := publicFromJWK(j)
	if err != nil {
		return nil, err
	}

	inner := cryptobyte.NewBuilder(nil)
	inner.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(pub.N)
		b.AddASN1BigInt(pub.E)
	})
	rsaPub, err := inner.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RSA public key: %w", err)
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addRSAAlgorithm(b)
		b.AddASN1BitString(rsaPub)
	})
	return b.Bytes()
}

func (ASN1Provider) MarshalPrivateKey(j JWK) ([]byte, error) {
	keys, err := privateFromJWK(j)
	if err != nil {
		return nil, err
	}
	crt, err := ComputeCRT(keys.PrivateKey.D, keys.Primes.P, keys.Primes.Q)
	if err != nil {
		return nil, err
	}

	inner := cryptobyte.NewBuilder(nil)
	inner.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		for _, v := range []*big.Int{
			keys.PublicKey.N, keys.PublicKey.E, keys.PrivateKey.D,
			keys.Primes.P, keys.Primes.Q, crt.DP, crt.DQ, crt.QI,
		} {
			b.AddASN1BigInt(v)
		}
	})
	rsaPriv, err := inner.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RSA private key: %w", err)
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		addRSAAlgorithm(b)
		b.AddASN1OctetString(rsaPriv)
	})
	return b.Bytes()
}

func (ASN1Provider) ParsePublicKey(der []byte) (JWK, error) {
	input := cryptobyte.String(der)
	var spki, algo cryptobyte.String
	var keyBytes []byte
	if !input.ReadASN1(&spki, asn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&algo, asn1.SEQUENCE) ||
		!spki.ReadASN1BitStringAsBytes(&keyBytes) || !spki.Empty() {
		return JWK{}, fmt.Errorf("%w: malformed SubjectPublicKeyInfo", ErrKeyFormat)
	}
	if err := readRSAAlgorithm(algo); err != nil {
		return JWK{}, err
	}

	ints, err := readIntegerSequence(keyBytes, 2)
	if err != nil {
		return JWK{}, err
	}

	return JWK{
		Kty: KeyTypeRSA,
		N:   EncodeInt(ints[0]),
		E:   EncodeInt(ints[1]),
		Alg: AlgPublic,
		Ext: true,
	}, nil
}

func (ASN1Provider) ParsePrivateKey(der []byte) (JWK, error) {
	input := cryptobyte.String(der)
	var pkcs8, algo, keyBytes cryptobyte.String
	var version int64
	if !input.ReadASN1(&pkcs8, asn1.SEQUENCE) || !input.Empty() ||
		!pkcs8.ReadASN1Integer(&version) ||
		!pkcs8.ReadASN1(&algo, asn1.SEQUENCE) ||
		!pkcs8.ReadASN1(&keyBytes, asn1.OCTET_STRING) {
		return JWK{}, fmt.Errorf("%w: malformed PKCS#8 structure", ErrKeyFormat)
	}
	if version != 0 {
		return JWK{}, fmt.Errorf("%w: unsupported PKCS#8 version %d", ErrKeyFormat, version)
	}
	if err := readRSAAlgorithm(algo); err != nil {
		return JWK{}, err
	}

	// version, n, e, d, p, q, dp, dq, qi
	ints, err := readIntegerSequence(keyBytes, 9)
	if err != nil {
		return JWK{}, err
	}
	if ints[0].Sign() != 0 {
		return JWK{}, fmt.Errorf("%w: multi-prime RSA keys are not supported", ErrKeyFormat)
	}

	return JWK{
		Kty: KeyTypeRSA,
		N:   EncodeInt(ints[1]),
		E:   EncodeInt(ints[2]),
		D:   EncodeInt(ints[3]),
		P:   EncodeInt(ints[4]),
		Q:   EncodeInt(ints[5]),
		DP:  EncodeInt(ints[6]),
		DQ:  EncodeInt(ints[7]),
		QI:  EncodeInt(ints[8]),
		Alg: AlgPrivate,
		Ext: true,
	}, nil
}

func addRSAAlgorithm(b *cryptobyte.Builder) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oidRSAEncryption)
		b.AddASN1NULL()
	})
}

func readRSAAlgorithm(algo cryptobyte.String) error {
	var oid encoding_asn1.ObjectIdentifier
	if !algo.ReadASN1ObjectIdentifier(&oid) {
		return fmt.Errorf("%w: malformed algorithm identifier", ErrKeyFormat)
	}
	if !oid.Equal(oidRSAEncryption) {
		return fmt.Errorf("%w: algorithm %s is not rsaEncryption", ErrKeyFormat, oid)
	}
	if !algo.Empty() {
		var params cryptobyte.String
		if !algo.ReadASN1(&params, asn1.NULL) || !algo.Empty() {
			return fmt.Errorf("%w: unexpected rsaEncryption parameters", ErrKeyFormat)
		}
	}
	return nil
}

// readIntegerSequence reads a SEQUENCE of exactly count non-negative INTEGERs.
func readIntegerSequence(der []byte, count int) ([]*big.Int, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: malformed RSA key sequence", ErrKeyFormat)
	}

	ints := make([]*big.Int, count)
	for i := range ints {
		v := new(big.Int)
		if !seq.ReadASN1Integer(v) {
			return nil, fmt.Errorf("%w: RSA key has %d integers, want %d", ErrKeyFormat, i, count)
		}
		if v.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative key component", ErrKeyFormat)
		}
		ints[i] = v
	}
	if !seq.Empty() {
		return nil, fmt.Errorf("%w: trailing data in RSA key", ErrKeyFormat)
	}
	return ints, nil
}

// X509Provider delegates to crypto/x509. The platform may refuse keys that
// violate its own policy; such failures surface as ErrKeyFormat.
type X509Provider struct{}

func (X509Provider) Name() string { return "x509" }

func (X509Provider) MarshalPublicKey(j JWK) ([]byte, error) {
	pub, err := publicFromJWK(j)
	if err != nil {
		return nil, err
	}
	e, err := exponentToInt(pub.E)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKIXPublicKey(&rsa.PublicKey{N: pub.N, E: e})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return der, nil
}

func (X509Provider) MarshalPrivateKey(j JWK) ([]byte, error) {
	keys, err := privateFromJWK(j)
	if err != nil {
		return nil, err
	}
	e, err := exponentToInt(keys.PublicKey.E)
	if err != nil {
		return nil, err
	}
	crt, err := ComputeCRT(keys.PrivateKey.D, keys.Primes.P, keys.Primes.Q)
	if err != nil {
		return nil, err
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: keys.PublicKey.N, E: e},
		D:         keys.PrivateKey.D,
		Primes:    []*big.Int{keys.Primes.P, keys.Primes.Q},
		Precomputed: rsa.PrecomputedValues{
			Dp:        crt.DP,
			Dq:        crt.DQ,
			Qinv:      crt.QI,
			CRTValues: []rsa.CRTValue{},
		},
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return der, nil
}

func (X509Provider) ParsePublicKey(der []byte) (JWK, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return JWK{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return JWK{}, fmt.Errorf("%w: public key is %T, not RSA", ErrKeyFormat, parsed)
	}

	return JWK{
		Kty: KeyTypeRSA,
		N:   EncodeInt(pub.N),
		E:   EncodeInt(big.NewInt(int64(pub.E))),
		Alg: AlgPublic,
		Ext: true,
	}, nil
}

func (X509Provider) ParsePrivateKey(der []byte) (JWK, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return JWK{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return JWK{}, fmt.Errorf("%w: private key is %T, not RSA", ErrKeyFormat, parsed)
	}
	if len(key.Primes) != 2 {
		return JWK{}, fmt.Errorf("%w: multi-prime RSA keys are not supported", ErrKeyFormat)
	}

	p, q := key.Primes[0], key.Primes[1]
	crt, err := ComputeCRT(key.D, p, q)
	if err != nil {
		return JWK{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	return JWK{
		Kty: KeyTypeRSA,
		N:   EncodeInt(key.N),
		E:   EncodeInt(big.NewInt(int64(key.E))),
		D:   EncodeInt(key.D),
		P:   EncodeInt(p),
		Q:   EncodeInt(q),
		DP:  EncodeInt(crt.DP),
		DQ:  EncodeInt(crt.DQ),
		QI:  EncodeInt(crt.QI),
		Alg: AlgPrivate,
		Ext: true,
	}, nil
}

func exponentToInt(e *big.Int) (int, error) {
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return 0, fmt.Errorf("%w: public exponent %s out of range", ErrKeyFormat, e)
	}
	return int(e.Int64()), nil
}
