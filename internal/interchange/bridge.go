package interchange

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/user/lcgrsa/internal/rsakey"
)

// ErrKeyFormat is returned for malformed PEM, base64 or key records.
var ErrKeyFormat = errors.New("invalid key format")

const (
	LabelPublic  = "PUBLIC KEY"
	LabelPrivate = "PRIVATE KEY"

	lineWidth = 64
)

// PEMPair holds the exported public (SPKI) and private (PKCS#8) keys.
type PEMPair struct {
	PublicPEM  string `json:"public_key"`
	PrivatePEM string `json:"private_key"`
}

// Bridge converts between key components and PEM text using a Provider for
// the binary encodings.
type Bridge struct {
	provider Provider
}

// NewBridge returns a bridge backed by provider, or by ASN1Provider when nil.
func NewBridge(provider Provider) *Bridge {
	if provider == nil {
		provider = ASN1Provider{}
	}
	return &Bridge{provider: provider}
}

func (b *Bridge) Provider() Provider {
	return b.provider
}

// Export encodes keys as a public/private PEM pair.
func (b *Bridge) Export(keys *rsakey.Keys) (PEMPair, error) {
	pub, err := b.ExportPublic(keys.PublicKey)
	if err != nil {
		return PEMPair{}, err
	}

	jwk, err := PrivateJWK(keys)
	if err != nil {
		return PEMPair{}, err
	}
	der, err := b.provider.MarshalPrivateKey(jwk)
	if err != nil {
		return PEMPair{}, fmt.Errorf("failed to encode private key: %w", err)
	}

	return PEMPair{
		PublicPEM:  EncodePEM(LabelPublic, pub),
		PrivatePEM: EncodePEM(LabelPrivate, der),
	}, nil
}

// ExportPublic returns the SPKI DER of pub.
func (b *Bridge) ExportPublic(pub rsakey.PublicKey) ([]byte, error) {
	der, err := b.provider.MarshalPublicKey(PublicJWK(pub))
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return der, nil
}

// Import reconstructs key components from a PEM pair. The moduli of both
// halves must agree.
func (b *Bridge) Import(publicPEM, privatePEM string) (*rsakey.Keys, error) {
	pub, err := b.ImportPublic(publicPEM)
	if err != nil {
		return nil, err
	}

	der, err := DecodePEM(LabelPrivate, privatePEM)
	if err != nil {
		return nil, err
	}
	jwk, err := b.provider.ParsePrivateKey(der)
	if err != nil {
		return nil, wrapKeyFormat(err)
	}
	keys, err := privateFromJWK(jwk)
	if err != nil {
		return nil, err
	}

	if keys.PublicKey.N.Cmp(pub.N) != 0 || keys.PublicKey.E.Cmp(pub.E) != 0 {
		return nil, fmt.Errorf("%w: public and private keys do not belong together", ErrKeyFormat)
	}
	return keys, nil
}

// ImportPublic decodes a public PEM block.
func (b *Bridge) ImportPublic(publicPEM string) (rsakey.PublicKey, error) {
	der, err := DecodePEM(LabelPublic, publicPEM)
	if err != nil {
		return rsakey.PublicKey{}, err
	}
	jwk, err := b.provider.ParsePublicKey(der)
	if err != nil {
		return rsakey.PublicKey{}, wrapKeyFormat(err)
	}
	return publicFromJWK(jwk)
}

func wrapKeyFormat(err error) error {
	if errors.Is(err, ErrKeyFormat) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrKeyFormat, err)
}

// EncodePEM frames der as "-----BEGIN label-----", base64 lines of 64
// characters and "-----END label-----", joined by newlines with no trailing
// newline.
func EncodePEM(label string, der []byte) string {
	b64 := base64.StdEncoding.EncodeToString(der)

	lines := make([]string, 0, len(b64)/lineWidth+3)
	lines = append(lines, "-----BEGIN "+label+"-----")
	for len(b64) > lineWidth {
		lines = append(lines, b64[:lineWidth])
		b64 = b64[lineWidth:]
	}
	if b64 != "" {
		lines = append(lines, b64)
	}
	lines = append(lines, "-----END "+label+"-----")

	return strings.Join(lines, "\n")
}

// DecodePEM strips the framing lines for label and all whitespace, then
// base64-decodes the body.
func DecodePEM(label, text string) ([]byte, error) {
	begin := "-----BEGIN " + label + "-----"
	end := "-----END " + label + "-----"

	start := strings.Index(text, begin)
	if start < 0 {
		return nil, fmt.Errorf("%w: missing %q header", ErrKeyFormat, begin)
	}
	body := text[start+len(begin):]
	stop := strings.Index(body, end)
	if stop < 0 {
		return nil, fmt.Errorf("%w: missing %q footer", ErrKeyFormat, end)
	}
	body = strings.Join(strings.Fields(body[:stop]), "")
	if body == "" {
		return nil, fmt.Errorf("%w: empty %s block", ErrKeyFormat, label)
	}
	if strings.Contains(body, "-----") {
		return nil, fmt.Errorf("%w: nested PEM framing in %s block", ErrKeyFormat, label)
	}

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 in %s block: %v", ErrKeyFormat, label, err)
	}
	return der, nil
}
