package rsakey

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/user/lcgrsa/internal/modmath"
)

// Encrypt computes c = m^e mod n where m is msg read as a big-endian
// unsigned integer. No padding is applied and m >= n is not rejected: such a
// message wraps and will not decrypt to the original bytes. Use Fits to check.
func Encrypt(msg []byte, pub PublicKey) (*big.Int, error) {
	m := new(big.Int).SetBytes(msg)
	c, err := modmath.ModPow(m, pub.E, pub.N)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return c, nil
}

func EncryptString(msg string, pub PublicKey) (*big.Int, error) {
	return Encrypt([]byte(msg), pub)
}

// Decrypt computes m = c^d mod n and returns m's minimal big-endian bytes.
func Decrypt(c *big.Int, priv PrivateKey) ([]byte, error) {
	m, err := modmath.ModPow(c, priv.D, priv.N)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return m.Bytes(), nil
}

// DecryptString decrypts and interprets the result as UTF-8 text.
func DecryptString(c *big.Int, priv PrivateKey) (string, error) {
	b, err := Decrypt(c, priv)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Fits reports whether msg encodes to an integer smaller than n, i.e. whether
// it survives an encrypt/decrypt round trip.
func Fits(msg []byte, pub PublicKey) bool {
	return new(big.Int).SetBytes(msg).Cmp(pub.N) < 0
}

// CiphertextToBase64 encodes c's big-endian bytes with standard base64. Zero
// is encoded as a single zero byte.
func CiphertextToBase64(c *big.Int) string {
	b := c.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	return base64.StdEncoding.EncodeToString(b)
}

// CiphertextFromBase64 is the inverse of CiphertextToBase64.
func CiphertextFromBase64(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty ciphertext", modmath.ErrInvalidArgument)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext is not valid base64: %v", modmath.ErrInvalidArgument, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: ciphertext decodes to nothing", modmath.ErrInvalidArgument)
	}
	return new(big.Int).SetBytes(raw), nil
}
