package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Asymmetric wraps PINs with RSA-OAEP (SHA-256 digest, MGF1-SHA-256, empty label).
// Decryption requires the private key, so the server can recover the PIN for comparison.
type Asymmetric struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
	rand io.Reader
}

// NewAsymmetric parses PEM encoded key material. The private key may be PKCS#8 or PKCS#1;
// the public key may be PKIX or PKCS#1.
func NewAsymmetric(privatePEM, publicPEM []byte) (*Asymmetric, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrKeyLoad)
	}
	return &Asymmetric{priv: priv, pub: pub, rand: rand.Reader}, nil
}

// NewAsymmetricFromBase64 accepts the base64-wrapped PEM blobs used in configuration.
func NewAsymmetricFromBase64(privateB64, publicB64 string) (*Asymmetric, error) {
	privatePEM, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privateB64))
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not valid base64", ErrKeyLoad)
	}
	publicPEM, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicB64))
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not valid base64", ErrKeyLoad)
	}
	return NewAsymmetric(privatePEM, publicPEM)
}

// KeySize returns the modulus size in bytes, which is also the ciphertext length.
func (a *Asymmetric) KeySize() int {
	return a.pub.Size()
}

// MaxPINLength is the OAEP plaintext limit k - 2*hLen - 2.
func (a *Asymmetric) MaxPINLength() int {
	return a.KeySize() - 2*sha256.Size - 2
}

// EncryptPIN returns base64(OAEP(pin)).
func (a *Asymmetric) EncryptPIN(pin string) (string, error) {
	if !isDigits(pin) {
		return "", ErrInvalidPinFormat
	}
	if len(pin) > a.MaxPINLength() {
		return "", fmt.Errorf("%w: pin longer than %d digits", ErrInvalidPinFormat, a.MaxPINLength())
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), a.rand, a.pub, []byte(pin), nil)
	if err != nil {
		return "", fmt.Errorf("encrypt pin: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptPIN tolerates embedded whitespace and missing base64 padding.
func (a *Asymmetric) DecryptPIN(encoded string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, encoded)
	if rem := len(cleaned) % 4; rem != 0 {
		cleaned += strings.Repeat("=", 4-rem)
	}

	ct, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrPinDecryption, err)
	}
	if len(ct) != a.KeySize() {
		return "", fmt.Errorf("%w: %w: got %d bytes, want %d", ErrPinDecryption, ErrCiphertextLengthMismatch, len(ct), a.KeySize())
	}

	plain, err := rsa.DecryptOAEP(sha256.New(), nil, a.priv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPinDecryption, err)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", ErrPinDecryption)
	}
	return string(plain), nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: private key pem block not found", ErrKeyLoad)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is not rsa", ErrKeyLoad)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrKeyLoad, err)
	}
	return key, nil
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: public key pem block not found", ErrKeyLoad)
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: public key is not rsa", ErrKeyLoad)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrKeyLoad, err)
	}
	return key, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
