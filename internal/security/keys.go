package security

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParsePublicKey parses the provider realm public key (RSA or ECDSA PEM).
// s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). Only tests sign
// tokens in this codebase; production tokens are signed by the identity provider.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}
