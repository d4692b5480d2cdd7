// Package security holds the refresh-token cipher and the access-token verifier.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrIntegrity is returned when an encrypted blob is malformed or fails tag verification.
// Decrypt is fail-closed: callers must surface this error, never treat it as "missing".
var ErrIntegrity = errors.New("integrity check failed")

// cipherInfo is the HKDF info string binding derived keys to this use.
const cipherInfo = "isp-refresh-token-cipher-v1"

// Cipher encrypts and decrypts refresh tokens with AES-256-GCM.
// The key is derived from the configured secret via HKDF-SHA256, so the secret
// itself never touches the AEAD directly.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit key from secret and returns a ready Cipher.
// Returns an error if secret is empty or key setup fails.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("security: cipher secret must be set")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(cipherInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("security: derive cipher key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns a self-describing
// blob of three hex segments: nonce:tag:ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("security: nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt parses a nonce:tag:ciphertext blob and opens it. Any structural problem
// (wrong segment count, bad hex, wrong nonce size) or tag verification failure
// returns ErrIntegrity.
func (c *Cipher) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrIntegrity, len(parts))
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce segment", ErrIntegrity)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != c.aead.Overhead() {
		return "", fmt.Errorf("%w: bad tag segment", ErrIntegrity)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext segment", ErrIntegrity)
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: tag verification", ErrIntegrity)
	}
	return string(plaintext), nil
}
