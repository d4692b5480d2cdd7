package security

import (
	"errors"
	"strings"
	"testing"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	cases := []string{
		"",
		"a",
		"refresh-token-value",
		strings.Repeat("x", 4096),
		"bytes \x00\x01\xff with non-printables",
	}
	for _, plaintext := range cases {
		blob, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes): %v", len(plaintext), err)
		}
		if got := strings.Count(blob, ":"); got != 2 {
			t.Fatalf("blob should have 3 segments, got %d separators", got)
		}
		out, err := c.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if out != plaintext {
			t.Errorf("round-trip mismatch for %d-byte plaintext", len(plaintext))
		}
	}
}

func TestCipher_FreshNoncePerCall(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	a, _ := c.Encrypt("same plaintext")
	b, _ := c.Encrypt("same plaintext")
	if a == b {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestCipher_TamperAnySegmentFails(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	blob, err := c.Encrypt("token-to-protect")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	segments := strings.Split(blob, ":")
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}

	for i := range segments {
		mutated := make([]string, 3)
		copy(mutated, segments)
		// Flip one nibble of the segment's first hex char.
		if mutated[i] == "" {
			t.Fatalf("segment %d is empty", i)
		}
		if mutated[i][0] == '0' {
			mutated[i] = "1" + mutated[i][1:]
		} else {
			mutated[i] = "0" + mutated[i][1:]
		}
		if _, err := c.Decrypt(strings.Join(mutated, ":")); !errors.Is(err, ErrIntegrity) {
			t.Errorf("tampered segment %d: err = %v, want ErrIntegrity", i, err)
		}
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c1, _ := NewCipher("secret-one")
	c2, _ := NewCipher("secret-two")
	blob, err := c1.Encrypt("token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(blob); !errors.Is(err, ErrIntegrity) {
		t.Errorf("decrypt with wrong key: err = %v, want ErrIntegrity", err)
	}
}

func TestCipher_MalformedBlob(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	cases := []struct {
		name string
		blob string
	}{
		{"empty", ""},
		{"one segment", "deadbeef"},
		{"two segments", "deadbeef:cafebabe"},
		{"four segments", "de:ad:be:ef"},
		{"non-hex nonce", "zzzz:cafebabe:00"},
		{"short nonce", "deadbeef:00000000000000000000000000000000:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := c.Decrypt(tc.blob)
			if !errors.Is(err, ErrIntegrity) {
				t.Errorf("Decrypt(%q): err = %v, want ErrIntegrity", tc.blob, err)
			}
			if out != "" {
				t.Errorf("Decrypt(%q) returned %q, want empty on failure", tc.blob, out)
			}
		})
	}
}

func TestNewCipher_EmptySecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Fatal("NewCipher with empty secret should fail")
	}
}
