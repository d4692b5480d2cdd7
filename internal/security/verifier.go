package security

import (
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuth is returned when a token fails signature, issuer, or audience checks,
// or when a required claim is absent or malformed.
var ErrAuth = errors.New("authentication failed")

// Claims are the provider-token claims this system reads. Optional fields are
// enumerated explicitly; absence of a required claim fails closed with ErrAuth.
type Claims struct {
	jwt.RegisteredClaims
	Email             string   `json:"email,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Roles             []string `json:"roles,omitempty"`
}

// Verifier validates tokens signed by the external identity provider (RS256 or ES256)
// against the realm public key and expected issuer. The audience differs per surface
// (user access tokens vs machine-to-machine tokens), so it is an argument to Verify.
type Verifier struct {
	publicKey crypto.PublicKey
	issuer    string
}

// NewVerifier parses the realm public key (inline PEM or path) and returns a Verifier.
func NewVerifier(publicKeyPEM, issuer string) (*Verifier, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("security: realm public key: %w", err)
	}
	return &Verifier{publicKey: pub, issuer: issuer}, nil
}

// Verify parses and validates tokenString (signature, exp, issuer, audience) and
// returns its claims. sub and exp are required. All failures map to ErrAuth; the
// token value itself is never included in the error.
func (v *Verifier) Verify(tokenString, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return v.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return v.publicKey, nil
		}
		return nil, ErrAuth
	})
	if err != nil {
		return nil, fmt.Errorf("%w: parse", ErrAuth)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrAuth)
	}
	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrAuth)
	}
	audOK := false
	for _, a := range claims.Audience {
		if a == audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, fmt.Errorf("%w: audience mismatch", ErrAuth)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrAuth)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrAuth)
	}
	return claims, nil
}

// ParseExpiry reads the exp claim from tokenString without verifying the signature.
// The session store uses it only to bound a record's TTL; authenticity is checked
// elsewhere. Absent or non-numeric exp returns ErrAuth.
func ParseExpiry(tokenString string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed token", ErrAuth)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrAuth)
	}
	return claims.ExpiresAt.Time, nil
}
