package domain

import "time"

// RefreshToken is one ledger row. Token holds the plaintext refresh token;
// the repository encrypts it before it reaches storage and decrypts it on
// the way out.
type RefreshToken struct {
	ID        string
	UserID    string
	SessionID string
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
