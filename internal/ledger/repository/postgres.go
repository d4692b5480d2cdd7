package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"identity-session-plane/internal/security"
)

type PostgresRepository struct {
	db     *sql.DB
	cipher *security.Cipher
}

// NewPostgresRepository returns a ledger repository backed by the given db.
// Tokens are encrypted with cipher before insert.
func NewPostgresRepository(db *sql.DB, cipher *security.Cipher) *PostgresRepository {
	return &PostgresRepository{db: db, cipher: cipher}
}

// Save records a freshly issued refresh token for the user and session.
// Any still-live tokens for the pair are revoked first so at most one
// generation is valid at a time. The two statements are deliberately not
// wrapped in a transaction: a crash between them leaves the session with
// no valid token, which fails closed rather than leaving two live ones.
func (r *PostgresRepository) Save(ctx context.Context, userID, sessionID, token string, expiresAt time.Time) error {
	encrypted, err := r.cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := time.Now().UTC()
	if err := r.revokeLive(ctx, userID, sessionID, now); err != nil {
		return fmt.Errorf("revoke prior tokens: %w", err)
	}

	const q = `
INSERT INTO refresh_tokens (id, user_id, session_id, encrypted_token, expires_at, revoked, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6);
`
	if _, err := r.db.ExecContext(ctx, q, uuid.New().String(), userID, sessionID, encrypted, expiresAt.UTC(), now); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FetchValid returns the plaintext of the newest non-revoked, non-expired
// refresh token for the user and session. It returns ErrNotFound when no
// such row exists, and an error wrapping security.ErrIntegrity when the
// stored blob does not decrypt. A row that fails decryption is never
// returned in any form.
func (r *PostgresRepository) FetchValid(ctx context.Context, userID, sessionID string) (string, error) {
	const q = `
SELECT encrypted_token
FROM refresh_tokens
WHERE user_id = $1 AND session_id = $2 AND NOT revoked AND expires_at > $3
ORDER BY created_at DESC
LIMIT 1;
`
	var encrypted string
	if err := r.db.QueryRowContext(ctx, q, userID, sessionID, time.Now().UTC()).Scan(&encrypted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	token, err := r.cipher.Decrypt(encrypted)
	if err != nil {
		return "", err
	}
	return token, nil
}

// RevokeAll marks every live refresh token for the user and session as
// revoked. Calling it when none are live is a no-op, not an error.
func (r *PostgresRepository) RevokeAll(ctx context.Context, userID, sessionID string) error {
	if err := r.revokeLive(ctx, userID, sessionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *PostgresRepository) revokeLive(ctx context.Context, userID, sessionID string, at time.Time) error {
	const q = `
UPDATE refresh_tokens
SET revoked = TRUE, updated_at = $3
WHERE user_id = $1 AND session_id = $2 AND NOT revoked;
`
	_, err := r.db.ExecContext(ctx, q, userID, sessionID, at)
	return err
}
