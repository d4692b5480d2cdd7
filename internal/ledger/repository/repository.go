package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no live refresh token exists for the
// requested user and session.
var ErrNotFound = errors.New("refresh token not found")

// Repository defines persistence for the refresh token ledger.
//
// The ledger is append-mostly: rotation revokes the prior generation and
// inserts the new one, and revocation only flips a flag. Rows are never
// deleted so the trail stays auditable.
type Repository interface {
	Save(ctx context.Context, userID, sessionID, token string, expiresAt time.Time) error
	FetchValid(ctx context.Context, userID, sessionID string) (string, error)
	RevokeAll(ctx context.Context, userID, sessionID string) error
}
