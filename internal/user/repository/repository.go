package repository

import (
	"context"
	"errors"

	"identity-session-plane/internal/user/domain"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// Repository defines persistence for local user accounts.
type Repository interface {
	UpsertByExternalID(ctx context.Context, externalID, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePlan(ctx context.Context, id, planID string) error
	UpdateSettings(ctx context.Context, id string, settings map[string]any) error
}
