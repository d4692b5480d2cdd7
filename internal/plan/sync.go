// Package plan keeps a user's realm role at the identity provider in
// step with their billing plan.
package plan

import (
	"context"
	"errors"
	"fmt"

	"identity-session-plane/internal/idp"
)

// ErrUnmappedPlan is returned when no role is configured for a plan.
var ErrUnmappedPlan = errors.New("no role mapped for plan")

// TokenSource supplies a machine token for admin API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RoleManager is the minimal provider client needed by the synchronizer.
type RoleManager interface {
	GetUserRole(ctx context.Context, adminToken, userID string) (*idp.Role, error)
	GetRoleByName(ctx context.Context, adminToken, name string) (*idp.Role, error)
	ReplaceUserRole(ctx context.Context, adminToken, userID string, role idp.Role) error
}

// Synchronizer maps plans onto realm roles through a static table fixed
// at construction. Sync is idempotent: when the provider already has the
// desired role mapped, nothing is written.
type Synchronizer struct {
	roles    RoleManager
	tokens   TokenSource
	planRole map[string]string
}

func NewSynchronizer(roles RoleManager, tokens TokenSource, planRole map[string]string) *Synchronizer {
	return &Synchronizer{roles: roles, tokens: tokens, planRole: planRole}
}

// Sync makes the user's provider role match planID. userID is the
// provider's user id, not the local account id. Errors pass through
// unwrapped enough for callers to test against idp.ErrPartialReplace,
// which means the old role was removed but the new one was not assigned
// and the call should be retried.
func (s *Synchronizer) Sync(ctx context.Context, userID, planID string) error {
	want, ok := s.planRole[planID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnmappedPlan, planID)
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("plan sync for user %s: %w", userID, err)
	}

	current, err := s.roles.GetUserRole(ctx, token, userID)
	if err != nil && !errors.Is(err, idp.ErrNoRole) {
		return fmt.Errorf("plan sync for user %s: %w", userID, err)
	}
	if current != nil && current.Name == want {
		return nil
	}

	role, err := s.roles.GetRoleByName(ctx, token, want)
	if err != nil {
		return fmt.Errorf("plan sync for user %s: resolve role %q: %w", userID, want, err)
	}
	if err := s.roles.ReplaceUserRole(ctx, token, userID, *role); err != nil {
		return fmt.Errorf("plan sync for user %s: %w", userID, err)
	}
	return nil
}
