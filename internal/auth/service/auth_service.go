// Package service implements the login and logout flows: provider code
// exchange, local user upsert, session creation, refresh token ledger
// writes, and plan-to-role sync.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"identity-session-plane/internal/idp"
	ledgerrepo "identity-session-plane/internal/ledger/repository"
	"identity-session-plane/internal/security"
	sessiondomain "identity-session-plane/internal/session/domain"
	"identity-session-plane/internal/session/store"
	userdomain "identity-session-plane/internal/user/domain"
)

// Sentinel errors for the auth service; handlers map them to HTTP statuses.
var (
	ErrMissingCode = errors.New("authorization code required")
)

// LoginResult holds the outcome of a successful login.
type LoginResult struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// CodeExchanger is the minimal provider client needed by the auth service.
type CodeExchanger interface {
	ExchangeAuthorizationCode(ctx context.Context, code string) (*idp.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	UpsertByExternalID(ctx context.Context, externalID, email string) (*userdomain.User, error)
}

// SessionStore is the minimal session store needed by the auth service.
type SessionStore interface {
	Create(ctx context.Context, userID, accessToken string) (string, error)
	Fetch(ctx context.Context, id string) (sessiondomain.Session, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// TokenLedger is the minimal ledger repository needed by the auth service.
type TokenLedger interface {
	Save(ctx context.Context, userID, sessionID, token string, expiresAt time.Time) error
	FetchValid(ctx context.Context, userID, sessionID string) (string, error)
	RevokeAll(ctx context.Context, userID, sessionID string) error
}

// PlanSyncer pushes the user's plan role to the provider.
type PlanSyncer interface {
	Sync(ctx context.Context, userID, planID string) error
}

// AuthService implements delegated login via authorization code and logout.
type AuthService struct {
	provider   CodeExchanger
	verifier   *security.Verifier
	users      UserRepo
	sessions   SessionStore
	ledger     TokenLedger
	plans      PlanSyncer
	audience   string
	refreshTTL time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	provider CodeExchanger,
	verifier *security.Verifier,
	users UserRepo,
	sessions SessionStore,
	ledger TokenLedger,
	plans PlanSyncer,
	audience string,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		provider:   provider,
		verifier:   verifier,
		users:      users,
		sessions:   sessions,
		ledger:     ledger,
		plans:      plans,
		audience:   audience,
		refreshTTL: refreshTTL,
	}
}

// Login redeems the authorization code, verifies the issued access
// token, upserts the local user, creates the session, and records the
// refresh token in the ledger. Plan sync runs best-effort: a provider
// hiccup there must not block login.
func (s *AuthService) Login(ctx context.Context, code string) (*LoginResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	pair, err := s.provider.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	claims, err := s.verifier.Verify(pair.AccessToken, s.audience)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	u, err := s.users.UpsertByExternalID(ctx, claims.Subject, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("login: upsert user: %w", err)
	}

	sessionID, err := s.sessions.Create(ctx, u.ID, pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("login: create session: %w", err)
	}

	if pair.RefreshToken != "" {
		ttl := s.refreshTTL
		if pair.RefreshExpiresIn > 0 {
			ttl = time.Duration(pair.RefreshExpiresIn) * time.Second
		}
		if err := s.ledger.Save(ctx, u.ID, sessionID, pair.RefreshToken, time.Now().UTC().Add(ttl)); err != nil {
			// Without a ledger entry the session dies with its access
			// token; fail the login rather than hand out a crippled session.
			if _, delErr := s.sessions.Delete(ctx, sessionID); delErr != nil {
				log.Printf("auth: session cleanup after ledger failure: %v", delErr)
			}
			return nil, fmt.Errorf("login: record refresh token: %w", err)
		}
	}

	if s.plans != nil {
		// the synchronizer talks to the provider admin API, keyed by the provider's user id
		if err := s.plans.Sync(ctx, u.ExternalID, u.PlanID); err != nil {
			log.Printf("auth: plan sync failed for user %s: %v", u.ID, err)
		}
	}

	return &LoginResult{
		SessionID: sessionID,
		UserID:    u.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout tears the session down: provider-side token invalidation runs
// best-effort, then the ledger is revoked and the cache record removed.
// Logging out an unknown session is a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	sess, _, err := s.sessions.Fetch(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}

	if refresh, err := s.ledger.FetchValid(ctx, sess.UserID, sessionID); err == nil {
		if err := s.provider.Logout(ctx, refresh); err != nil {
			log.Printf("auth: provider logout failed for session %s: %v", sessionID, err)
		}
	} else if !errors.Is(err, ledgerrepo.ErrNotFound) {
		log.Printf("auth: ledger fetch during logout of session %s: %v", sessionID, err)
	}

	if err := s.ledger.RevokeAll(ctx, sess.UserID, sessionID); err != nil {
		return fmt.Errorf("logout: revoke tokens: %w", err)
	}
	if _, err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("logout: delete session: %w", err)
	}
	return nil
}
