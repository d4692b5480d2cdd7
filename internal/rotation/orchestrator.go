// Package rotation refreshes access tokens that are about to expire,
// rotating the refresh token ledger alongside the session cache.
package rotation

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
)

// TokenLedger is the minimal ledger repository needed by the orchestrator.
type TokenLedger interface {
	FetchValid(ctx context.Context, userID, sessionID string) (string, error)
	Save(ctx context.Context, userID, sessionID, token string, expiresAt time.Time) error
}

// TokenExchanger is the minimal provider client needed by the orchestrator.
type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*idp.TokenPair, error)
}

// SessionWriter persists the refreshed session record.
type SessionWriter interface {
	Update(ctx context.Context, id string, sess sessiondomain.Session) error
}

// Orchestrator refreshes sessions whose access token is inside the
// refresh window. Refreshing is best-effort: once the ledger has yielded
// a refresh token, any downstream failure falls back to the session as
// it was, and the caller keeps serving the old access token until it
// actually expires.
type Orchestrator struct {
	ledger    TokenLedger
	exchanger TokenExchanger
	sessions  SessionWriter
	verifier  *security.Verifier

	audience   string
	window     time.Duration
	refreshTTL time.Duration

	nowF func() time.Time
}

// NewOrchestrator returns an Orchestrator. Newly issued access tokens are
// checked against verifier and audience before anything is persisted.
// window is how close to expiry an access token must be before a refresh
// is attempted; refreshTTL is the ledger validity recorded for newly
// issued refresh tokens when the provider does not state one.
func NewOrchestrator(ledger TokenLedger, exchanger TokenExchanger, sessions SessionWriter, verifier *security.Verifier, audience string, window, refreshTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		ledger:     ledger,
		exchanger:  exchanger,
		sessions:   sessions,
		verifier:   verifier,
		audience:   audience,
		window:     window,
		refreshTTL: refreshTTL,
		nowF:       time.Now,
	}
}

// MaybeRefresh rotates the session's tokens when its access token
// expires within the refresh window. It returns the session to serve and
// whether it was refreshed.
//
// A ledger miss is the one fatal case: with no valid refresh token on
// record the session cannot outlive its access token, and the caller
// must treat it as compromised-or-dead. Every other failure degrades to
// the unmodified session.
func (o *Orchestrator) MaybeRefresh(ctx context.Context, sessionID string, sess sessiondomain.Session) (sessiondomain.Session, bool, error) {
	if sess.ExpiresAt().Sub(o.nowF()) > o.window {
		return sess, false, nil
	}

	refreshToken, err := o.ledger.FetchValid(ctx, sess.UserID, sessionID)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			return sess, false, fmt.Errorf("refresh session %s: %w", sessionID, err)
		}
		log.Printf("rotation: ledger fetch failed for session %s: %v", sessionID, err)
		return sess, false, nil
	}

	pair, err := o.exchanger.ExchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		log.Printf("rotation: token exchange failed for session %s: %v", sessionID, err)
		return sess, false, nil
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		log.Printf("rotation: incomplete token pair for session %s: %v", sessionID, idp.ErrUpstream)
		return sess, false, nil
	}

	claims, err := o.verifier.Verify(pair.AccessToken, o.audience)
	if err != nil {
		log.Printf("rotation: issued access token rejected for session %s: %v", sessionID, err)
		return sess, false, nil
	}

	ttl := o.refreshTTL
	if pair.RefreshExpiresIn > 0 {
		ttl = time.Duration(pair.RefreshExpiresIn) * time.Second
	}
	if err := o.ledger.Save(ctx, sess.UserID, sessionID, pair.RefreshToken, o.nowF().Add(ttl)); err != nil {
		log.Printf("rotation: ledger save failed for session %s: %v", sessionID, err)
		return sess, false, nil
	}

	next := sessiondomain.Session{
		UserID:      sess.UserID,
		AccessToken: pair.AccessToken,
		AccessExp:   claims.ExpiresAt.Unix(),
	}
	if err := o.sessions.Update(ctx, sessionID, next); err != nil {
		log.Printf("rotation: session update failed for %s: %v", sessionID, err)
		return sess, false, nil
	}
	return next, true, nil
}
