// Package gate decides whether a session may keep serving requests. It
// sits in front of the session store, triggers token rotation for
// sessions close to expiry, and tears down sessions that are past saving.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	ledgerrepo "identity-session-plane/internal/ledger/repository"
	sessiondomain "identity-session-plane/internal/session/domain"
	"identity-session-plane/internal/session/store"
)

type Status int

const (
	StatusValid Status = iota
	StatusExpired
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusNotFound:
		return "not_found"
	}
	return "unknown"
}

// Cleanup reports which teardown steps succeeded for an expired session.
// Both flags false means the session will be retried on its next
// appearance; keys in the cache expire on their own either way.
type Cleanup struct {
	LedgerRevoked  bool
	SessionDeleted bool
}

// Result is the gate's verdict. Session and Refreshed are meaningful
// only for StatusValid; Cleanup only for StatusExpired.
type Result struct {
	Status    Status
	Session   sessiondomain.Session
	Refreshed bool
	Cleanup   Cleanup
}

// SessionStore is the minimal session store needed by the gate.
type SessionStore interface {
	Fetch(ctx context.Context, id string) (sessiondomain.Session, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Refresher rotates tokens for sessions inside the refresh window.
type Refresher interface {
	MaybeRefresh(ctx context.Context, sessionID string, sess sessiondomain.Session) (sessiondomain.Session, bool, error)
}

// LedgerRevoker revokes the session's refresh tokens during teardown.
type LedgerRevoker interface {
	RevokeAll(ctx context.Context, userID, sessionID string) error
}

type Gate struct {
	sessions  SessionStore
	refresher Refresher
	ledger    LedgerRevoker
	nowF      func() time.Time
}

func New(sessions SessionStore, refresher Refresher, ledger LedgerRevoker) *Gate {
	return &Gate{sessions: sessions, refresher: refresher, ledger: ledger, nowF: time.Now}
}

// Validate checks the session and returns one of three verdicts. A
// session whose liveness marker lapsed, whose refresh token ledger came
// up empty, or whose access token is already past expiry is expired:
// the gate then revokes its ledger entries and deletes its cache record,
// best-effort, and reports what it managed in Cleanup. Errors are
// returned only for store failures where no verdict can be given.
func (g *Gate) Validate(ctx context.Context, sessionID string) (Result, error) {
	sess, active, err := g.sessions.Fetch(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Status: StatusNotFound}, nil
		}
		return Result{}, fmt.Errorf("validate session %s: %w", sessionID, err)
	}

	if !active {
		return g.expire(ctx, sessionID, sess), nil
	}

	sess, refreshed, err := g.refresher.MaybeRefresh(ctx, sessionID, sess)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			return g.expire(ctx, sessionID, sess), nil
		}
		return Result{}, err
	}

	if sess.ExpiresAt().Before(g.nowF()) {
		return g.expire(ctx, sessionID, sess), nil
	}
	return Result{Status: StatusValid, Session: sess, Refreshed: refreshed}, nil
}

func (g *Gate) expire(ctx context.Context, sessionID string, sess sessiondomain.Session) Result {
	res := Result{Status: StatusExpired}

	if err := g.ledger.RevokeAll(ctx, sess.UserID, sessionID); err != nil {
		log.Printf("gate: ledger revoke failed for session %s: %v", sessionID, err)
	} else {
		res.Cleanup.LedgerRevoked = true
	}

	if _, err := g.sessions.Delete(ctx, sessionID); err != nil {
		log.Printf("gate: session delete failed for %s: %v", sessionID, err)
	} else {
		res.Cleanup.SessionDeleted = true
	}
	return res
}
