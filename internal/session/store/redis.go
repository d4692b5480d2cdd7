// Package store persists sessions in Redis with a sliding inactivity window.
//
// Each session writes two keys: "session:<id>" holds the record itself and
// "session:<id>:active" is a content-free liveness marker with its own TTL.
// A present record with a missing marker means the session is logically
// inactive even though the store has not yet evicted it; a missing record
// means the session is unknown or hard-expired.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"identity-session-plane/internal/security"
	"identity-session-plane/internal/session/domain"
)

// ErrNotFound is returned by Fetch when no record exists for the session id.
var ErrNotFound = errors.New("session not found")

const (
	keyPrefix    = "session:"
	markerSuffix = ":active"
)

// minTTL keeps record TTLs strictly positive even for tokens at or past expiry.
const minTTL = time.Second

// Store is the Redis-backed session store.
type Store struct {
	client            *redis.Client
	maxTTL            time.Duration
	inactivityTimeout time.Duration
	refreshThreshold  time.Duration
	nowF              func() time.Time
}

// New returns a Store. maxTTL caps the record lifetime, inactivityTimeout is the
// sliding window, and refreshThreshold is the remaining marker TTL below which a
// Fetch re-arms the window.
func New(client *redis.Client, maxTTL, inactivityTimeout, refreshThreshold time.Duration) *Store {
	return &Store{
		client:            client,
		maxTTL:            maxTTL,
		inactivityTimeout: inactivityTimeout,
		refreshThreshold:  refreshThreshold,
		nowF:              time.Now,
	}
}

func recordKey(id string) string { return keyPrefix + id }
func markerKey(id string) string { return keyPrefix + id + markerSuffix }

// Create stores a new session for userID and returns its opaque id. The record
// TTL is the smaller of maxTTL and the access token's remaining lifetime, with a
// floor of one second; the liveness marker gets the full inactivity timeout.
// A token without a readable exp claim fails with security.ErrAuth.
func (s *Store) Create(ctx context.Context, userID, accessToken string) (string, error) {
	exp, err := security.ParseExpiry(accessToken)
	if err != nil {
		return "", err
	}

	ttl := s.maxTTL
	if remaining := exp.Sub(s.nowF()); remaining < ttl {
		ttl = remaining
	}
	if ttl < minTTL {
		ttl = minTTL
	}

	id := uuid.New().String()
	payload, err := json.Marshal(domain.Session{
		UserID:      userID,
		AccessToken: accessToken,
		AccessExp:   exp.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("session: marshal: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(id), payload, ttl)
	pipe.Set(ctx, markerKey(id), "1", s.inactivityTimeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("session: create %s: %w", id, err)
	}
	return id, nil
}

// Fetch reads the session record and its liveness state. A missing record
// returns ErrNotFound. A missing marker returns active=false with the record
// intact, signalling inactivity expiry to the caller. When the marker's
// remaining TTL drops below the refresh threshold it is re-armed to the full
// inactivity timeout; doing this lazily on read keeps write traffic down.
func (s *Store) Fetch(ctx context.Context, id string) (domain.Session, bool, error) {
	var sess domain.Session

	raw, err := s.client.Get(ctx, recordKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return sess, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return sess, false, fmt.Errorf("session: fetch %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return sess, false, fmt.Errorf("session: decode %s: %w", id, err)
	}

	remaining, err := s.client.PTTL(ctx, markerKey(id)).Result()
	if err != nil {
		return sess, false, fmt.Errorf("session: marker %s: %w", id, err)
	}
	if remaining <= 0 {
		// Marker gone (or lost its TTL): logically inactive.
		return sess, false, nil
	}
	if remaining < s.refreshThreshold {
		if err := s.client.Expire(ctx, markerKey(id), s.inactivityTimeout).Err(); err != nil {
			return sess, false, fmt.Errorf("session: slide marker %s: %w", id, err)
		}
	}
	return sess, true, nil
}

// Update overwrites the session record and resets its TTL to the configured
// maximum. Used after rotation, where the new access token's lifetime is
// always shorter than maxTTL.
func (s *Store) Update(ctx context.Context, id string, sess domain.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(id), payload, s.maxTTL).Err(); err != nil {
		return fmt.Errorf("session: update %s: %w", id, err)
	}
	return nil
}

// Delete removes the session record and its liveness marker. Returns whether
// anything was actually removed; deleting an absent session is a no-op, not an
// error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, recordKey(id), markerKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("session: delete %s: %w", id, err)
	}
	return n > 0, nil
}
