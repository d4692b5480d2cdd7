package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const machineTokenKey = "idp:machine-token"

// expiry margin keeps us from handing out a token about to lapse mid-call
const machineTokenMargin = 30 * time.Second

// MachineTokenSource caches the service's client_credentials token in
// Redis so concurrent processes share one grant instead of hammering the
// provider.
type MachineTokenSource struct {
	client *Client
	cache  *redis.Client
}

func NewMachineTokenSource(client *Client, cache *redis.Client) *MachineTokenSource {
	return &MachineTokenSource{client: client, cache: cache}
}

// Token returns a valid machine access token, reusing the cached one
// while it has life left and fetching a fresh grant otherwise.
func (s *MachineTokenSource) Token(ctx context.Context) (string, error) {
	cached, err := s.cache.Get(ctx, machineTokenKey).Result()
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("machine token cache: %w", err)
	}

	pair, err := s.client.ExchangeClientCredentials(ctx)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(pair.ExpiresIn)*time.Second - machineTokenMargin
	if ttl > 0 {
		if err := s.cache.Set(ctx, machineTokenKey, pair.AccessToken, ttl).Err(); err != nil {
			return "", fmt.Errorf("machine token cache: %w", err)
		}
	}
	return pair.AccessToken, nil
}

// Invalidate drops the cached token, forcing the next Token call to
// obtain a fresh grant. Used after the provider rejects the cached one.
func (s *MachineTokenSource) Invalidate(ctx context.Context) error {
	return s.cache.Del(ctx, machineTokenKey).Err()
}
