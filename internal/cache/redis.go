// Package cache opens the shared Redis client used by the session store and the
// machine-token cache.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open creates a Redis client for addr and verifies connectivity with a short ping.
// Caller must call Close when done. password may be empty for unauthenticated Redis.
func Open(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
