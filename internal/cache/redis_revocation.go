package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/attachtrack/attachtrack-api/pkg/circuitbreaker"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisRevocationList shares revocations across API instances.
// Lookups go through a circuit breaker so an unreachable Redis fails fast.
type RedisRevocationList struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisRevocationList creates a revocation list backed by client
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "attachtrack:revoked"
	}
	return &RedisRevocationList{
		client:  client,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("redis-revocations")),
		prefix:  prefix,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

func (l *RedisRevocationList) key(jti string) string {
	return l.prefix + ":" + jti
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.client.Set(ctx, l.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked fails closed: a Redis error is returned to the caller, which rejects the token
func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := circuitbreaker.Execute(l.breaker, func() (int64, error) {
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		return l.client.Exists(ctx, l.key(jti)).Result()
	})
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}
