package cache

import (
	"context"
	"time"

	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisInvalidationBus fans principal cache evictions out to every API
// instance over Redis pub/sub
type RedisInvalidationBus struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

var _ InvalidationPublisher = (*RedisInvalidationBus)(nil)

// NewRedisInvalidationBus creates a bus on the given channel
func NewRedisInvalidationBus(client *redis.Client, channel string) *RedisInvalidationBus {
	if channel == "" {
		channel = "attachtrack:principal-invalidations"
	}
	return &RedisInvalidationBus{
		client:  client,
		channel: channel,
		timeout: 250 * time.Millisecond,
	}
}

func (b *RedisInvalidationBus) PublishInvalidation(ctx context.Context, principalID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.client.Publish(ctx, b.channel, principalID).Err()
}

// Listen evicts entries from pc as invalidations arrive until ctx is done.
// Pub/sub drops messages while disconnected, so every (re)subscription
// flushes the whole cache.
func (b *RedisInvalidationBus) Listen(ctx context.Context, pc *PrincipalCache) {
	sub := b.client.Subscribe(ctx, b.channel)
	events := sub.ChannelWithSubscriptions()

	go func() {
		defer func() {
			if err := sub.Close(); err != nil {
				logger.Warn("Failed to close invalidation subscription", zap.Error(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				applyInvalidation(pc, ev)
			}
		}
	}()
}

func applyInvalidation(pc *PrincipalCache, ev interface{}) {
	switch e := ev.(type) {
	case *redis.Message:
		pc.Invalidate(e.Payload)
	case *redis.Subscription:
		if e.Kind == "subscribe" {
			logger.Info("Principal invalidation channel subscribed, flushing cache",
				zap.String("channel", e.Channel))
			pc.Flush()
		}
	}
}
