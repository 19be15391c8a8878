package cache

import (
	"context"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const principalKeyPrefix = "principal:id:"

// InvalidationPublisher tells other API instances that a principal changed
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, principalID string) error
}

// PrincipalCache fronts a PrincipalStore for id lookups made on every
// authenticated request. Writes go through to the store and evict the entry,
// locally and, with a publisher, on every other instance.
type PrincipalCache struct {
	repository.PrincipalStore
	cache     *gocache.Cache
	ttl       time.Duration
	publisher InvalidationPublisher
}

var _ repository.PrincipalStore = (*PrincipalCache)(nil)

// NewPrincipalCache wraps store with a lookup cache of the given ttl
func NewPrincipalCache(store repository.PrincipalStore, ttl time.Duration) *PrincipalCache {
	return &PrincipalCache{
		PrincipalStore: store,
		cache:          gocache.New(ttl, cleanupInterval),
		ttl:            ttl,
	}
}

// GetByID serves from cache, falling back to the store on a miss
func (pc *PrincipalCache) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	key := principalKeyPrefix + id

	if data, found := pc.cache.Get(key); found {
		if p, ok := data.(models.Principal); ok {
			metrics.CacheHits.WithLabelValues("principal_by_id").Inc()
			return &p, nil
		}
		logger.Error("Invalid cache data type", zap.String("principal_id", id))
		pc.cache.Delete(key)
	}
	metrics.CacheMisses.WithLabelValues("principal_by_id").Inc()

	p, err := pc.PrincipalStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pc.cache.Set(key, *p, pc.ttl)
	return p, nil
}

// SetPublisher broadcasts evictions to other instances
func (pc *PrincipalCache) SetPublisher(p InvalidationPublisher) {
	pc.publisher = p
}

func (pc *PrincipalCache) UpdateSecretHash(ctx context.Context, id, secretHash string, at time.Time) error {
	defer pc.evict(ctx, id)
	return pc.PrincipalStore.UpdateSecretHash(ctx, id, secretHash, at)
}

func (pc *PrincipalCache) SetActive(ctx context.Context, id string, active bool, at time.Time) (*models.Principal, error) {
	defer pc.evict(ctx, id)
	return pc.PrincipalStore.SetActive(ctx, id, active, at)
}

// Invalidate drops the cached entry for id
func (pc *PrincipalCache) Invalidate(id string) {
	pc.cache.Delete(principalKeyPrefix + id)
}

// Flush drops every cached principal
func (pc *PrincipalCache) Flush() {
	pc.cache.Flush()
}

func (pc *PrincipalCache) evict(ctx context.Context, id string) {
	pc.Invalidate(id)
	if pc.publisher == nil {
		return
	}
	if err := pc.publisher.PublishInvalidation(context.WithoutCancel(ctx), id); err != nil {
		// Peers fall back to the entry ttl
		logger.Warn("Failed to publish principal invalidation",
			zap.String("principal_id", id),
			zap.Duration("ttl", pc.ttl),
			zap.Error(err))
	}
}
