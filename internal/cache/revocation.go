package cache

import (
	"context"
	"time"

	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	gocache "github.com/patrickmn/go-cache"
)

const (
	revokedKeyPrefix = "revoked:"
	cleanupInterval  = time.Minute
)

// RevocationList records token ids that must be rejected before their natural expiry
type RevocationList interface {
	// Revoke denies jti until the given time
	Revoke(ctx context.Context, jti string, until time.Time) error
	// IsRevoked reports whether jti has been revoked
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocationList keeps revoked ids in process. Entries expire with the token.
type MemoryRevocationList struct {
	cache *gocache.Cache
	now   func() time.Time
}

// NewMemoryRevocationList creates an in-process revocation list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	l.cache.Set(revokedKeyPrefix+jti, struct{}{}, ttl)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, found := l.cache.Get(revokedKeyPrefix + jti)
	if found {
		metrics.CacheHits.WithLabelValues("revocation").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("revocation").Inc()
	}
	return found, nil
}
