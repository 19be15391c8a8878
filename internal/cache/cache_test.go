package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/database/memory"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationList(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRevocationList()

	revoked, err := l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, l.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Already-expired tokens need no entry
	require.NoError(t, l.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute)))
	revoked, err = l.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) PublishInvalidation(_ context.Context, id string) error {
	p.ids = append(p.ids, id)
	return p.err
}

func newCachedStore(t *testing.T) (*memory.PrincipalStore, *PrincipalCache) {
	t.Helper()
	store := memory.NewPrincipalStore()
	require.NoError(t, store.Create(context.Background(), &models.Principal{
		ID: "p1", Role: models.RoleStudent, Email: "s@uni.edu", Active: true,
	}, models.EmailScopeRole))
	return store, NewPrincipalCache(store, time.Minute)
}

func TestPrincipalCache_PublishesEvictions(t *testing.T) {
	ctx := context.Background()
	_, pc := newCachedStore(t)
	pub := &recordingPublisher{}
	pc.SetPublisher(pub)

	_, err := pc.SetActive(ctx, "p1", false, time.Now())
	require.NoError(t, err)
	require.NoError(t, pc.UpdateSecretHash(ctx, "p1", "hash", time.Now()))

	assert.Equal(t, []string{"p1", "p1"}, pub.ids)
}

func TestPrincipalCache_PublishFailureStillEvictsLocally(t *testing.T) {
	ctx := context.Background()
	_, pc := newCachedStore(t)
	pc.SetPublisher(&recordingPublisher{err: errors.New("redis down")})

	_, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)

	_, err = pc.SetActive(ctx, "p1", false, time.Now())
	require.NoError(t, err)

	p, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.Active)
}

// A peer instance writes to the shared store; the local cache only sees
// the change once the invalidation is delivered
func TestApplyInvalidation_EvictsPeerWrites(t *testing.T) {
	ctx := context.Background()
	store, pc := newCachedStore(t)

	_, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)

	_, err = store.SetActive(ctx, "p1", false, time.Now())
	require.NoError(t, err)

	p, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Active, "stale until invalidated")

	applyInvalidation(pc, &redis.Message{Channel: "inv", Payload: "p1"})

	p, err = pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestApplyInvalidation_SubscribeFlushes(t *testing.T) {
	ctx := context.Background()
	store, pc := newCachedStore(t)

	_, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	_, err = store.SetActive(ctx, "p1", false, time.Now())
	require.NoError(t, err)

	applyInvalidation(pc, &redis.Subscription{Kind: "subscribe", Channel: "inv", Count: 1})

	p, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestPrincipalCache_InvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPrincipalStore()
	require.NoError(t, store.Create(ctx, &models.Principal{
		ID: "p1", Role: models.RoleStudent, Email: "s@uni.edu", Active: true,
	}, models.EmailScopeRole))

	pc := NewPrincipalCache(store, time.Minute)

	p, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Active)

	_, err = pc.SetActive(ctx, "p1", false, time.Now())
	require.NoError(t, err)

	p, err = pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestPrincipalCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPrincipalStore()
	require.NoError(t, store.Create(ctx, &models.Principal{ID: "p1", Role: models.RoleStudent, Email: "s@uni.edu", Active: true}, models.EmailScopeRole))

	pc := NewPrincipalCache(store, time.Minute)
	first, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	first.Active = false

	second, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, second.Active)
}
