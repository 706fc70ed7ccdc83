package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/app/models"
	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
	"github.com/ManuelReschke/CalcFox/internal/pkg/billing/billingtest"
	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
)

type mapSnapshotCache struct {
	mu    sync.Mutex
	items map[uint]entitlements.Snapshot
	gens  map[uint]int64
}

func newMapSnapshotCache() *mapSnapshotCache {
	return &mapSnapshotCache{items: map[uint]entitlements.Snapshot{}, gens: map[uint]int64{}}
}

func (c *mapSnapshotCache) Get(_ context.Context, userID uint) (entitlements.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[userID]
	return s, ok, nil
}

func (c *mapSnapshotCache) Generation(_ context.Context, userID uint) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *mapSnapshotCache) Set(_ context.Context, userID uint, snap entitlements.Snapshot, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] == gen {
		c.items[userID] = snap
	}
	return nil
}

func (c *mapSnapshotCache) Delete(_ context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
	c.gens[userID]++
	return nil
}

// interleavingRepository runs afterRead once, between the row read and the
// cache write of the service.
type interleavingRepository struct {
	*billingtest.MemoryRepository
	afterRead func()
}

func (r *interleavingRepository) GetSubscriptionByUser(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, err := r.MemoryRepository.GetSubscriptionByUser(ctx, userID)
	if f := r.afterRead; f != nil {
		r.afterRead = nil
		f()
	}
	return sub, err
}

func TestServiceDoesNotCacheRowReadBeforeInvalidation(t *testing.T) {
	mem := billingtest.NewMemoryRepository()
	mem.SeedFreeUser(1)
	cache := newMapSnapshotCache()
	rec := billing.NewReconciler(mem, testSecret, cache)
	repo := &interleavingRepository{MemoryRepository: mem}
	repo.afterRead = func() {
		_, err := rec.Handle(context.Background(), billingtest.SignedDelivery(capturedBody("1", "monthly"), testSecret, "evt_race"))
		require.NoError(t, err)
	}
	svc := billing.NewService(repo, cache)

	snap, err := svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, snap.IsPro, "row was read before the webhook")

	_, cached, _ := cache.Get(context.Background(), 1)
	assert.False(t, cached)

	snap, err = svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, snap.IsPro)
}

func TestServiceEntitlementUsesCache(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	repo.SeedFreeUser(1)
	cache := newMapSnapshotCache()
	svc := billing.NewService(repo, cache)

	snap, err := svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, snap.IsPro)
	assert.Equal(t, entitlements.PlanFree, snap.Plan)

	end := time.Now().AddDate(0, 1, 0)
	sub, _ := repo.Subscription(1)
	sub.Plan, sub.EndDate = models.PlanPro, &end
	repo.PutSubscription(sub)

	snap, err = svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, snap.IsPro, "served from cache")

	snap, err = svc.Refresh(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, snap.IsPro)
	assert.Equal(t, entitlements.PlanPro, snap.Plan)
}

func TestServiceReconcileInvalidatesCache(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	repo.SeedFreeUser(1)
	cache := newMapSnapshotCache()
	svc := billing.NewService(repo, cache)
	rec := billing.NewReconciler(repo, testSecret, cache)

	_, err := svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)

	_, err = rec.Handle(context.Background(), billingtest.SignedDelivery(capturedBody("1", "monthly"), testSecret, "evt_s"))
	require.NoError(t, err)

	snap, err := svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, snap.IsPro)
}

func TestServiceCachedSnapshotStopsGrantingAfterEnd(t *testing.T) {
	cache := newMapSnapshotCache()
	past := time.Now().Add(-time.Second)
	cache.items[1] = entitlements.Snapshot{UserID: 1, Plan: entitlements.PlanPro, Status: models.SubscriptionStatusActive, EndDate: &past, IsPro: true}
	svc := billing.NewService(billingtest.NewMemoryRepository(), cache)

	snap, err := svc.Entitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, snap.IsPro)
}

func TestServiceEffectivePlan(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	svc := billing.NewService(repo, nil)

	plan, err := svc.EffectivePlan(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanFree, plan)

	_, err = svc.Entitlement(context.Background(), 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = svc.Entitlement(context.Background(), 0)
	assert.ErrorIs(t, err, billing.ErrUserIDRequired)
}
