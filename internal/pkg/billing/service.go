package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
)

// Service answers entitlement reads for the web and API layers.
type Service struct {
	repo     Repository
	snapshot SnapshotCache
	now      func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, snapshot SnapshotCache) *Service {
	if snapshot == nil {
		snapshot = NopSnapshotCache{}
	}
	return &Service{repo: repo, snapshot: snapshot, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, snapshot SnapshotCache) *Service {
	return NewService(NewRepository(db), snapshot)
}

// Entitlement returns the user's snapshot, served from the short-lived cache
// when possible. gorm.ErrRecordNotFound is returned when the user has no row.
func (s *Service) Entitlement(ctx context.Context, userID uint) (entitlements.Snapshot, error) {
	if userID == 0 {
		return entitlements.Snapshot{}, ErrUserIDRequired
	}
	if snap, ok, err := s.snapshot.Get(ctx, userID); err != nil {
		log.Warnf("[Billing] Entitlement cache read failed for user %d: %v", userID, err)
	} else if ok {
		snap.IsPro = snap.ActiveAt(s.now())
		return snap, nil
	}
	return s.load(ctx, userID)
}

// Refresh bypasses the cache and reads the store.
func (s *Service) Refresh(ctx context.Context, userID uint) (entitlements.Snapshot, error) {
	if userID == 0 {
		return entitlements.Snapshot{}, ErrUserIDRequired
	}
	if err := s.snapshot.Delete(ctx, userID); err != nil {
		log.Warnf("[Billing] Entitlement cache invalidation failed for user %d: %v", userID, err)
	}
	return s.load(ctx, userID)
}

// EffectivePlan returns the plan the user may use right now, falling back to
// free when the user has no subscription row.
func (s *Service) EffectivePlan(ctx context.Context, userID uint) (entitlements.Plan, error) {
	snap, err := s.Entitlement(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entitlements.PlanFree, nil
		}
		return "", err
	}
	return snap.EffectivePlanAt(s.now()), nil
}

func (s *Service) load(ctx context.Context, userID uint) (entitlements.Snapshot, error) {
	// read the generation first so a webhook landing between the row read and
	// the cache write cannot be masked by the stale row
	gen, genErr := s.snapshot.Generation(ctx, userID)
	if genErr != nil {
		log.Warnf("[Billing] Entitlement cache generation read failed for user %d: %v", userID, genErr)
	}

	sub, err := s.repo.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return entitlements.Snapshot{}, err
	}
	snap := entitlements.FromSubscription(sub, s.now())
	if genErr != nil {
		return snap, nil
	}
	if err := s.snapshot.Set(ctx, userID, snap, gen); err != nil {
		log.Warnf("[Billing] Entitlement cache write failed for user %d: %v", userID, err)
	}
	return snap, nil
}

// planMirrorValue is what a profile's plan_type should hold for a row.
func planMirrorValue(m ProfileMirror, now time.Time) string {
	return string(entitlements.EffectivePlan(m.Plan, m.Status, m.EndDate, now))
}

func samePlan(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
