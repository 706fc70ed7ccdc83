package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSpec  = "*/10 * * * *"
	mirrorRepairBatch = 500
	sweepRunTimeout   = 2 * time.Minute
)

// Sweeper expires lapsed pro rows and repairs drifted profile mirrors.
type Sweeper struct {
	repo     Repository
	snapshot SnapshotCache
	now      func() time.Time
}

func NewSweeper(repo Repository, snapshot SnapshotCache) *Sweeper {
	if snapshot == nil {
		snapshot = NopSnapshotCache{}
	}
	return &Sweeper{repo: repo, snapshot: snapshot, now: time.Now}
}

// ExpireOnce marks active pro rows whose end date has passed as expired.
func (s *Sweeper) ExpireOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireSubscriptions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Sweeper] Expired %d subscriptions", n)
	}
	return n, nil
}

// RepairMirrorsOnce walks all profiles in user id order and rewrites
// plan_type wherever it disagrees with the subscription row.
func (s *Sweeper) RepairMirrorsOnce(ctx context.Context) (int, error) {
	now := s.now()
	repaired := 0
	var after uint
	for {
		rows, err := s.repo.ListProfileMirrors(ctx, after, mirrorRepairBatch)
		if err != nil {
			return repaired, err
		}
		for _, m := range rows {
			after = m.UserID
			want := planMirrorValue(m, now)
			if samePlan(m.PlanType, want) {
				continue
			}
			if err := s.repo.UpdateProfilePlanType(ctx, m.UserID, want); err != nil {
				log.Warnf("[Sweeper] Mirror repair failed for user %d: %v", m.UserID, err)
				continue
			}
			if err := s.snapshot.Delete(ctx, m.UserID); err != nil {
				log.Warnf("[Sweeper] Entitlement cache invalidation failed for user %d: %v", m.UserID, err)
			}
			repaired++
		}
		if len(rows) < mirrorRepairBatch {
			break
		}
	}
	if repaired > 0 {
		log.Infof("[Sweeper] Repaired %d profile plan mirrors", repaired)
	}
	return repaired, nil
}

// RunOnce runs both passes.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if _, err := s.ExpireOnce(ctx); err != nil {
		return err
	}
	_, err := s.RepairMirrorsOnce(ctx)
	return err
}

// Schedule registers the sweeper on c. An empty spec uses DefaultSweepSpec.
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepRunTimeout)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			log.Errorf("[Sweeper] Run failed: %v", err)
		}
	})
}
