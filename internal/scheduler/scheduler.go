// Package scheduler owns the daily MRR snapshot job. Detection scans are
// strictly request-triggered; the snapshot is the only background write.
package scheduler

import (
	"context"
	"time"

	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	obsmetrics "github.com/moneyradar/moneyradar/internal/observability/metrics"
	"github.com/moneyradar/moneyradar/internal/ratelimit"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const snapshotLockKey = "scheduler:mrr_snapshot"

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	RevenueSvc revenuedomain.Service
	Locker     *ratelimit.Locker   `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Scheduler ticks on a fixed interval and computes the snapshot for the
// current UTC date. The computation is idempotent, so waking more than once
// a day is harmless.
type Scheduler struct {
	log        *zap.Logger
	cfg        config.SchedulerConfig
	lockTTL    time.Duration
	clock      clock.Clock
	revenueSvc revenuedomain.Service
	locker     *ratelimit.Locker
	metrics    *obsmetrics.Metrics
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.Scheduler,
		lockTTL:    time.Duration(p.Config.RateLimit.LockTTLSec) * time.Second,
		clock:      p.Clock,
		revenueSvc: p.RevenueSvc,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}
}

// RunForever ticks until the context is canceled. One pass runs immediately
// so a fresh deploy does not wait a full interval for its first snapshot.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	s.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce computes today's snapshot, holding the distributed lock when one
// is configured so only one replica does the work.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.locker != nil {
		ttl := s.lockTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		token, ok, err := s.locker.TryLock(ctx, snapshotLockKey, ttl)
		if err != nil {
			s.log.Error("snapshot lock acquisition failed", zap.Error(err))
			return
		}
		if !ok {
			s.log.Debug("snapshot lock held elsewhere, skipping")
			return
		}
		defer func() {
			if err := s.locker.Release(ctx, snapshotLockKey, token); err != nil {
				s.log.Warn("snapshot lock release failed", zap.Error(err))
			}
		}()
	}

	snapshot, err := s.revenueSvc.CalculateDailySnapshot(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("daily snapshot failed", zap.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.SnapshotComputed()
	}
	s.log.Info("daily snapshot computed",
		zap.Time("date", snapshot.Date),
		zap.Float64("total_mrr", snapshot.TotalMRR),
	)
}
