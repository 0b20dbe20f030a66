// Package sweeper expires overdue OPEN gigs on a schedule. Replicas share a
// redis lease so that only one of them sweeps per tick.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/infrastructure/observability"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/robfig/cron/v3"
)

const (
	LockKey         = "sweeper:expiry:lock"
	defaultLeaseTTL = 30 * time.Second
)

type Expirer interface {
	ExpireOverdueGigs(ctx context.Context, now time.Time) (int, error)
}

// Lease is the part of the redis client used to coordinate replicas. The
// lease is released only by the holder that took it.
type Lease interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
}

var _ Lease = (*redis.Client)(nil)

type Sweeper struct {
	expirer  Expirer
	lock     Lease
	schedule string
	leaseTTL time.Duration
	now      func() time.Time
	cron     *cron.Cron
	holder   string
}

func New(expirer Expirer, lock Lease, schedule string) *Sweeper {
	logger := cron.VerbosePrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	return &Sweeper{
		expirer:  expirer,
		lock:     lock,
		schedule: schedule,
		leaseTTL: defaultLeaseTTL,
		now:      time.Now,
		holder:   uuid.NewString(),
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
	}
}

// Start registers the sweep and starts the scheduler in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("expiry sweep failed", "method", "RunOnce", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweeper: %w", err)
	}
	s.cron.Start()
	slog.Info("expiry sweeper started", "schedule", s.schedule)
	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("expiry sweeper did not stop in time")
	}
}

// RunOnce performs a single sweep if the lease can be taken. It returns the
// number of gigs expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.lock != nil {
		ok, err := s.lock.SetNX(ctx, LockKey, s.holder, s.leaseTTL)
		if err != nil {
			observability.ExpirySweeps.WithLabelValues("error").Inc()
			return 0, fmt.Errorf("failed to acquire sweeper lease: %w", err)
		}
		if !ok {
			observability.ExpirySweeps.WithLabelValues("skipped").Inc()
			slog.Debug("expiry sweep held by another instance")
			return 0, nil
		}
		defer func() {
			released, err := s.lock.DelIfEqual(context.WithoutCancel(ctx), LockKey, s.holder)
			if err != nil {
				slog.Warn("failed to release sweeper lease", "error", err)
				return
			}
			if !released {
				slog.Warn("sweeper lease expired before the sweep finished", "lease_ttl", s.leaseTTL)
			}
		}()
	}

	n, err := s.expirer.ExpireOverdueGigs(ctx, s.now())
	if err != nil {
		observability.ExpirySweeps.WithLabelValues("error").Inc()
		return 0, err
	}
	observability.ExpirySweeps.WithLabelValues("success").Inc()
	if n > 0 {
		slog.Info("expiry sweep finished", "expired", n)
	}
	return n, nil
}
