package reconciler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/reservations/internal/clock"
	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/cockroachdb/errors"
)

var ErrSweepInProgress = errors.New("sweep already in progress")

type PoolLister interface {
	ListPoolIDs(ctx context.Context) ([]int64, error)
}

type PoolReconciler interface {
	ReconcilePool(ctx context.Context, poolID int64) (*reservation.ReconcileResult, error)
}

// SweepLock keeps sweeps of different processes from overlapping.
type SweepLock interface {
	AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context) error
}

type SweepReport struct {
	Pools         int
	ExpiredHolds  int
	RepairedPools int
	Failed        []int64
	Skipped       bool
	StartedAt     time.Time
	Duration      time.Duration
}

type Reconciler struct {
	pools   PoolLister
	manager PoolReconciler
	lock    SweepLock
	lockTTL time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	running atomic.Bool
}

type Option func(*Reconciler)

func WithSweepLock(lock SweepLock, ttl time.Duration) Option {
	return func(r *Reconciler) {
		r.lock = lock
		r.lockTTL = ttl
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func New(pools PoolLister, manager PoolReconciler, opts ...Option) *Reconciler {
	r := &Reconciler{
		pools:   pools,
		manager: manager,
		clock:   clock.NewSystem(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep expires stale holds and repairs counter drift on every pool.
// A failing pool is recorded in the report and the sweep moves on.
func (r *Reconciler) Sweep(ctx context.Context) (report SweepReport, err error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer r.running.Store(false)

	report.StartedAt = r.clock.Now()
	defer func() { report.Duration = r.clock.Now().Sub(report.StartedAt) }()

	if r.lock != nil {
		ok, err := r.lock.AcquireSweepLock(ctx, r.lockTTL)
		if err != nil {
			return report, errors.Wrap(err, "acquire sweep lock")
		}
		if !ok {
			r.logger.Debug("sweep skipped, another process holds the lock")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := r.lock.ReleaseSweepLock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	ids, err := r.pools.ListPoolIDs(ctx)
	if err != nil {
		return report, errors.Wrap(err, "list pools")
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Pools++

		res, err := r.manager.ReconcilePool(ctx, id)
		if err != nil {
			r.logger.Error("reconcile pool failed", "pool_id", id, "error", err)
			report.Failed = append(report.Failed, id)
			continue
		}
		report.ExpiredHolds += len(res.Expired)
		if res.Drift.Repaired {
			report.RepairedPools++
			r.logger.Warn("repaired pool drift",
				"pool_id", id,
				"held_before", res.Drift.Before.Held, "held_after", res.Drift.After.Held,
				"sold_before", res.Drift.Before.Sold, "sold_after", res.Drift.After.Sold,
				"total_before", res.Drift.Before.Total, "total_after", res.Drift.After.Total,
				"units_reset", res.Drift.RepairedUnits)
		}
		if res.Drift.Overcommitted {
			r.logger.Error("pool is overcommitted", "pool_id", id, "available", res.Drift.After.Available)
		}
	}

	if report.ExpiredHolds > 0 || report.RepairedPools > 0 || len(report.Failed) > 0 {
		r.logger.Info("sweep finished",
			"pools", report.Pools,
			"expired", report.ExpiredHolds,
			"repaired", report.RepairedPools,
			"failed", len(report.Failed))
	}
	return report, nil
}
