package reservation

import (
	"context"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
	"github.com/Domenick1991/reservations/internal/kafka"
	"github.com/cockroachdb/errors"
)

// change is what a successful operation wants announced.
type change struct {
	event kafka.EventType
	hold  domain.Hold
}

type operation func(slot *inventory.Slot, pool *inventory.Pool, now time.Time) (*change, error)

// outcome is what one locked load-apply-save round left behind.
type outcome struct {
	meta    domain.Pool
	expired []domain.Hold
	change  *change
	opErr   error
	now     time.Time
	saved   bool
}

// mutate is the single write path for pool state:
// load the pool, expire stale holds, apply op, save with a version check and
// start over on a conflict. Business errors from op are returned as is; when
// op failed but lazy expiry changed the pool, the expiry is still saved. It
// returns the holds that expired on the way. The pool lock covers one round
// only; backoff, events and cache invalidation run without it.
func (m *Manager) mutate(ctx context.Context, poolID int64, op operation) ([]domain.Hold, error) {
	for attempt := 0; ; attempt++ {
		out, err := m.attempt(ctx, poolID, op)
		if err == nil {
			if out.saved {
				m.committed(ctx, out.meta, out.expired, out.change, out.now)
				return out.expired, out.opErr
			}
			return nil, out.opErr
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, err
		}
		if attempt >= m.maxRetries {
			m.logger.Warn("giving up after version conflicts", "pool_id", poolID, "attempts", attempt+1)
			return nil, errors.Wrapf(domain.ErrConcurrencyConflict, "pool %d after %d attempts", poolID, attempt+1)
		}

		wait := calculateBackoff(attempt, m.retryBase, m.retryMax)
		m.logger.Debug("version conflict, retrying", "pool_id", poolID, "attempt", attempt+1, "wait_ms", wait.Milliseconds())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Manager) attempt(ctx context.Context, poolID int64, op operation) (outcome, error) {
	if m.locks != nil {
		unlock := m.locks.Lock(poolID)
		defer unlock()
	}

	pool, slot, err := m.store.LoadPool(ctx, poolID)
	if err != nil {
		return outcome{}, storageFailure(err)
	}
	original := pool.Meta()
	now := m.clock.Now()

	expired := pool.ExpireBefore(now)
	ch, opErr := op(inventory.NewSlot(*slot, pool), pool, now)
	if opErr != nil && !domain.IsBusiness(opErr) {
		return outcome{}, opErr
	}
	if !pool.Dirty(original) {
		return outcome{opErr: opErr}, nil
	}

	if err := m.store.SavePool(ctx, pool, original.Version); err != nil {
		return outcome{}, storageFailure(err)
	}
	if opErr != nil {
		ch = nil
	}
	return outcome{meta: pool.Meta(), expired: expired, change: ch, opErr: opErr, now: now, saved: true}, nil
}

// committed publishes events and drops cached snapshots. Both are best effort:
// the state change is already durable.
func (m *Manager) committed(ctx context.Context, meta domain.Pool, expired []domain.Hold, ch *change, now time.Time) {
	slotID := meta.SlotID
	for _, h := range expired {
		m.publish(ctx, kafka.NewHoldEvent(kafka.EventHoldExpired, h, slotID, now))
	}
	if ch != nil {
		if ch.event == kafka.EventPoolReconciled {
			m.publish(ctx, kafka.NewPoolEvent(ch.event, meta.ID, slotID, now))
		} else {
			m.publish(ctx, kafka.NewHoldEvent(ch.event, ch.hold, slotID, now))
		}
	}
	if m.cache != nil {
		if err := m.cache.InvalidateSlot(ctx, slotID); err != nil {
			m.logger.Warn("failed to invalidate slot snapshot", "slot_id", slotID, "error", err)
		}
	}
}

func (m *Manager) publish(ctx context.Context, ev kafka.ReservationEvent) {
	if m.producer == nil || m.topic == "" {
		return
	}
	if err := m.producer.PublishWithRetry(ctx, m.topic, ev.Key(), ev, m.publishTry); err != nil {
		m.logger.Warn("failed to publish reservation event", "type", ev.Type, "key", ev.Key(), "error", err)
	}
}

// storageFailure marks infrastructure errors so callers can tell them from
// rule violations. Already classified errors pass through.
func storageFailure(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsBusiness(err),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrStorageFailure),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.WithKind(err, domain.ErrStorageFailure)
	}
}
