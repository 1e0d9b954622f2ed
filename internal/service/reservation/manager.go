package reservation

import (
	"context"
	"log/slog"
	"time"

	"github.com/Domenick1991/reservations/internal/clock"
	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
	"github.com/Domenick1991/reservations/internal/kafka"
	"github.com/Domenick1991/reservations/internal/repository"
	"github.com/cockroachdb/errors"
)

type UseCase interface {
	Hold(ctx context.Context, input HoldInput) (*HoldResult, error)
	Confirm(ctx context.Context, token string) (*domain.Hold, error)
	Release(ctx context.Context, token string) error
	Cancel(ctx context.Context, token string) (*domain.Hold, error)
	GetHold(ctx context.Context, token string) (*domain.Hold, error)
	ReconcilePool(ctx context.Context, poolID int64) (*ReconcileResult, error)
	ResizePool(ctx context.Context, poolID int64, total int) (*domain.Snapshot, error)
}

type Producer interface {
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

// SnapshotCache drops cached slot snapshots after a pool of the slot changed.
type SnapshotCache interface {
	InvalidateSlot(ctx context.Context, slotID int64) error
}

type HoldInput struct {
	Token    string  `json:"token"`
	PoolID   int64   `json:"pool_id"`
	Quantity int     `json:"quantity"`
	UnitIDs  []int64 `json:"unit_ids"`
}

type HoldResult struct {
	Hold     domain.Hold
	Replayed bool
}

type ReconcileResult struct {
	PoolID  int64
	Expired []domain.Hold
	Drift   inventory.Drift
}

type Manager struct {
	store      repository.Store
	clock      clock.Clock
	locks      *keyedMutex
	producer   Producer
	cache      SnapshotCache
	topic      string
	publishTry int
	holdTTL    time.Duration
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
	logger     *slog.Logger
}

type ManagerOption func(*Manager)

// WithProducer publishes committed changes to topic, trying each event up to
// attempts times.
func WithProducer(producer Producer, topic string, attempts int) ManagerOption {
	return func(m *Manager) {
		m.producer = producer
		m.topic = topic
		m.publishTry = max(attempts, 1)
	}
}

func WithCache(cache SnapshotCache) ManagerOption {
	return func(m *Manager) {
		m.cache = cache
	}
}

func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetry bounds the optimistic-concurrency retry loop.
func WithRetry(maxRetries int, base, limit time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		m.retryBase = base
		m.retryMax = limit
	}
}

// WithPoolLocks turns the in-process per-pool lock on or off. Without it
// concurrent writers on one pool only meet at the store's version check.
func WithPoolLocks(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.locks = nil
		if enabled {
			m.locks = newKeyedMutex()
		}
	}
}

func NewManager(store repository.Store, holdTTL time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		clock:      clock.NewSystem(),
		locks:      newKeyedMutex(),
		holdTTL:    holdTTL,
		maxRetries: 5,
		retryBase:  10 * time.Millisecond,
		retryMax:   500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Hold(ctx context.Context, input HoldInput) (*HoldResult, error) {
	if input.Token == "" {
		return nil, domain.ErrTokenRequired
	}
	if err := m.checkTokenOwner(ctx, input.Token, input.PoolID); err != nil {
		return nil, err
	}

	req := inventory.HoldRequest{Token: input.Token, Quantity: input.Quantity, UnitIDs: input.UnitIDs}
	var result HoldResult
	_, err := m.mutate(ctx, input.PoolID, func(slot *inventory.Slot, pool *inventory.Pool, now time.Time) (*change, error) {
		res, err := slot.Hold(pool.ID(), req, now, m.holdTTL)
		if err != nil {
			return nil, err
		}
		result = HoldResult{Hold: res.Hold, Replayed: res.Existing}
		if res.Existing {
			return nil, nil
		}
		return &change{event: kafka.EventHoldCreated, hold: res.Hold}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *Manager) Confirm(ctx context.Context, token string) (*domain.Hold, error) {
	poolID, err := m.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var confirmed domain.Hold
	_, err = m.mutate(ctx, poolID, func(slot *inventory.Slot, pool *inventory.Pool, now time.Time) (*change, error) {
		h, err := slot.Confirm(pool.ID(), token, now)
		if err != nil {
			return nil, err
		}
		confirmed = h
		return &change{event: kafka.EventHoldConfirmed, hold: h}, nil
	})
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// Release is idempotent: unknown, expired and already released tokens succeed.
func (m *Manager) Release(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrTokenRequired
	}
	poolID, err := m.store.PoolIDByToken(ctx, token)
	if errors.Is(err, domain.ErrHoldNotFound) {
		return nil
	}
	if err != nil {
		return storageFailure(err)
	}

	_, err = m.mutate(ctx, poolID, func(slot *inventory.Slot, pool *inventory.Pool, _ time.Time) (*change, error) {
		h, released, err := slot.Release(pool.ID(), token)
		if err != nil || !released {
			return nil, err
		}
		return &change{event: kafka.EventHoldReleased, hold: h}, nil
	})
	return err
}

func (m *Manager) Cancel(ctx context.Context, token string) (*domain.Hold, error) {
	poolID, err := m.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var cancelled domain.Hold
	_, err = m.mutate(ctx, poolID, func(slot *inventory.Slot, pool *inventory.Pool, _ time.Time) (*change, error) {
		h, err := slot.Cancel(pool.ID(), token)
		if err != nil {
			return nil, err
		}
		cancelled = h
		return &change{event: kafka.EventSaleCancelled, hold: h}, nil
	})
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

// GetHold reads the current claim for token. A hold past its deadline is
// reported as not found even before the reconciler has swept it.
func (m *Manager) GetHold(ctx context.Context, token string) (*domain.Hold, error) {
	poolID, err := m.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	pool, _, err := m.store.LoadPool(ctx, poolID)
	if err != nil {
		return nil, storageFailure(err)
	}
	h, ok := pool.Find(token)
	if !ok || h.Expired(m.clock.Now()) {
		return nil, domain.ErrHoldNotFound
	}
	return &h, nil
}

// ReconcilePool expires stale holds and repairs counter drift under the same
// lock and version check as every other mutation.
func (m *Manager) ReconcilePool(ctx context.Context, poolID int64) (*ReconcileResult, error) {
	result := &ReconcileResult{PoolID: poolID}
	expired, err := m.mutate(ctx, poolID, func(_ *inventory.Slot, pool *inventory.Pool, _ time.Time) (*change, error) {
		result.Drift = pool.Reconcile()
		if !result.Drift.Repaired {
			return nil, nil
		}
		return &change{event: kafka.EventPoolReconciled}, nil
	})
	if err != nil {
		return nil, err
	}
	result.Expired = expired
	return result, nil
}

func (m *Manager) ResizePool(ctx context.Context, poolID int64, total int) (*domain.Snapshot, error) {
	var resized *inventory.Pool
	_, err := m.mutate(ctx, poolID, func(_ *inventory.Slot, pool *inventory.Pool, _ time.Time) (*change, error) {
		resized = pool
		return nil, pool.Resize(total)
	})
	if err != nil {
		return nil, err
	}
	snap := resized.Snapshot()
	return &snap, nil
}

// expirePool runs lazy expiry alone on one pool.
func (m *Manager) expirePool(ctx context.Context, poolID int64) error {
	_, err := m.mutate(ctx, poolID, func(*inventory.Slot, *inventory.Pool, time.Time) (*change, error) {
		return nil, nil
	})
	return err
}

// checkTokenOwner refuses a token that is live on a different pool. A stale
// claim on the other pool is expired first so the token can move.
func (m *Manager) checkTokenOwner(ctx context.Context, token string, poolID int64) error {
	owner, err := m.store.PoolIDByToken(ctx, token)
	if errors.Is(err, domain.ErrHoldNotFound) || (err == nil && owner == poolID) {
		return nil
	}
	if err != nil {
		return storageFailure(err)
	}

	if err := m.expirePool(ctx, owner); err != nil {
		return err
	}
	owner, err = m.store.PoolIDByToken(ctx, token)
	if errors.Is(err, domain.ErrHoldNotFound) || (err == nil && owner == poolID) {
		return nil
	}
	if err != nil {
		return storageFailure(err)
	}
	return domain.ErrIdempotencyConflict
}

func (m *Manager) resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrTokenRequired
	}
	poolID, err := m.store.PoolIDByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) {
			return 0, err
		}
		return 0, storageFailure(err)
	}
	return poolID, nil
}

var _ UseCase = (*Manager)(nil)
