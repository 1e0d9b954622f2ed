package reconciler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/reservations/internal/clock"
	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
	"github.com/Domenick1991/reservations/internal/repository"
	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockPoolLister struct {
	mock.Mock
}

func (m *MockPoolLister) ListPoolIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockPoolReconciler struct {
	mock.Mock
}

func (m *MockPoolReconciler) ReconcilePool(ctx context.Context, poolID int64) (*reservation.ReconcileResult, error) {
	args := m.Called(ctx, poolID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.ReconcileResult), args.Error(1)
}

type MockSweepLock struct {
	mock.Mock
}

func (m *MockSweepLock) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockSweepLock) ReleaseSweepLock(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ===== Тесты для Sweep =====

func TestSweep_CollectsFailuresAndContinues(t *testing.T) {
	lister := &MockPoolLister{}
	manager := &MockPoolReconciler{}
	r := New(lister, manager, WithLogger(quiet))
	ctx := context.Background()

	// Настройка моков
	lister.On("ListPoolIDs", ctx).Return([]int64{1, 2, 3}, nil).Once()
	manager.On("ReconcilePool", ctx, int64(1)).Return(&reservation.ReconcileResult{
		PoolID:  1,
		Expired: []domain.Hold{{Token: "a"}, {Token: "b"}},
	}, nil).Once()
	manager.On("ReconcilePool", ctx, int64(2)).Return(nil, domain.WithKind(errors.New("timeout"), domain.ErrStorageFailure)).Once()
	manager.On("ReconcilePool", ctx, int64(3)).Return(&reservation.ReconcileResult{
		PoolID: 3,
		Drift: inventory.Drift{
			Before:   domain.Snapshot{Held: 5},
			After:    domain.Snapshot{Held: 2},
			Repaired: true,
		},
	}, nil).Once()

	// Выполнение
	report, err := r.Sweep(ctx)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pools)
	assert.Equal(t, 2, report.ExpiredHolds)
	assert.Equal(t, 1, report.RepairedPools)
	assert.Equal(t, []int64{2}, report.Failed)
	assert.False(t, report.Skipped)

	lister.AssertExpectations(t)
	manager.AssertExpectations(t)
}

func TestSweep_ListError(t *testing.T) {
	lister := &MockPoolLister{}
	manager := &MockPoolReconciler{}
	r := New(lister, manager, WithLogger(quiet))

	lister.On("ListPoolIDs", mock.Anything).Return(nil, errors.New("db down")).Once()

	_, err := r.Sweep(context.Background())
	assert.Error(t, err)
	manager.AssertNotCalled(t, "ReconcilePool", mock.Anything, mock.Anything)
}

func TestSweep_SkipsWhenLockHeldElsewhere(t *testing.T) {
	lister := &MockPoolLister{}
	manager := &MockPoolReconciler{}
	lock := &MockSweepLock{}
	r := New(lister, manager, WithLogger(quiet), WithSweepLock(lock, time.Minute))

	lock.On("AcquireSweepLock", mock.Anything, time.Minute).Return(false, nil).Once()

	report, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Pools)

	lister.AssertNotCalled(t, "ListPoolIDs", mock.Anything)
	lock.AssertNotCalled(t, "ReleaseSweepLock", mock.Anything)
	lock.AssertExpectations(t)
}

func TestSweep_ReleasesLock(t *testing.T) {
	lister := &MockPoolLister{}
	manager := &MockPoolReconciler{}
	lock := &MockSweepLock{}
	r := New(lister, manager, WithLogger(quiet), WithSweepLock(lock, time.Minute))

	lock.On("AcquireSweepLock", mock.Anything, time.Minute).Return(true, nil).Once()
	lock.On("ReleaseSweepLock", mock.Anything).Return(nil).Once()
	lister.On("ListPoolIDs", mock.Anything).Return([]int64{}, nil).Once()

	_, err := r.Sweep(context.Background())
	require.NoError(t, err)
	lock.AssertExpectations(t)
}

func TestSweep_SingleFlight(t *testing.T) {
	lister := &MockPoolLister{}
	manager := &MockPoolReconciler{}
	r := New(lister, manager, WithLogger(quiet))

	entered := make(chan struct{})
	proceed := make(chan struct{})
	lister.On("ListPoolIDs", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-proceed
	}).Return([]int64{}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Sweep(context.Background())
		assert.NoError(t, err)
	}()

	<-entered
	_, err := r.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(proceed)
	wg.Wait()
	lister.AssertExpectations(t)

	// the flag is cleared after the first sweep ends
	lister.On("ListPoolIDs", mock.Anything).Return([]int64{}, nil).Once()
	_, err = r.Sweep(context.Background())
	assert.NoError(t, err)
}

func TestSweep_Duration(t *testing.T) {
	lister := &MockPoolLister{}
	c := clock.NewMock(time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC))
	r := New(lister, &MockPoolReconciler{}, WithLogger(quiet), WithClock(c))

	lister.On("ListPoolIDs", mock.Anything).Run(func(mock.Arguments) {
		c.Add(3 * time.Second)
	}).Return([]int64{}, nil).Once()

	report, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, report.Duration)
}

// The sweep drives lazy expiry on pools nobody touched since their holds lapsed.
func TestSweep_ExpiresAbandonedHolds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	c := clock.NewMock(now)
	store := repository.NewMemoryStore()

	product := &domain.Product{Kind: domain.ProductKindTransfer, Name: "Airport shuttle"}
	require.NoError(t, store.CreateProduct(ctx, product))
	pools, err := store.CreateSlot(ctx,
		&domain.TimeSlot{ProductID: product.ID, StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour), IsOpen: true},
		[]domain.PoolSpec{{CategoryKey: "van", Total: 8}, {CategoryKey: "sedan", UnitLabels: []string{"S1", "S2"}}})
	require.NoError(t, err)

	manager := reservation.NewManager(store, 10*time.Minute, reservation.WithClock(c), reservation.WithLogger(quiet))
	_, err = manager.Hold(ctx, reservation.HoldInput{Token: "a", PoolID: pools[0].ID, Quantity: 8})
	require.NoError(t, err)
	_, err = manager.Hold(ctx, reservation.HoldInput{Token: "b", PoolID: pools[1].ID, Quantity: 2})
	require.NoError(t, err)

	r := New(store, manager, WithLogger(quiet), WithClock(c))

	report, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.ExpiredHolds)

	c.Add(11 * time.Minute)
	report, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pools)
	assert.Equal(t, 2, report.ExpiredHolds)
	assert.Empty(t, report.Failed)

	slot, err := store.LoadSlotPools(ctx, pools[0].SlotID)
	require.NoError(t, err)
	assert.Equal(t, 10, slot.TotalAvailable())
}
