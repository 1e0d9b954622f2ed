//go:build integration

package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/inventory"
	"github.com/Domenick1991/reservations/internal/repository/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newPGStore(t *testing.T) *PGStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "reservations",
			},
			Cmd:        []string{"postgres", "-c", "fsync=off"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/reservations?sslmode=disable", host, port.Port())
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, migrations.Apply(ctx, db, slog.New(slog.NewTextHandler(io.Discard, nil))))
	// second run is a no-op
	require.NoError(t, migrations.Apply(ctx, db, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewPGStore(db)
}

func TestPGStore_RoundTrip(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()

	product := &domain.Product{Kind: domain.ProductKindTour, Name: "City walk"}
	require.NoError(t, s.CreateProduct(ctx, product))

	slot := &domain.TimeSlot{ProductID: product.ID, StartsAt: start, EndsAt: start.Add(2 * time.Hour), IsOpen: true}
	pools, err := s.CreateSlot(ctx, slot, []domain.PoolSpec{
		{CategoryKey: "adult", Total: 10},
		{CategoryKey: "front-row", UnitLabels: []string{"1", "2", "3"}},
	})
	require.NoError(t, err)
	require.Len(t, pools, 2)

	counter, loadedSlot, err := s.LoadPool(ctx, pools[0].ID)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, loadedSlot.ID)

	_, err = counter.Hold(inventory.HoldRequest{Token: "cart-1", Quantity: 4}, start, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SavePool(ctx, counter, 1))

	units, _, err := s.LoadPool(ctx, pools[1].ID)
	require.NoError(t, err)
	_, err = units.Hold(inventory.HoldRequest{Token: "cart-2", UnitIDs: []int64{units.Units()[1].ID}}, start, 10*time.Minute)
	require.NoError(t, err)
	_, err = units.Confirm("cart-2", start)
	require.NoError(t, err)
	require.NoError(t, s.SavePool(ctx, units, 1))

	full, err := s.LoadSlotPools(ctx, slot.ID)
	require.NoError(t, err)
	snap := full.Snapshot()
	assert.Equal(t, 13, snap.Total)
	assert.Equal(t, 4, snap.Held)
	assert.Equal(t, 1, snap.Sold)

	id, err := s.PoolIDByToken(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, pools[0].ID, id)
	id, err = s.PoolIDByToken(ctx, "cart-2")
	require.NoError(t, err)
	assert.Equal(t, pools[1].ID, id)

	reloaded, _, err := s.LoadPool(ctx, pools[0].ID)
	require.NoError(t, err)
	h, ok := reloaded.Find("cart-1")
	require.True(t, ok)
	assert.Equal(t, 4, h.Quantity)
	assert.True(t, h.ExpiresAt.Equal(start.Add(10*time.Minute)))
}

func TestPGStore_ConcurrentSavesNeverOversell(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()

	product := &domain.Product{Kind: domain.ProductKindEvent, Name: "Show"}
	require.NoError(t, s.CreateProduct(ctx, product))
	pools, err := s.CreateSlot(ctx, &domain.TimeSlot{ProductID: product.ID, StartsAt: start, EndsAt: start.Add(time.Hour), IsOpen: true},
		[]domain.PoolSpec{{CategoryKey: "ga", Total: 5}})
	require.NoError(t, err)
	poolID := pools[0].ID

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				p, _, err := s.LoadPool(ctx, poolID)
				if err != nil {
					return
				}
				if _, err := p.Hold(inventory.HoldRequest{Token: fmt.Sprintf("t-%d", i), Quantity: 1}, start, time.Hour); err != nil {
					return
				}
				if err := s.SavePool(ctx, p, p.Version()); err == nil {
					mu.Lock()
					won++
					mu.Unlock()
					return
				}
			}
		}(i)
	}
	wg.Wait()

	p, _, err := s.LoadPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 5, won)
	assert.Equal(t, 5, p.Meta().Held)
	assert.Equal(t, 0, p.Meta().Available())
	assert.False(t, p.Reconcile().Repaired)
}

func TestPGStore_TokenOwnedByOnePool(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()

	product := &domain.Product{Kind: domain.ProductKindVehicle, Name: "Ferry"}
	require.NoError(t, s.CreateProduct(ctx, product))
	pools, err := s.CreateSlot(ctx, &domain.TimeSlot{ProductID: product.ID, StartsAt: start, EndsAt: start.Add(time.Hour), IsOpen: true},
		[]domain.PoolSpec{
			{CategoryKey: "lane-a", UnitLabels: []string{"A1", "A2"}},
			{CategoryKey: "lane-b", UnitLabels: []string{"B1", "B2"}},
		})
	require.NoError(t, err)

	// both pools are loaded before either save, as two racing requests would
	first, _, err := s.LoadPool(ctx, pools[0].ID)
	require.NoError(t, err)
	second, _, err := s.LoadPool(ctx, pools[1].ID)
	require.NoError(t, err)

	_, err = first.Hold(inventory.HoldRequest{Token: "car-1", Quantity: 1}, start, 10*time.Minute)
	require.NoError(t, err)
	_, err = second.Hold(inventory.HoldRequest{Token: "car-1", Quantity: 1}, start, 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.SavePool(ctx, first, first.Version()))
	assert.ErrorIs(t, s.SavePool(ctx, second, second.Version()), domain.ErrIdempotencyConflict)

	id, err := s.PoolIDByToken(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, pools[0].ID, id)

	untouched, _, err := s.LoadPool(ctx, pools[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, untouched.Meta().Held)

	// once released the token is free for the other pool
	reloaded, _, err := s.LoadPool(ctx, pools[0].ID)
	require.NoError(t, err)
	_, released := reloaded.Release("car-1")
	require.True(t, released)
	require.NoError(t, s.SavePool(ctx, reloaded, reloaded.Version()))
	_, err = s.PoolIDByToken(ctx, "car-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	second, _, err = s.LoadPool(ctx, pools[1].ID)
	require.NoError(t, err)
	_, err = second.Hold(inventory.HoldRequest{Token: "car-1", Quantity: 1}, start, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SavePool(ctx, second, second.Version()))
	id, err = s.PoolIDByToken(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, pools[1].ID, id)
}

func TestPGStore_OvercommittedPoolStillSaves(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()

	product := &domain.Product{Kind: domain.ProductKindTour, Name: "Glacier hike"}
	require.NoError(t, s.CreateProduct(ctx, product))
	pools, err := s.CreateSlot(ctx, &domain.TimeSlot{ProductID: product.ID, StartsAt: start, EndsAt: start.Add(time.Hour), IsOpen: true},
		[]domain.PoolSpec{{CategoryKey: "adult", Total: 5}})
	require.NoError(t, err)
	poolID := pools[0].ID

	p, _, err := s.LoadPool(ctx, poolID)
	require.NoError(t, err)
	_, err = p.Hold(inventory.HoldRequest{Token: "short", Quantity: 2}, start, 10*time.Minute)
	require.NoError(t, err)
	_, err = p.Hold(inventory.HoldRequest{Token: "long", Quantity: 2}, start, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.SavePool(ctx, p, p.Version()))

	// capacity shrunk underneath the live holds
	_, err = s.db.Exec(ctx, `UPDATE capacity_pool SET total=1 WHERE id=$1`, poolID)
	require.NoError(t, err)

	p, _, err = s.LoadPool(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, p.Reconcile().Overcommitted)

	expired := p.ExpireBefore(start.Add(11 * time.Minute))
	require.Len(t, expired, 1)
	require.NoError(t, s.SavePool(ctx, p, p.Version()))

	p, _, err = s.LoadPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Meta().Held)
	assert.Equal(t, 1, p.Meta().Total)
	_, ok := p.Find("short")
	assert.False(t, ok)
}
