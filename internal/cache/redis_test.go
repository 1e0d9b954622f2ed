package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/go-redis/redismock/v9"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockCache(t *testing.T, ttl time.Duration) (*RedisCache, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, ttl)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return c, mock
}

func sampleSnapshot() *domain.SlotSnapshot {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	return &domain.SlotSnapshot{
		Slot:      domain.TimeSlot{ID: 42, ProductID: 1, StartsAt: start, EndsAt: start.Add(3 * time.Hour), IsOpen: true},
		Total:     13,
		Available: 8,
		Held:      4,
		Sold:      1,
		Pools: []domain.Snapshot{
			{PoolID: 1, SlotID: 42, CategoryKey: "stalls-adult", Total: 10, Available: 6, Held: 4},
			{PoolID: 2, SlotID: 42, CategoryKey: "box", UnitTracked: true, Total: 3, Available: 2, Sold: 1},
		},
	}
}

func TestRedisCache_SlotSnapshotRoundTrip(t *testing.T) {
	c, mock := newMockCache(t, 5*time.Second)
	ctx := context.Background()
	snap := sampleSnapshot()
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectSet("cache:slot:42:snapshot", payload, 5*time.Second).SetVal("OK")
	require.NoError(t, c.SetSlotSnapshot(ctx, snap))

	mock.ExpectGet("cache:slot:42:snapshot").SetVal(string(payload))
	got, err := c.GetSlotSnapshot(ctx, 42)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisCache_GetSlotSnapshot_Miss(t *testing.T) {
	c, mock := newMockCache(t, time.Second)

	mock.ExpectGet("cache:slot:7:snapshot").RedisNil()
	got, err := c.GetSlotSnapshot(context.Background(), 7)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_GetSlotSnapshot_Error(t *testing.T) {
	c, mock := newMockCache(t, time.Second)

	mock.ExpectGet("cache:slot:7:snapshot").SetErr(assert.AnError)
	_, err := c.GetSlotSnapshot(context.Background(), 7)
	assert.ErrorIs(t, err, assert.AnError)

	mock.ExpectGet("cache:slot:7:snapshot").SetVal("{not json")
	_, err = c.GetSlotSnapshot(context.Background(), 7)
	assert.Error(t, err)
}

func TestRedisCache_ZeroTTLDisablesWrites(t *testing.T) {
	c, _ := newMockCache(t, 0)
	assert.NoError(t, c.SetSlotSnapshot(context.Background(), sampleSnapshot()))
}

func TestRedisCache_InvalidateSlot(t *testing.T) {
	c, mock := newMockCache(t, time.Second)

	mock.ExpectDel("cache:slot:42:snapshot").SetVal(1)
	assert.NoError(t, c.InvalidateSlot(context.Background(), 42))
}

func TestRedisCache_SweepLock(t *testing.T) {
	c, mock := newMockCache(t, time.Second)
	ctx := context.Background()

	mock.ExpectSetNX("lock:reconciler:sweep", c.owner, time.Minute).SetVal(true)
	ok, err := c.AcquireSweepLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX("lock:reconciler:sweep", c.owner, time.Minute).SetVal(false)
	ok, err = c.AcquireSweepLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectEvalSha(releaseScript.Hash(), []string{"lock:reconciler:sweep"}, c.owner).SetVal(int64(1))
	assert.NoError(t, c.ReleaseSweepLock(ctx))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:slot:3:snapshot", slotSnapshotKey(3))
	assert.Equal(t, "lock:reconciler:sweep", sweepLockKey())
}
