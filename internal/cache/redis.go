package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/reservations/config"
	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries our value.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type RedisCache struct {
	client      redis.UniversalClient
	snapshotTTL time.Duration
	owner       string
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		cfg.SnapshotTTL,
	)
}

func NewRedisCacheWithClient(client redis.UniversalClient, snapshotTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, snapshotTTL: snapshotTTL, owner: uuid.NewString()}
}

// GetSlotSnapshot returns nil without error on a cache miss.
func (c *RedisCache) GetSlotSnapshot(ctx context.Context, slotID int64) (*domain.SlotSnapshot, error) {
	data, err := c.client.Get(ctx, slotSnapshotKey(slotID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get slot snapshot")
	}

	var snap domain.SlotSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "decode slot snapshot")
	}
	return &snap, nil
}

func (c *RedisCache) SetSlotSnapshot(ctx context.Context, snap *domain.SlotSnapshot) error {
	if c.snapshotTTL <= 0 {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slotSnapshotKey(snap.Slot.ID), payload, c.snapshotTTL).Err()
}

func (c *RedisCache) InvalidateSlot(ctx context.Context, slotID int64) error {
	return c.client.Del(ctx, slotSnapshotKey(slotID)).Err()
}

// AcquireSweepLock reports false when another process holds the lock.
func (c *RedisCache) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, sweepLockKey(), c.owner, ttl).Result()
}

func (c *RedisCache) ReleaseSweepLock(ctx context.Context) error {
	err := releaseScript.Run(ctx, c.client, []string{sweepLockKey()}, c.owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func slotSnapshotKey(slotID int64) string {
	return fmt.Sprintf("cache:slot:%d:snapshot", slotID)
}

func sweepLockKey() string {
	return "lock:reconciler:sweep"
}
