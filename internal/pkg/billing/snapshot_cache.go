package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
)

const (
	snapshotKeyPrefix = "entitlement:"
	SnapshotTTL       = 30 * time.Second
	generationTTL     = 24 * time.Hour
)

// SnapshotCache is a short-lived server side cache of entitlement snapshots.
// Every Delete bumps the user's generation; Set only stores a snapshot when
// the generation still equals the one read before the row was loaded.
type SnapshotCache interface {
	Get(ctx context.Context, userID uint) (entitlements.Snapshot, bool, error)
	Generation(ctx context.Context, userID uint) (int64, error)
	Set(ctx context.Context, userID uint, snap entitlements.Snapshot, generation int64) error
	Delete(ctx context.Context, userID uint) error
}

// NopSnapshotCache disables caching.
type NopSnapshotCache struct{}

func (NopSnapshotCache) Get(context.Context, uint) (entitlements.Snapshot, bool, error) {
	return entitlements.Snapshot{}, false, nil
}
func (NopSnapshotCache) Generation(context.Context, uint) (int64, error) { return 0, nil }
func (NopSnapshotCache) Set(context.Context, uint, entitlements.Snapshot, int64) error {
	return nil
}
func (NopSnapshotCache) Delete(context.Context, uint) error { return nil }

// RedisSnapshotCache stores snapshots as JSON strings with a TTL.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache creates a cache on client. A zero ttl uses SnapshotTTL.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = SnapshotTTL
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(userID uint) string {
	return fmt.Sprintf("%s%d", snapshotKeyPrefix, userID)
}

func generationKey(userID uint) string {
	return fmt.Sprintf("%s%d:gen", snapshotKeyPrefix, userID)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, userID uint) (entitlements.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entitlements.Snapshot{}, false, nil
		}
		return entitlements.Snapshot{}, false, err
	}
	var snap entitlements.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// drop undecodable entries instead of failing every read
		_ = c.client.Del(ctx, snapshotKey(userID)).Err()
		return entitlements.Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (c *RedisSnapshotCache) Generation(ctx context.Context, userID uint) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set writes snap unless the entry was invalidated after generation was read.
// An expired generation key reads as 0 and only lets writers through that
// also started from 0.
func (c *RedisSnapshotCache) Set(ctx context.Context, userID uint, snap entitlements.Snapshot, generation int64) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	genKey := generationKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, snapshotKey(userID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		// invalidated while we were writing
		return nil
	}
	return err
}

func (c *RedisSnapshotCache) Delete(ctx context.Context, userID uint) error {
	genKey := generationKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, snapshotKey(userID))
		return nil
	})
	return err
}
