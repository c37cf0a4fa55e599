// Package impl implements the targets Cache on Redis sets.
package impl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/fargraph/go-fargraph/pkg/targets"
)

const (
	targetsKey       = "targets"
	targetClientsKey = "client_targets"

	loadBatchSize = 5000
)

// RedisCache is a Cache backed by two Redis sets keyed by decimal fid.
type RedisCache struct {
	rdb *redis.Client
}

var _ targets.Cache = (*RedisCache)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %s", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %s", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

// AddTarget adds a fid to the target set.
func (c *RedisCache) AddTarget(ctx context.Context, fid uint64) error {
	if err := c.rdb.SAdd(ctx, targetsKey, member(fid)).Err(); err != nil {
		return fmt.Errorf("adding target to cache: %s", err)
	}
	return nil
}

// RemoveTarget removes a fid from the target set.
func (c *RedisCache) RemoveTarget(ctx context.Context, fid uint64) error {
	if err := c.rdb.SRem(ctx, targetsKey, member(fid)).Err(); err != nil {
		return fmt.Errorf("removing target from cache: %s", err)
	}
	return nil
}

// IsTarget reports whether a fid is in the target set.
func (c *RedisCache) IsTarget(ctx context.Context, fid uint64) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, targetsKey, member(fid)).Result()
	if err != nil {
		return false, fmt.Errorf("checking target membership: %s", err)
	}
	return ok, nil
}

// AddTargetClient adds a client app fid.
func (c *RedisCache) AddTargetClient(ctx context.Context, fid uint64) error {
	if err := c.rdb.SAdd(ctx, targetClientsKey, member(fid)).Err(); err != nil {
		return fmt.Errorf("adding target client to cache: %s", err)
	}
	return nil
}

// RemoveTargetClient removes a client app fid.
func (c *RedisCache) RemoveTargetClient(ctx context.Context, fid uint64) error {
	if err := c.rdb.SRem(ctx, targetClientsKey, member(fid)).Err(); err != nil {
		return fmt.Errorf("removing target client from cache: %s", err)
	}
	return nil
}

// IsTargetClient reports whether a fid is in the client set.
func (c *RedisCache) IsTargetClient(ctx context.Context, fid uint64) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, targetClientsKey, member(fid)).Result()
	if err != nil {
		return false, fmt.Errorf("checking target client membership: %s", err)
	}
	return ok, nil
}

// LoadTargets replaces the target set with the given fids.
func (c *RedisCache) LoadTargets(ctx context.Context, fids []uint64) error {
	return c.load(ctx, targetsKey, fids)
}

// LoadTargetClients replaces the client set with the given fids.
func (c *RedisCache) LoadTargetClients(ctx context.Context, fids []uint64) error {
	return c.load(ctx, targetClientsKey, fids)
}

// load rebuilds a set under a temporary key and swaps it in with RENAME, so
// readers never observe a half-hydrated set.
func (c *RedisCache) load(ctx context.Context, key string, fids []uint64) error {
	if len(fids) == 0 {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clearing %s set: %s", key, err)
		}
		return nil
	}
	tmpKey := key + ":loading"
	if err := c.rdb.Del(ctx, tmpKey).Err(); err != nil {
		return fmt.Errorf("clearing temporary set: %s", err)
	}
	for start := 0; start < len(fids); start += loadBatchSize {
		end := start + loadBatchSize
		if end > len(fids) {
			end = len(fids)
		}
		members := make([]interface{}, 0, end-start)
		for _, fid := range fids[start:end] {
			members = append(members, member(fid))
		}
		if err := c.rdb.SAdd(ctx, tmpKey, members...).Err(); err != nil {
			return fmt.Errorf("populating temporary set: %s", err)
		}
	}
	if err := c.rdb.Rename(ctx, tmpKey, key).Err(); err != nil {
		return fmt.Errorf("swapping %s set: %s", key, err)
	}
	return nil
}

// CountTargets returns the size of the target set.
func (c *RedisCache) CountTargets(ctx context.Context) (int64, error) {
	n, err := c.rdb.SCard(ctx, targetsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("counting targets: %s", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func member(fid uint64) string {
	return strconv.FormatUint(fid, 10)
}
