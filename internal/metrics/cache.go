package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classpulse/internal/config"
	"classpulse/pkg/interfaces"
)

// RedisCache implements interfaces.SnapshotCache. The latest snapshot per
// (learner, session) is stored under a prefixed key with a bounded TTL;
// concurrent writers for the same key overwrite, which is correct because
// snapshots are monotonic in time.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg *config.CacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisCacheFromClient(client, cfg.KeyPrefix, cfg.SnapshotTTL), nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisCacheFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "classpulse:metrics:"
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisCache) key(learnerID, sessionID string) string {
	return c.prefix + learnerID + ":" + sessionID
}

// Save stores a cache entry under its pair key with the configured TTL.
func (c *RedisCache) Save(ctx context.Context, entry *interfaces.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := c.key(entry.Snapshot.LearnerID, entry.Snapshot.SessionID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

// Load retrieves the pair's latest entry or interfaces.ErrSnapshotNotFound.
func (c *RedisCache) Load(ctx context.Context, learnerID, sessionID string) (*interfaces.CacheEntry, error) {
	data, err := c.client.Get(ctx, c.key(learnerID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interfaces.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var entry interfaces.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
