package session

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces session hashes in a shared Redis.
const defaultKeyPrefix = "toolsession:"

// RedisStore keeps session records as Redis hashes so every proxy
// instance in a deployment sees the same table. Expiry is driven by the
// stored timestamp and the sweep, not by Redis key TTLs, so both store
// implementations share the same retention semantics.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an existing Redis client. An empty prefix selects
// the default namespace.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(connectionKey string) string {
	return s.prefix + connectionKey
}

func (s *RedisStore) Upsert(ctx context.Context, connectionKey, sessionID string) error {
	fields := map[string]interface{}{
		"session_id": sessionID,
		"updated_at": s.now().Unix(),
	}
	return s.client.HSet(ctx, s.key(connectionKey), fields).Err()
}

func (s *RedisStore) Find(ctx context.Context, connectionKey string) (string, bool, error) {
	data, err := s.client.HGetAll(ctx, s.key(connectionKey)).Result()
	if err != nil {
		return "", false, err
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return data["session_id"], true, nil
}

func (s *RedisStore) Delete(ctx context.Context, connectionKey string) error {
	return s.client.Del(ctx, s.key(connectionKey)).Err()
}

func (s *RedisStore) DeleteExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan).Unix()
	removed := 0

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return removed, err
		}

		for _, key := range keys {
			raw, err := s.client.HGet(ctx, key, "updated_at").Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return removed, err
			}

			updatedAt, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || updatedAt >= cutoff {
				continue
			}

			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, err
			}
			removed++
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
