package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "geo:"

// RedisStore is a Store backed by Redis, for deployments where several
// instances should share one geocode cache.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl <= 0 stores entries without expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient dials addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (s *RedisStore) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisPrefix+key, raw, s.ttl).Err()
}

// GetForward implements Store.
func (s *RedisStore) GetForward(ctx context.Context, key string) (*Coordinates, bool, error) {
	var c Coordinates
	ok, err := s.get(ctx, "f:"+key, &c)
	if !ok || err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// PutForward implements Store.
func (s *RedisStore) PutForward(ctx context.Context, key string, c Coordinates) error {
	return s.put(ctx, "f:"+key, c)
}

// GetReverse implements Store.
func (s *RedisStore) GetReverse(ctx context.Context, key string) (*AddressResult, bool, error) {
	var a AddressResult
	ok, err := s.get(ctx, "r:"+key, &a)
	if !ok || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// PutReverse implements Store.
func (s *RedisStore) PutReverse(ctx context.Context, key string, a AddressResult) error {
	return s.put(ctx, "r:"+key, a)
}
