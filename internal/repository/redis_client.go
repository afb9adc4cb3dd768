package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the subset of *redis.Client used by RedisKV.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisKV stores values in Redis and relies on native key expiry.
type RedisKV struct {
	api redisAPI
}

func NewRedisKV(api redisAPI) (*RedisKV, error) {
	if api == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	return &RedisKV{api: api}, nil
}

// NewRedisKVFromURL parses a redis:// or rediss:// URL and returns a KV
// together with the underlying client so the caller can close it.
func NewRedisKVFromURL(url string) (*RedisKV, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	kv, err := NewRedisKV(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return kv, client, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.api.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	return v, nil
}

func (r *RedisKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.api.Set(ctx, key, value, redisTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

func (r *RedisKV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.api.SetNX(ctx, key, value, redisTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("repository: PutIfAbsent: %w", err)
	}
	return ok, nil
}

// Take uses GETDEL, which is atomic on the server.
func (r *RedisKV) Take(ctx context.Context, key string) ([]byte, error) {
	v, err := r.api.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: Take: %w", err)
	}
	return v, nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.api.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

// redisTTL maps a non-positive ttl to 0, which go-redis sends as no expiry.
func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}
