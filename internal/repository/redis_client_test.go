package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data    map[string]string
	err     error
	lastTTL time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = string(value.([]byte))
	f.lastTTL = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) GetDel(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	delete(f.data, key)
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestNewRedisKV_NilClient(t *testing.T) {
	_, err := NewRedisKV(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestRedisKV_RoundTrip(t *testing.T) {
	fake := newFakeRedis()
	kv, err := NewRedisKV(fake)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = kv.Get(ctx, "case:1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Put(ctx, "case:1", []byte("payload"), time.Hour))
	require.Equal(t, time.Hour, fake.lastTTL)

	v, err := kv.Get(ctx, "case:1")
	require.NoError(t, err)
	require.Equal(t, "payload", string(v))

	require.NoError(t, kv.Delete(ctx, "case:1"))
	_, err = kv.Get(ctx, "case:1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisKV_TakeOnce(t *testing.T) {
	fake := newFakeRedis()
	fake.data["case_token:t"] = "case-1"
	kv, err := NewRedisKV(fake)
	require.NoError(t, err)

	v, err := kv.Take(context.Background(), "case_token:t")
	require.NoError(t, err)
	require.Equal(t, "case-1", string(v))

	_, err = kv.Take(context.Background(), "case_token:t")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisKV_PutIfAbsent(t *testing.T) {
	kv, err := NewRedisKV(newFakeRedis())
	require.NoError(t, err)

	ok, err := kv.PutIfAbsent(context.Background(), "webhook_event:e", []byte("1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = kv.PutIfAbsent(context.Background(), "webhook_event:e", []byte("1"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisKV_NoExpiryAndErrors(t *testing.T) {
	fake := newFakeRedis()
	kv, err := NewRedisKV(fake)
	require.NoError(t, err)

	require.NoError(t, kv.Put(context.Background(), "k", []byte("v"), -1))
	require.Zero(t, fake.lastTTL)

	fake.err = errors.New("connection refused")
	_, err = kv.Get(context.Background(), "k")
	require.ErrorContains(t, err, "repository: Get")
	_, err = kv.Take(context.Background(), "k")
	require.ErrorContains(t, err, "repository: Take")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestNewRedisKVFromURL_BadURL(t *testing.T) {
	_, _, err := NewRedisKVFromURL("not a url")
	require.ErrorContains(t, err, "parse redis url")
}
