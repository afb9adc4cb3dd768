package repository

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent, expired or already consumed.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyLinked is returned when a case is bound to a different user.
	ErrAlreadyLinked = errors.New("repository: case already linked to another user")
)

// KV is the key-value contract every storage backend implements.
//
// A ttl <= 0 stores the value without expiry. Expired values behave as
// absent on every read path even if the backend has not swept them yet.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent stores value only when no live value exists and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Take atomically reads and deletes a live value. Concurrent callers on
	// the same key see the value at most once.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// expiresAt returns the absolute expiry as Unix seconds, or 0 for no expiry.
func expiresAt(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).Unix()
}
