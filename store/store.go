package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get and TTL when the key is absent or expired.
	ErrNotFound = errors.New("store key not found")
	// ErrUnavailable wraps every backend failure.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotInteger is returned by Increment when the key holds a non-numeric value.
	ErrNotInteger = errors.New("store value is not an integer")
)

// NoExpiry is returned by TTL for keys that exist without an expiry.
const NoExpiry time.Duration = -1

// Store is the shared counter store every security component is built on.
// Implementations must be safe for concurrent use across goroutines and
// processes: Increment must never lose updates.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value with the given ttl. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Increment atomically adds one to key, creating it at 1 when absent.
	// ttl is applied when the key is created, or when an existing key has
	// lost its expiry.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// DeleteIfEquals removes key only while it still holds expected and
	// reports whether it did.
	DeleteIfEquals(ctx context.Context, key, expected string) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime of key, NoExpiry for persistent
	// keys, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
