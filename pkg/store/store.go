package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks failures to reach the backing store. Limiters surface
// these to the caller immediately instead of treating them as a denial.
var ErrUnavailable = errors.New("store unavailable")

// UpdateFunc computes the next value for a key from its current one. cur is
// nil and found is false when the key is absent or expired. Returning
// write == false leaves the stored value untouched.
//
// Under contention an UpdateFunc may be invoked more than once before its
// result commits, so it must be free of side effects other than its return
// values (closing over variables that are overwritten on each invocation is
// fine).
type UpdateFunc func(cur []byte, found bool) (next []byte, write bool, err error)

// Store is the shared keyed store that cross-process limiters coordinate
// through. All mutation goes through Update so that an admission decision and
// its state change commit atomically per key, across processes.
type Store interface {
	// Get returns the current value for key; found is false when the key is
	// absent or its TTL has elapsed.
	Get(ctx context.Context, key string) (val []byte, found bool, err error)

	// Update applies fn to the current value of key and persists the result
	// with the given TTL, atomically. ttl <= 0 stores without expiry.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// Delete removes key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// Entry describes one stored key, for inspection tooling.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration // <= 0 when the key has no expiry
}
