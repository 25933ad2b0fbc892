// Package store is the short-lived keyed storage holding in-flight session
// state between requests. Entries carry an explicit TTL; expiry is a
// recovery signal handled by the reconciliation sweep, never a silent loss.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocked means another request currently holds the key's lease.
	ErrLocked = errors.New("store: key is locked")
)

type Store interface {
	// Put writes value as JSON under key with the given TTL.
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get reads key into dest, reporting whether it existed.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Delete(ctx context.Context, key string) error
	// Acquire takes a short exclusive lease on key so no two requests step
	// the same session concurrently. The returned func releases the lease.
	Acquire(ctx context.Context, key string, lease time.Duration) (func(), error)
	// Keys lists keys under prefix, for the expiry sweep.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// TTL reports the remaining lifetime of key; zero or negative means
	// expired or missing.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
