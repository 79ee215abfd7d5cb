// Package provider defines the byte store refilled dictionary rows live in.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no prepended
// or appended metadata, no re-encoding, no mutation). If a store performs
// internal transforms (e.g., compression), they MUST be fully reversed so
// that the bytes returned by Get are identical to the bytes provided to Set.
//
// The dictionary owns its key prefix ("dict:<name>:"). Foreign writes under
// it may be treated as corruption by strict frame validation and deleted.
package provider

import (
	"context"
	"time"
)

// Entry is one key/value pair of a batch write.
type Entry struct {
	Key   string
	Value []byte
}

// Provider is a minimal byte store with TTLs and batch operations shaped for
// batch refills. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// MGet returns the present subset of keys. Absent keys are simply not in
	// the map; only IO/remote failures are errors.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores value with the given TTL. Stores that evict under pressure
	// may drop the write silently; the dictionary treats the cache as lossy.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// MSet stores a refilled batch with one TTL. Best effort per entry.
	MSet(ctx context.Context, entries []Entry, ttl time.Duration) error

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
