// Package source abstracts the slower backing origin a dictionary refills
// from (database, remote service, another cache tier).
package source

import (
	"context"

	"github.com/unkn0wn-root/refillq"
)

// Source fetches the current values for a batch of keys. Keys absent
// upstream are simply left out of the returned map; an error means the fetch
// itself failed (e.g., source unreachable) and fails the whole batch.
//
// Fetch is called from update queue workers and must be safe for concurrent
// use. Retry policy is the caller's business; sources should fail fast.
type Source[K refillq.Key, V any] interface {
	Fetch(ctx context.Context, keys []K) (map[K]V, error)
}

// Func adapts a plain function to a Source.
type Func[K refillq.Key, V any] func(ctx context.Context, keys []K) (map[K]V, error)

func (f Func[K, V]) Fetch(ctx context.Context, keys []K) (map[K]V, error) {
	return f(ctx, keys)
}
