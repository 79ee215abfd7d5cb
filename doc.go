// Package refillq implements the asynchronous repopulation engine for a
// dictionary cache: a bounded update queue plus a fixed worker pool that
// batch-fetches missing or stale keys from a slower backing source.
//
// Components:
//   - UpdateUnit[K]: one batch of requested keys plus the evolving result of
//     that fetch (result columns, key -> row index, captured error).
//   - UpdateQueue[K]: bounded FIFO of units drained by a fixed worker pool.
//     Bounding converts unbounded memory growth under load into an explicit
//     backpressure signal (a push timeout).
//   - UpdateFunc[K]: the caller-supplied callback a worker runs per unit. It
//     fetches the requested keys from the backing source and fills the unit.
//
// Two call patterns share one mechanism:
//
//	u := refillq.NewUpdateUnit(keys, req, counters)
//	defer u.Release()
//	if err := q.Push(u); err != nil { ... } // backpressure or stopped
//
//	// fire-and-forget: return now, the cache refreshes in the background
//	// sync fetch-on-miss: block until the batch is ready
//	if err := q.Wait(u); err != nil { ... } // rethrows the callback error
//
// Keys are either plain numeric (simple) or composite (complex); composite
// keys are serialized into the unit's arena so the bytes outlive any column
// they were built from. The dictionary subpackage is the reference consumer.
package refillq
