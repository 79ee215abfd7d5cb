package refillq

import (
	"sync/atomic"

	"github.com/unkn0wn-root/refillq/internal/keyarena"
)

// Key is the set of key representations an update queue can carry: plain
// numeric keys, or composite keys serialized to arena-backed strings.
type Key interface {
	~uint64 | ~string
}

// UpdateUnit is one batch of keys to fetch plus the evolving result of that
// fetch. It is passed between the update queue and its client during update.
//
// Ownership: the unit is constructed by exactly one producer and exclusively
// written by exactly one worker while it is processed. Fetched and FoundRows
// must only be read after Done reports true (Wait guarantees that ordering).
// The producer, the queue and the worker each hold a reference; the unit's
// observability counters drop when the last reference is released.
type UpdateUnit[K Key] struct {
	keys    []K
	request FetchRequest

	// Complex variant only: the externally owned key columns and the rows
	// selecting the requested keys. Read-only for the unit's lifetime.
	keyColumns []*Column
	rows       []int
	arena      *keyarena.Arena

	// Fetched holds one result column per requested attribute, created empty
	// at construction so the worker fills them in place.
	Fetched []*Column

	// FoundRows maps each key the backing source returned to its row in
	// Fetched. A requested key absent from the map was not found upstream.
	FoundRows map[K]int

	done     chan struct{}
	claimed  atomic.Bool
	finished atomic.Bool
	err      error

	refs     atomic.Int32
	counters Counters
	nkeys    int64
}

// NewUpdateUnit builds a unit for plain numeric (or pre-serialized) keys.
// The key slice is owned by the unit afterwards.
func NewUpdateUnit[K Key](keys []K, request FetchRequest, counters Counters) *UpdateUnit[K] {
	u := &UpdateUnit[K]{
		keys:      keys,
		request:   request,
		Fetched:   request.MakeResultColumns(),
		FoundRows: make(map[K]int, len(keys)),
		done:      make(chan struct{}),
		counters:  counters.orNop(),
		nkeys:     int64(len(keys)),
	}
	u.refs.Store(1)
	u.counters.Batches.Add(1)
	u.counters.Keys.Add(u.nkeys)
	return u
}

// NewComplexUpdateUnit builds a unit for composite keys: keyColumns are
// externally owned, rows selects the keys of interest. Each selected row is
// serialized into the unit's arena, so the resulting keys remain valid even
// after the caller's columns are released.
func NewComplexUpdateUnit(keyColumns []*Column, rows []int, request FetchRequest, counters Counters) *UpdateUnit[string] {
	arena := keyarena.New()
	u := &UpdateUnit[string]{
		keys:       internKeyRows(keyColumns, rows, arena),
		request:    request,
		keyColumns: keyColumns,
		rows:       rows,
		arena:      arena,
		Fetched:    request.MakeResultColumns(),
		FoundRows:  make(map[string]int, len(rows)),
		done:       make(chan struct{}),
		counters:   counters.orNop(),
		nkeys:      int64(len(rows)),
	}
	u.refs.Store(1)
	u.counters.Batches.Add(1)
	u.counters.Keys.Add(u.nkeys)
	return u
}

// Keys returns the requested keys in request order. Read-only.
func (u *UpdateUnit[K]) Keys() []K { return u.keys }

// Request returns the fetch descriptor this unit was built from.
func (u *UpdateUnit[K]) Request() FetchRequest { return u.request }

// KeyColumns returns the externally owned composite key columns, or nil for
// the simple variant.
func (u *UpdateUnit[K]) KeyColumns() []*Column { return u.keyColumns }

// Rows returns the selected rows of KeyColumns, or nil for the simple variant.
func (u *UpdateUnit[K]) Rows() []int { return u.rows }

// KeyArena returns the arena extending composite key lifetimes, or nil for
// the simple variant. Key bytes produced during fetch should be copied here
// so they stay valid as long as the unit does.
func (u *UpdateUnit[K]) KeyArena() *keyarena.Arena { return u.arena }

// Done reports whether the unit has completed, successfully or not. It never
// resets. Once true, the unit is read-only and safe to inspect from any
// goroutine holding a reference.
func (u *UpdateUnit[K]) Done() bool { return u.finished.Load() }

// Err returns the captured outcome. Valid only after Done reports true; nil
// means the update callback succeeded. The error is never cleared, so
// repeated reads observe the same outcome.
func (u *UpdateUnit[K]) Err() error { return u.err }

// Release drops the caller's reference. The producer must call it exactly
// once when finished with the unit (typically deferred right after
// construction); the queue and workers manage their own references.
func (u *UpdateUnit[K]) Release() { u.release() }

func (u *UpdateUnit[K]) retain() { u.refs.Add(1) }

func (u *UpdateUnit[K]) release() {
	if u.refs.Add(-1) != 0 {
		return
	}
	u.counters.Batches.Add(-1)
	u.counters.Keys.Add(-u.nkeys)
}

// finish records the outcome and marks the unit done, exactly once. The
// error write happens before the finished store and the channel close, so
// any observer of Done()==true (or of the closed channel) sees err.
func (u *UpdateUnit[K]) finish(err error) bool {
	if !u.claimed.CompareAndSwap(false, true) {
		return false
	}
	u.err = err
	u.finished.Store(true)
	close(u.done)
	return true
}
