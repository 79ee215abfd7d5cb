// Package dictionary implements a read-through dictionary cache on top of
// the refillq update queue. Rows live in a pluggable byte Provider, values
// are (de)serialized by a Codec, and misses are batch-fetched from a Source
// by the queue's worker pool.
//
// Freshness: every cached row carries the time it was fetched. Within TTL it
// is fresh. Between TTL and TTL+StaleTTL it is stale: still served, but a
// background refill is scheduled so a later read sees fresh data without
// anyone blocking. Past TTL+StaleTTL the row is treated as a miss and the
// reader blocks on a synchronous refill.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/refillq"
	"github.com/unkn0wn-root/refillq/codec"
	"github.com/unkn0wn-root/refillq/internal/wire"
	"github.com/unkn0wn-root/refillq/provider"
	"github.com/unkn0wn-root/refillq/source"
)

const defaultTTL = 10 * time.Minute

// Options tune a Dictionary. Name, Provider, Codec and Source are required.
type Options[K refillq.Key, V any] struct {
	// Name namespaces provider keys and tags queue diagnostics.
	Name     string
	Provider provider.Provider
	Codec    codec.Codec[V]
	Source   source.Source[K, V]

	// TTL is the fresh window of a cached row; 0 => 10m.
	TTL time.Duration
	// StaleTTL extends TTL with a serve-stale window: rows in it are
	// returned immediately while a background refill runs. 0 disables
	// stale serving, so every expired row is a blocking miss.
	StaleTTL time.Duration

	// Queue configures the update queue; the zero value selects
	// refillq.DefaultConfiguration().
	Queue refillq.Configuration

	Logger   refillq.Logger
	Counters refillq.Counters

	// RefreshPerSecond caps how many background refill batches may start per
	// second; 0 => unlimited. RefreshBurst defaults to 1.
	RefreshPerSecond float64
	RefreshBurst     int
}

type Dictionary[K refillq.Key, V any] struct {
	name     string
	provider provider.Provider
	codec    codec.Codec[V]
	source   source.Source[K, V]

	ttl      time.Duration
	staleTTL time.Duration

	log      refillq.Logger
	counters refillq.Counters
	request  refillq.FetchRequest
	queue    *refillq.UpdateQueue[K]

	// flight collapses concurrent blocking loads of the same key.
	flight singleflight.Group
	// limiter throttles background refresh batches, not blocking misses.
	limiter *rate.Limiter

	refreshMu  sync.Mutex
	refreshing map[K]struct{}

	// ctx outlives any single request: workers must finish in-flight
	// fetches even after the triggering caller is gone.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func New[K refillq.Key, V any](opts Options[K, V]) (*Dictionary[K, V], error) {
	if opts.Name == "" {
		return nil, errors.New("dictionary: name is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("dictionary: provider is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("dictionary: codec is required")
	}
	if opts.Source == nil {
		return nil, errors.New("dictionary: source is required")
	}

	cfg := opts.Queue
	if cfg == (refillq.Configuration{}) {
		cfg = refillq.DefaultConfiguration()
	}

	log := opts.Logger
	if log == nil {
		log = refillq.NopLogger{}
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dictionary[K, V]{
		name:       opts.Name,
		provider:   opts.Provider,
		codec:      opts.Codec,
		source:     opts.Source,
		ttl:        ttl,
		staleTTL:   opts.StaleTTL,
		log:        log,
		counters:   opts.Counters,
		request:    refillq.NewFetchRequest(refillq.Attribute{Name: "payload", Kind: refillq.KindBytes}),
		refreshing: make(map[K]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	if opts.RefreshPerSecond > 0 {
		burst := opts.RefreshBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RefreshPerSecond), burst)
	}

	q, err := refillq.NewUpdateQueue(opts.Name, cfg, d.runUpdate,
		refillq.WithLogger(log), refillq.WithCounters(opts.Counters))
	if err != nil {
		cancel()
		return nil, err
	}
	d.queue = q
	return d, nil
}

func (d *Dictionary[K, V]) Name() string { return d.name }

// Queue exposes the underlying update queue for observability.
func (d *Dictionary[K, V]) Queue() *refillq.UpdateQueue[K] { return d.queue }

// runUpdate is the update callback: fetch the unit's keys from the backing
// source, fill the unit, and write the refilled rows back to the provider.
// Any error fails the whole batch for whoever waits on the unit.
func (d *Dictionary[K, V]) runUpdate(u *refillq.UpdateUnit[K]) error {
	keys := u.Keys()
	defer d.clearRefreshing(keys)

	rows, err := d.source.Fetch(d.ctx, keys)
	if err != nil {
		return fmt.Errorf("dictionary %q: source fetch: %w", d.name, err)
	}

	col := u.Fetched[0]
	entries := make([]provider.Entry, 0, len(rows))
	now := time.Now()
	for _, k := range keys {
		if _, dup := u.FoundRows[k]; dup {
			continue
		}
		v, ok := rows[k]
		if !ok {
			continue // not found upstream: leave out of FoundRows
		}
		payload, err := d.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("dictionary %q: encode row: %w", d.name, err)
		}
		u.FoundRows[k] = col.Len()
		col.AppendBytes(payload)
		entries = append(entries, provider.Entry{Key: d.storageKey(k), Value: wire.EncodeRow(now, payload)})
	}

	if len(entries) > 0 {
		if err := d.provider.MSet(d.ctx, entries, d.ttl+d.staleTTL); err != nil {
			return fmt.Errorf("dictionary %q: store refilled rows: %w", d.name, err)
		}
	}
	return nil
}

// Get returns the value for key. A fresh cached row is returned as is; a
// stale one is returned immediately with a background refill scheduled; a
// miss blocks on a synchronous refill. ok=false means the key does not exist
// upstream.
func (d *Dictionary[K, V]) Get(ctx context.Context, key K) (v V, ok bool, err error) {
	var zero V
	sk := d.storageKey(key)
	raw, hit, err := d.provider.Get(ctx, sk)
	if err != nil {
		return zero, false, err
	}
	if hit {
		if v, state, valid := d.decodeEntry(ctx, sk, raw); valid {
			if state == entryStale {
				d.Refresh(key)
			}
			return v, true, nil
		}
	}
	return d.load(key)
}

// GetMany is the batch form of Get. It returns the values found plus the
// keys that do not exist upstream. Duplicate requested keys are collapsed.
func (d *Dictionary[K, V]) GetMany(ctx context.Context, keys []K) (map[K]V, []K, error) {
	out := make(map[K]V, len(keys))
	if len(keys) == 0 {
		return out, nil, nil
	}

	sks := make([]string, len(keys))
	for i, k := range keys {
		sks[i] = d.storageKey(k)
	}
	raws, err := d.provider.MGet(ctx, sks)
	if err != nil {
		return nil, nil, err
	}

	var misses, stale []K
	seen := make(map[K]struct{}, len(keys))
	for i, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		raw, hit := raws[sks[i]]
		if !hit {
			misses = append(misses, k)
			continue
		}
		v, state, valid := d.decodeEntry(ctx, sks[i], raw)
		if !valid {
			misses = append(misses, k)
			continue
		}
		out[k] = v
		if state == entryStale {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		d.Refresh(stale...)
	}

	var missing []K
	if len(misses) > 0 {
		loaded, notFound, err := d.loadBatch(misses)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range loaded {
			out[k] = v
		}
		missing = notFound
	}
	return out, missing, nil
}

// Refresh schedules a fire-and-forget refill of the given keys. Keys already
// being refreshed are skipped, refresh batches are rate-limited when
// configured, and queue backpressure drops the refresh rather than blocking
// the caller. Errors of a dropped or failed background refill surface only
// in logs; nobody waits on these units.
func (d *Dictionary[K, V]) Refresh(keys ...K) {
	if len(keys) == 0 {
		return
	}
	if d.limiter != nil && !d.limiter.Allow() {
		return
	}
	fresh := d.markRefreshing(keys)
	if len(fresh) == 0 {
		return
	}
	u := refillq.NewUpdateUnit(fresh, d.request, d.counters)
	err := d.queue.Push(u)
	u.Release()
	if err != nil {
		d.clearRefreshing(fresh)
		d.log.Debug("background refresh dropped", refillq.Fields{"dict": d.name, "keys": len(fresh), "err": err})
	}
}

// Invalidate drops the cached row; the next Get refills synchronously.
func (d *Dictionary[K, V]) Invalidate(ctx context.Context, key K) error {
	return d.provider.Del(ctx, d.storageKey(key))
}

// Close stops the update queue (completing or force-resolving every pending
// unit), then releases the provider and, if it is closable, the source.
// Idempotent; repeated calls return the first outcome.
func (d *Dictionary[K, V]) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.queue.StopAndWait()
		d.cancel()

		var errs *multierror.Error
		if err := d.provider.Close(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
		if c, ok := d.source.(interface{ Close(context.Context) error }); ok {
			if err := c.Close(ctx); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		d.closeErr = errs.ErrorOrNil()
	})
	return d.closeErr
}

type entryState int

const (
	entryFresh entryState = iota
	entryStale
)

// decodeEntry validates a provider hit. Corrupt frames, undecodable payloads
// and rows past the stale window self-heal by deletion and read as a miss.
func (d *Dictionary[K, V]) decodeEntry(ctx context.Context, sk string, raw []byte) (V, entryState, bool) {
	var zero V
	fetchedAt, payload, err := wire.DecodeRow(raw)
	if err != nil {
		_ = d.provider.Del(ctx, sk)
		d.log.Debug("self-healed corrupt entry", refillq.Fields{"dict": d.name, "key": sk})
		return zero, entryFresh, false
	}
	age := time.Since(fetchedAt)
	if age > d.ttl+d.staleTTL {
		_ = d.provider.Del(ctx, sk)
		return zero, entryFresh, false
	}
	v, err := d.codec.Decode(payload)
	if err != nil {
		_ = d.provider.Del(ctx, sk)
		d.log.Debug("self-healed undecodable entry", refillq.Fields{"dict": d.name, "key": sk})
		return zero, entryFresh, false
	}
	if age > d.ttl {
		return v, entryStale, true
	}
	return v, entryFresh, true
}

type loadResult[V any] struct {
	v  V
	ok bool
}

// load blocks on a synchronous refill of one key, collapsing concurrent
// loads of the same key into a single unit.
func (d *Dictionary[K, V]) load(key K) (V, bool, error) {
	var zero V
	res, err, _ := d.flight.Do(d.flightKey(key), func() (any, error) {
		u := refillq.NewUpdateUnit([]K{key}, d.request, d.counters)
		defer u.Release()
		if err := d.queue.Push(u); err != nil {
			return nil, err
		}
		if err := d.queue.Wait(u); err != nil {
			return nil, err
		}
		row, ok := u.FoundRows[key]
		if !ok {
			return loadResult[V]{}, nil
		}
		v, err := d.codec.Decode(u.Fetched[0].Bytes(row))
		if err != nil {
			return nil, err
		}
		return loadResult[V]{v: v, ok: true}, nil
	})
	if err != nil {
		return zero, false, err
	}
	r := res.(loadResult[V])
	return r.v, r.ok, nil
}

// loadBatch blocks on a synchronous refill of several keys at once and
// returns the values found plus the keys absent upstream.
func (d *Dictionary[K, V]) loadBatch(keys []K) (map[K]V, []K, error) {
	u := refillq.NewUpdateUnit(keys, d.request, d.counters)
	defer u.Release()
	if err := d.queue.Push(u); err != nil {
		return nil, nil, err
	}
	if err := d.queue.Wait(u); err != nil {
		return nil, nil, err
	}

	out := make(map[K]V, len(keys))
	var missing []K
	col := u.Fetched[0]
	for _, k := range keys {
		row, ok := u.FoundRows[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		v, err := d.codec.Decode(col.Bytes(row))
		if err != nil {
			return nil, nil, err
		}
		out[k] = v
	}
	return out, missing, nil
}

func (d *Dictionary[K, V]) markRefreshing(keys []K) []K {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	fresh := keys[:0:0]
	for _, k := range keys {
		if _, busy := d.refreshing[k]; busy {
			continue
		}
		d.refreshing[k] = struct{}{}
		fresh = append(fresh, k)
	}
	return fresh
}

func (d *Dictionary[K, V]) clearRefreshing(keys []K) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	for _, k := range keys {
		delete(d.refreshing, k)
	}
}

func (d *Dictionary[K, V]) storageKey(key K) string {
	// isolate by dictionary name
	return fmt.Sprintf("dict:%s:%v", d.name, key)
}

func (d *Dictionary[K, V]) flightKey(key K) string {
	return fmt.Sprint(key)
}
