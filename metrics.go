package refillq

import "sync/atomic"

// Gauge is a current-value counter that can move both ways.
// Implement it to feed the surrounding metrics system (e.g. Prometheus).
// Implementations must be safe for concurrent use.
type Gauge interface {
	Add(delta int64)
}

// NopGauge discards all updates. Used when no counters are injected.
type NopGauge struct{}

func (NopGauge) Add(int64) {}

// AtomicGauge is a simple in-memory Gauge. Handy in tests and for
// applications without an external metrics stack.
type AtomicGauge struct {
	v atomic.Int64
}

func (g *AtomicGauge) Add(delta int64) { g.v.Add(delta) }

// Value returns the current gauge value.
func (g *AtomicGauge) Value() int64 { return g.v.Load() }

// Counters are the observability hooks tied to unit lifetime: Batches tracks
// units alive (constructed, not yet released), Keys tracks the keys those
// units carry. Both increment at unit construction and decrement when the
// last reference to the unit is released. Pure observability, nothing in the
// queue depends on them.
type Counters struct {
	Batches Gauge
	Keys    Gauge
}

// orNop fills missing gauges so callers can pass a partially (or zero)
// initialized Counters.
func (c Counters) orNop() Counters {
	if c.Batches == nil {
		c.Batches = NopGauge{}
	}
	if c.Keys == nil {
		c.Keys = NopGauge{}
	}
	return c
}
