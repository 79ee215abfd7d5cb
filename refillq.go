package refillq

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// UpdateFunc performs one update: fetch every requested key of the unit from
// the backing source, fill unit.Fetched and unit.FoundRows for each key that
// was found, and leave keys absent upstream out of FoundRows. A returned
// error (or panic) becomes the unit's captured outcome. The callback is
// invoked at most once per unit, runs to completion without external
// cancellation, and must not retain the unit beyond its own invocation.
type UpdateFunc[K Key] func(unit *UpdateUnit[K]) error

type queueOptions struct {
	log      Logger
	counters Counters
}

type Option func(*queueOptions)

// WithLogger attaches a structured logger to the queue.
func WithLogger(l Logger) Option {
	return func(o *queueOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCounters injects the outstanding batch/key gauges the queue reports
// push backpressure through.
func WithCounters(c Counters) Option {
	return func(o *queueOptions) { o.counters = c.orNop() }
}

// UpdateQueue coordinates asynchronous and synchronous cache updates: a
// bounded FIFO of update units drained by a fixed pool of workers. It is the
// single serialization point between arbitrary producers and the pool.
//
// MaxQueueSize bounds outstanding units (queued plus in flight), so a full
// queue is a backpressure signal rather than unbounded memory growth.
type UpdateQueue[K Key] struct {
	name   string
	cfg    Configuration
	update UpdateFunc[K]

	log      Logger
	counters Counters

	queue chan *UpdateUnit[K]
	slots chan struct{} // one token per outstanding unit
	stop  chan struct{}
	wg    sync.WaitGroup

	// pushMu serializes pushes against the shutdown drain: Push holds it
	// shared for the send, StopAndWait holds it exclusively while draining,
	// so no unit can slip into the channel after the drain and hang a waiter.
	pushMu sync.RWMutex

	finished atomic.Bool
	stopOnce sync.Once
}

// NewUpdateQueue validates the configuration, starts cfg.MaxThreads workers
// and stores the update callback. No fetch happens at construction time.
func NewUpdateQueue[K Key](name string, cfg Configuration, update UpdateFunc[K], opts ...Option) (*UpdateQueue[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if update == nil {
		return nil, fmt.Errorf("refillq: queue %q: update function is required", name)
	}

	o := queueOptions{log: NopLogger{}, counters: Counters{}.orNop()}
	for _, opt := range opts {
		opt(&o)
	}

	q := &UpdateQueue[K]{
		name:     name,
		cfg:      cfg,
		update:   update,
		log:      o.log,
		counters: o.counters,
		queue:    make(chan *UpdateUnit[K], cfg.MaxQueueSize),
		slots:    make(chan struct{}, cfg.MaxQueueSize),
		stop:     make(chan struct{}),
	}

	q.wg.Add(cfg.MaxThreads)
	for i := 0; i < cfg.MaxThreads; i++ {
		go q.workerLoop(i)
	}
	q.log.Debug("update queue started", Fields{"queue": name, "workers": cfg.MaxThreads, "capacity": cfg.MaxQueueSize})
	return q, nil
}

// Name returns the diagnostic name passed at construction.
func (q *UpdateQueue[K]) Name() string { return q.name }

// GetConfiguration returns the configuration passed at construction.
func (q *UpdateQueue[K]) GetConfiguration() Configuration { return q.cfg }

// IsFinished reports whether StopAndWait has been invoked.
func (q *UpdateQueue[K]) IsFinished() bool { return q.finished.Load() }

// Push tries to enqueue the unit. On success the unit becomes visible to
// workers in FIFO order relative to other successful pushes; Push never
// waits for processing to start. It fails with a *TimeoutError when the
// queue stays at capacity longer than cfg.PushTimeout, and with ErrStopped
// after StopAndWait.
func (q *UpdateQueue[K]) Push(u *UpdateUnit[K]) error {
	q.pushMu.RLock()
	defer q.pushMu.RUnlock()

	if q.finished.Load() {
		return fmt.Errorf("refillq: push to queue %q: %w", q.name, ErrStopped)
	}

	// Fast path: free slot available right now.
	select {
	case q.slots <- struct{}{}:
		q.enqueue(u)
		return nil
	default:
	}

	q.log.Debug("update queue at capacity", Fields{"queue": q.name, "capacity": q.cfg.MaxQueueSize})
	timer := time.NewTimer(q.cfg.PushTimeout)
	defer timer.Stop()

	select {
	case q.slots <- struct{}{}:
		q.enqueue(u)
		return nil
	case <-q.stop:
		return fmt.Errorf("refillq: push to queue %q: %w", q.name, ErrStopped)
	case <-timer.C:
		return &TimeoutError{Queue: q.name, Op: "push", Timeout: q.cfg.PushTimeout}
	}
}

func (q *UpdateQueue[K]) enqueue(u *UpdateUnit[K]) {
	u.retain()
	// Cannot block: the slot token guarantees buffer room.
	q.queue <- u
}

// Wait blocks until the unit completes, cfg.WaitTimeout elapses, or the
// queue is stopped while the unit is still unresolved. On completion it
// returns the captured callback error verbatim (nil on success); calling
// Wait again on a completed unit returns the same outcome. There is no busy
// polling: completion is observed through the unit's done channel, which the
// worker closes after its writes, so reading the unit afterwards is safe.
func (q *UpdateQueue[K]) Wait(u *UpdateUnit[K]) error {
	select {
	case <-u.done:
		return u.err
	default:
	}

	timer := time.NewTimer(q.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case <-u.done:
		return u.err
	case <-q.stop:
		return q.shutdownOutcome(u)
	case <-timer.C:
		return &TimeoutError{Queue: q.name, Op: "wait", Timeout: q.cfg.WaitTimeout}
	}
}

// shutdownOutcome resolves a wait that woke on the stop signal. Completion
// racing the shutdown must win: a unit that did finish reports its own
// outcome, only a still-unresolved one reports ErrShutdown.
func (q *UpdateQueue[K]) shutdownOutcome(u *UpdateUnit[K]) error {
	select {
	case <-u.done:
		return u.err
	default:
		return fmt.Errorf("refillq: wait on queue %q: %w", q.name, ErrShutdown)
	}
}

// StopAndWait stops the queue: no further pushes are accepted, any goroutine
// blocked in Push or Wait is unblocked, workers finish the unit they are on
// and exit, and every unit still sitting in the queue is force-resolved with
// ErrShutdown so no waiter blocks forever. Idempotent and safe to call
// concurrently; later calls wait for the first to complete.
func (q *UpdateQueue[K]) StopAndWait() {
	q.stopOnce.Do(func() {
		q.finished.Store(true)
		close(q.stop)
		q.wg.Wait()

		q.pushMu.Lock()
		defer q.pushMu.Unlock()
		abandoned := 0
		for {
			select {
			case u := <-q.queue:
				u.finish(fmt.Errorf("refillq: queue %q: %w", q.name, ErrShutdown))
				<-q.slots
				u.release()
				abandoned++
			default:
				q.log.Info("update queue stopped", Fields{"queue": q.name, "abandoned": abandoned})
				return
			}
		}
	})
}

func (q *UpdateQueue[K]) workerLoop(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case u := <-q.queue:
			q.process(id, u)
		}
	}
}

// process runs the callback on a unit the worker now exclusively owns, then
// publishes the outcome. The slot token is held until completion so that
// MaxQueueSize bounds in-flight units too, not just queued ones.
func (q *UpdateQueue[K]) process(id int, u *UpdateUnit[K]) {
	defer func() {
		<-q.slots
		u.release()
	}()

	err := q.runUpdate(u)
	if err != nil {
		q.log.Error("update failed", Fields{"queue": q.name, "worker": id, "keys": len(u.keys), "err": err})
	}
	u.finish(err)
}

func (q *UpdateQueue[K]) runUpdate(u *UpdateUnit[K]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refillq: update callback panicked: %v", r)
		}
	}()
	return q.update(u)
}
