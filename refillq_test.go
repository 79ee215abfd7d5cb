package refillq

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testRequest = NewFetchRequest(Attribute{Name: "value", Kind: KindUInt64})

func testConfig() Configuration {
	return Configuration{
		MaxQueueSize: 8,
		MaxThreads:   2,
		PushTimeout:  50 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
	}
}

func newTestQueue(t *testing.T, cfg Configuration, fn UpdateFunc[uint64]) *UpdateQueue[uint64] {
	t.Helper()
	q, err := NewUpdateQueue("test", cfg, fn)
	if err != nil {
		t.Fatalf("NewUpdateQueue: %v", err)
	}
	t.Cleanup(q.StopAndWait)
	return q
}

// echoUpdate marks every requested key found with its own value.
func echoUpdate(u *UpdateUnit[uint64]) error {
	col := u.Fetched[0]
	for _, k := range u.Keys() {
		u.FoundRows[k] = col.Len()
		col.AppendUint64(k)
	}
	return nil
}

func TestPushWaitRoundTrip(t *testing.T) {
	q := newTestQueue(t, testConfig(), echoUpdate)

	u := NewUpdateUnit([]uint64{7, 11, 13}, testRequest, Counters{})
	defer u.Release()

	if err := q.Push(u); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Wait(u); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !u.Done() {
		t.Fatal("unit not done after successful Wait")
	}
	for _, k := range []uint64{7, 11, 13} {
		row, ok := u.FoundRows[k]
		if !ok {
			t.Fatalf("key %d missing from FoundRows", k)
		}
		if got := u.Fetched[0].Uint64(row); got != k {
			t.Fatalf("key %d: fetched %d", k, got)
		}
	}
}

func TestPushTimesOutAtCapacity(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	cfg := Configuration{
		MaxQueueSize: 2,
		MaxThreads:   1,
		PushTimeout:  40 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
	}
	q := newTestQueue(t, cfg, func(u *UpdateUnit[uint64]) error {
		started <- struct{}{}
		<-release
		return nil
	})
	defer close(release)

	a := NewUpdateUnit([]uint64{1}, testRequest, Counters{})
	defer a.Release()
	b := NewUpdateUnit([]uint64{2}, testRequest, Counters{})
	defer b.Release()
	c := NewUpdateUnit([]uint64{3}, testRequest, Counters{})
	defer c.Release()

	if err := q.Push(a); err != nil {
		t.Fatalf("Push a: %v", err)
	}
	<-started // a is being processed and holds its slot until done
	if err := q.Push(b); err != nil {
		t.Fatalf("Push b: %v", err)
	}

	// a in flight plus b queued fill both slots, so c must time out even
	// though the worker has already dequeued a.
	begin := time.Now()
	err := q.Push(c)
	elapsed := time.Since(begin)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Push c: got %v, want *TimeoutError", err)
	}
	if te.Op != "push" {
		t.Fatalf("timeout op = %q, want push", te.Op)
	}
	if elapsed < cfg.PushTimeout {
		t.Fatalf("push returned after %s, before the %s timeout", elapsed, cfg.PushTimeout)
	}
}

func TestErrorPropagatesToAllWaiters(t *testing.T) {
	errSource := errors.New("source unreachable")
	q := newTestQueue(t, testConfig(), func(u *UpdateUnit[uint64]) error {
		return errSource
	})

	u := NewUpdateUnit([]uint64{1, 2}, testRequest, Counters{})
	defer u.Release()
	if err := q.Push(u); err != nil {
		t.Fatalf("Push: %v", err)
	}

	const waiters = 4
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() { errs <- q.Wait(u) }()
	}
	for i := 0; i < waiters; i++ {
		if err := <-errs; !errors.Is(err, errSource) {
			t.Fatalf("waiter %d: got %v, want %v", i, err, errSource)
		}
	}

	// The outcome is captured once and never cleared.
	if err := q.Wait(u); !errors.Is(err, errSource) {
		t.Fatalf("re-Wait: got %v, want %v", err, errSource)
	}
	if err := u.Err(); !errors.Is(err, errSource) {
		t.Fatalf("Err: got %v, want %v", err, errSource)
	}
}

func TestFailedUnitDoesNotAffectOthers(t *testing.T) {
	errSource := errors.New("source unavailable")
	q := newTestQueue(t, testConfig(), func(u *UpdateUnit[uint64]) error {
		if u.Keys()[0] == 13 {
			return errSource
		}
		return echoUpdate(u)
	})

	bad := NewUpdateUnit([]uint64{13}, testRequest, Counters{})
	defer bad.Release()
	good := NewUpdateUnit([]uint64{7}, testRequest, Counters{})
	defer good.Release()

	if err := q.Push(bad); err != nil {
		t.Fatalf("Push bad: %v", err)
	}
	if err := q.Push(good); err != nil {
		t.Fatalf("Push good: %v", err)
	}

	if err := q.Wait(bad); !errors.Is(err, errSource) {
		t.Fatalf("Wait bad: got %v, want %v", err, errSource)
	}
	if err := q.Wait(good); err != nil {
		t.Fatalf("Wait good: %v", err)
	}
	if _, ok := good.FoundRows[7]; !ok {
		t.Fatal("good unit missing its result")
	}
}

func TestStopCompletesEveryPushedUnit(t *testing.T) {
	cfg := Configuration{
		MaxQueueSize: 8,
		MaxThreads:   2,
		PushTimeout:  time.Second,
		WaitTimeout:  5 * time.Second,
	}
	q, err := NewUpdateQueue("test", cfg, func(u *UpdateUnit[uint64]) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("NewUpdateQueue: %v", err)
	}

	units := make([]*UpdateUnit[uint64], 5)
	for i := range units {
		units[i] = NewUpdateUnit([]uint64{uint64(i)}, testRequest, Counters{})
		defer units[i].Release()
		if err := q.Push(units[i]); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	q.StopAndWait()

	// Every pushed unit is resolved: genuinely processed or shutdown-resolved,
	// never left pending.
	for i, u := range units {
		if !u.Done() {
			t.Fatalf("unit %d still pending after StopAndWait", i)
		}
		if err := u.Err(); err != nil && !errors.Is(err, ErrShutdown) {
			t.Fatalf("unit %d: unexpected outcome %v", i, err)
		}
	}
}

func TestCallbackPanicBecomesError(t *testing.T) {
	q := newTestQueue(t, testConfig(), func(u *UpdateUnit[uint64]) error {
		panic("boom")
	})

	u := NewUpdateUnit([]uint64{1}, testRequest, Counters{})
	defer u.Release()
	if err := q.Push(u); err != nil {
		t.Fatalf("Push: %v", err)
	}
	err := q.Wait(u)
	if err == nil {
		t.Fatal("Wait: nil error after callback panic")
	}
}

func TestCallbackInvokedExactlyOnce(t *testing.T) {
	var calls atomic.Int64
	q := newTestQueue(t, testConfig(), func(u *UpdateUnit[uint64]) error {
		calls.Add(1)
		return nil
	})

	u := NewUpdateUnit([]uint64{1}, testRequest, Counters{})
	defer u.Release()
	if err := q.Push(u); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Wait(u); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := q.Wait(u); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("callback ran %d times, want 1", n)
	}
}

func TestFIFOWithSingleWorker(t *testing.T) {
	var mu sync.Mutex
	var order []uint64
	cfg := Configuration{
		MaxQueueSize: 32,
		MaxThreads:   1,
		PushTimeout:  time.Second,
		WaitTimeout:  2 * time.Second,
	}
	q := newTestQueue(t, cfg, func(u *UpdateUnit[uint64]) error {
		mu.Lock()
		order = append(order, u.Keys()[0])
		mu.Unlock()
		return nil
	})

	const n = 16
	units := make([]*UpdateUnit[uint64], n)
	for i := range units {
		units[i] = NewUpdateUnit([]uint64{uint64(i)}, testRequest, Counters{})
		defer units[i].Release()
		if err := q.Push(units[i]); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	for i, u := range units {
		if err := q.Wait(u); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, k := range order {
		if k != uint64(i) {
			t.Fatalf("processed order %v, want ascending", order)
		}
	}
}

func TestWaitTimesOutThenObservesCompletion(t *testing.T) {
	release := make(chan struct{})
	cfg := Configuration{
		MaxQueueSize: 4,
		MaxThreads:   1,
		PushTimeout:  time.Second,
		WaitTimeout:  30 * time.Millisecond,
	}
	q := newTestQueue(t, cfg, func(u *UpdateUnit[uint64]) error {
		<-release
		return echoUpdate(u)
	})

	u := NewUpdateUnit([]uint64{5}, testRequest, Counters{})
	defer u.Release()
	if err := q.Push(u); err != nil {
		t.Fatalf("Push: %v", err)
	}

	err := q.Wait(u)
	var te *TimeoutError
	if !errors.As(err, &te) || te.Op != "wait" {
		t.Fatalf("Wait: got %v, want wait *TimeoutError", err)
	}
	if u.Done() {
		t.Fatal("unit done while worker still blocked")
	}

	// A timed-out wait abandons nothing: the unit completes normally.
	close(release)
	if err := q.Wait(u); err != nil {
		t.Fatalf("Wait after release: %v", err)
	}
	if _, ok := u.FoundRows[5]; !ok {
		t.Fatal("result missing after late completion")
	}
}

func TestStopResolvesQueuedUnits(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	cfg := Configuration{
		MaxQueueSize: 4,
		MaxThreads:   1,
		PushTimeout:  time.Second,
		WaitTimeout:  5 * time.Second,
	}
	q, err := NewUpdateQueue("test", cfg, func(u *UpdateUnit[uint64]) error {
		started <- struct{}{}
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("NewUpdateQueue: %v", err)
	}

	a := NewUpdateUnit([]uint64{1}, testRequest, Counters{})
	defer a.Release()
	b := NewUpdateUnit([]uint64{2}, testRequest, Counters{})
	defer b.Release()

	if err := q.Push(a); err != nil {
		t.Fatalf("Push a: %v", err)
	}
	<-started
	if err := q.Push(b); err != nil {
		t.Fatalf("Push b: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- q.Wait(b) }()

	stopped := make(chan struct{})
	go func() {
		q.StopAndWait()
		close(stopped)
	}()

	// The waiter on the still-queued b must unblock with a shutdown error.
	select {
	case err := <-waitErr:
		if !errors.Is(err, ErrShutdown) {
			t.Fatalf("Wait b during stop: got %v, want ErrShutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter still blocked during shutdown")
	}

	// Stop completes once the in-flight unit finishes.
	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("StopAndWait did not return")
	}

	if !q.IsFinished() {
		t.Fatal("IsFinished false after StopAndWait")
	}

	// Once the callback unblocks, the worker may either genuinely process the
	// still-queued b before exiting or leave it for the shutdown drain. Both
	// resolve the unit; a later Wait must report whichever outcome and never
	// hang.
	if !b.Done() {
		t.Fatal("unit b unresolved after StopAndWait")
	}
	if err := q.Wait(b); err != nil && !errors.Is(err, ErrShutdown) {
		t.Fatalf("Wait b after stop: got %v, want nil or ErrShutdown", err)
	}

	c := NewUpdateUnit([]uint64{3}, testRequest, Counters{})
	defer c.Release()
	if err := q.Push(c); !errors.Is(err, ErrStopped) {
		t.Fatalf("Push after stop: got %v, want ErrStopped", err)
	}
}

func TestStopUnblocksPendingPush(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	cfg := Configuration{
		MaxQueueSize: 1,
		MaxThreads:   1,
		PushTimeout:  5 * time.Second,
		WaitTimeout:  5 * time.Second,
	}
	q, err := NewUpdateQueue("test", cfg, func(u *UpdateUnit[uint64]) error {
		started <- struct{}{}
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("NewUpdateQueue: %v", err)
	}

	a := NewUpdateUnit([]uint64{1}, testRequest, Counters{})
	defer a.Release()
	if err := q.Push(a); err != nil {
		t.Fatalf("Push a: %v", err)
	}
	<-started

	pushErr := make(chan error, 1)
	b := NewUpdateUnit([]uint64{2}, testRequest, Counters{})
	defer b.Release()
	go func() { pushErr <- q.Push(b) }()

	time.Sleep(20 * time.Millisecond) // let the push block on the full queue
	go q.StopAndWait()

	select {
	case err := <-pushErr:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("blocked Push: got %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Push not unblocked by stop")
	}
	close(release)
}

func TestWaitPrefersCompletionOverShutdown(t *testing.T) {
	q, err := NewUpdateQueue("test", testConfig(), echoUpdate)
	if err != nil {
		t.Fatalf("NewUpdateQueue: %v", err)
	}
	q.StopAndWait()

	// A waiter woken by the stop signal while its unit completed in the same
	// instant must see the unit's outcome, not a shutdown error.
	done := NewUpdateUnit([]uint64{1}, testRequest, Counters{})
	defer done.Release()
	done.finish(nil)
	if err := q.shutdownOutcome(done); err != nil {
		t.Fatalf("completed unit resolved as %v, want its nil outcome", err)
	}

	failed := NewUpdateUnit([]uint64{2}, testRequest, Counters{})
	defer failed.Release()
	outcome := errTest("source unavailable")
	failed.finish(outcome)
	if err := q.shutdownOutcome(failed); err != outcome {
		t.Fatalf("failed unit resolved as %v, want its captured outcome", err)
	}

	pending := NewUpdateUnit([]uint64{3}, testRequest, Counters{})
	defer pending.Release()
	if err := q.shutdownOutcome(pending); !errors.Is(err, ErrShutdown) {
		t.Fatalf("unresolved unit resolved as %v, want ErrShutdown", err)
	}

	// The full Wait path agrees on an already-completed unit after stop.
	if err := q.Wait(done); err != nil {
		t.Fatalf("Wait on completed unit after stop: %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	q, err := NewUpdateQueue("test", testConfig(), echoUpdate)
	if err != nil {
		t.Fatalf("NewUpdateQueue: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.StopAndWait()
		}()
	}
	wg.Wait()
	q.StopAndWait()
	if !q.IsFinished() {
		t.Fatal("IsFinished false after repeated StopAndWait")
	}
}

func TestNewUpdateQueueValidation(t *testing.T) {
	good := testConfig()
	cases := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"zero queue size", func(c *Configuration) { c.MaxQueueSize = 0 }},
		{"negative threads", func(c *Configuration) { c.MaxThreads = -1 }},
		{"zero push timeout", func(c *Configuration) { c.PushTimeout = 0 }},
		{"negative wait timeout", func(c *Configuration) { c.WaitTimeout = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := good
			tc.mutate(&cfg)
			if _, err := NewUpdateQueue[uint64]("bad", cfg, echoUpdate); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}

	if _, err := NewUpdateQueue[uint64]("nofn", good, nil); err == nil {
		t.Fatal("expected error for nil update function")
	}

	q, err := NewUpdateQueue("ok", good, echoUpdate)
	if err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}
	defer q.StopAndWait()
	if q.Name() != "ok" {
		t.Fatalf("Name = %q", q.Name())
	}
	if got := q.GetConfiguration(); got != good {
		t.Fatalf("GetConfiguration = %+v, want %+v", got, good)
	}
}

func TestDefaultConfigurationValid(t *testing.T) {
	if err := DefaultConfiguration().Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
}
