package refillq

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStopped reports an operation against a queue whose StopAndWait has
	// already run. Callers should not retry.
	ErrStopped = errors.New("update queue is stopped")

	// ErrShutdown reports a unit that was force-resolved because the queue
	// stopped before a worker completed it. Unlike a wait timeout, the unit
	// will never complete with data.
	ErrShutdown = errors.New("update abandoned at queue shutdown")
)

// TimeoutError reports a push or wait that exceeded its configured timeout.
// After a push timeout the unit was never enqueued; after a wait timeout the
// unit may still complete later in the background.
type TimeoutError struct {
	Queue   string
	Op      string // "push" or "wait"
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("refillq: %s on queue %q timed out after %s", e.Op, e.Queue, e.Timeout)
}
