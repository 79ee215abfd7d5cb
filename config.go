package refillq

import (
	"fmt"
	"time"
)

// Configuration holds the tuning parameters of an UpdateQueue. All fields
// must be positive and are fixed for the queue's lifetime.
type Configuration struct {
	// MaxQueueSize bounds the number of outstanding units: queued plus being
	// processed. Push blocks (up to PushTimeout) once the bound is reached.
	MaxQueueSize int
	// MaxThreads is the fixed worker pool size.
	MaxThreads int
	// PushTimeout is how long Push waits for a free slot before failing.
	PushTimeout time.Duration
	// WaitTimeout is how long Wait blocks for a unit to complete.
	WaitTimeout time.Duration
}

// DefaultConfiguration mirrors the defaults of the cache dictionary this
// queue was built for: a deep queue, a small pool, an aggressive push
// timeout and a generous query wait.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxQueueSize: 100000,
		MaxThreads:   4,
		PushTimeout:  10 * time.Millisecond,
		WaitTimeout:  60 * time.Second,
	}
}

func (c Configuration) Validate() error {
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("refillq: MaxQueueSize must be positive, got %d", c.MaxQueueSize)
	}
	if c.MaxThreads <= 0 {
		return fmt.Errorf("refillq: MaxThreads must be positive, got %d", c.MaxThreads)
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("refillq: PushTimeout must be positive, got %s", c.PushTimeout)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("refillq: WaitTimeout must be positive, got %s", c.WaitTimeout)
	}
	return nil
}
