package client

import "sync"

// RefreshResult is what a settled refresh hands to its waiters.
type RefreshResult struct {
	AccessToken string
	Err         error
}

// RefreshCoordinator guarantees at most one refresh in flight. The first
// caller to TryAcquire runs the refresh; later callers register with
// OnSettled and are called back, in registration order, when the owner
// calls Release.
type RefreshCoordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []func(RefreshResult)
}

func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

// TryAcquire sets the in-flight flag and reports whether the caller now owns
// the refresh.
func (c *RefreshCoordinator) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

// OnSettled queues cb for the refresh currently in flight. It returns false,
// without queueing, when no refresh is in flight.
func (c *RefreshCoordinator) OnSettled(cb func(RefreshResult)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inFlight {
		return false
	}
	c.waiters = append(c.waiters, cb)
	return true
}

// Release clears the flag and invokes every queued callback with r in FIFO
// order. Callbacks run on the releasing goroutine and must not block.
func (c *RefreshCoordinator) Release(r RefreshResult) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, cb := range waiters {
		cb(r)
	}
}

func (c *RefreshCoordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Waiting returns the number of queued callbacks.
func (c *RefreshCoordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
