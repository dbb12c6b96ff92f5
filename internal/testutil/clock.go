package testutil

import (
	"sync"
	"time"
)

// FakeClock is a wall clock that advances by a fixed step on every call.
//
// Stores and reports stamp times with Now; with a FakeClock the same
// scenario produces byte-identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewFakeClock creates a clock whose first Now returns start.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	return &FakeClock{start: start, now: start, step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the time the next Now call will return.
func (c *FakeClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start time.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
