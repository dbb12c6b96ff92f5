package engine

import (
	"maps"
	"sync"
)

// Clock hands out tick numbers and remembers which tick each system last
// ran at.
//
// Every tick, successful or faulted, takes the next number. Tick numbers
// appear in error records and are visible to logic through w.Tick(), so a
// restored workspace resumes its clock with NewClockAt. Per-system history
// is not persisted; a restored clock starts with none.
type Clock struct {
	mu   sync.Mutex
	tick int64
	last map[string]int64
}

// NewClock returns a clock whose first tick is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose next tick is start+1.
func NewClockAt(start int64) *Clock {
	return &Clock{tick: start, last: make(map[string]int64)}
}

// Next advances the clock and stamps the new tick on system.
func (c *Clock) Next(system string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	c.last[system] = c.tick
	return c.tick
}

// Current returns the last tick number handed out, 0 before the first.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Last returns the tick system most recently ran at.
func (c *Clock) Last(system string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[system]
	return t, ok
}

// LastTicks returns a copy of every system's most recent tick.
func (c *Clock) LastTicks() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.last)
}
