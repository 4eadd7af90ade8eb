package game

import (
	"sync"
	"time"
)

// Clock is the simulation's only source of wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock keeps the monotonic reading, so in-process tick deltas
// ignore wall-clock jumps. Offline catch-up compares against the wall
// time restored from a save instead.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock moves only when told to, so a loop can be stepped one
// tick at a time.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d and returns the new time. A negative d
// simulates the wall clock being set back.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Tick advances n steps of step each, calling onTick after every step the
// way the loop's ticker would. It returns the final time.
func (c *ManualClock) Tick(n int, step time.Duration, onTick func(time.Time)) time.Time {
	now := c.Now()
	for i := 0; i < n; i++ {
		now = c.Advance(step)
		if onTick != nil {
			onTick(now)
		}
	}
	return now
}
