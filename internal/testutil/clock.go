// Package testutil provides deterministic stand-ins for the pipeline's
// injectable collaborators: the wall clock and the snapshot token
// generator. It deliberately imports no other internal package so test
// files anywhere in the module can use it without cycles.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a controllable wall clock for tests.
//
// Its Now method matches the time.Now signature, so it plugs directly into
// anything configured with a `func() time.Time`.
//
// Thread-safety: all methods are safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the clock's current time without advancing it.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
