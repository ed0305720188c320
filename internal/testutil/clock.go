package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports.
var Epoch = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe clock for tests that advances by a
// fixed step on every reading.
//
// The same sequence of calls always yields the same timestamps, which keeps
// ledger files byte-comparable across runs.
type DeterministicClock struct {
	mu   sync.Mutex
	seq  int64
	step time.Duration
}

// NewDeterministicClock creates a clock that advances one millisecond per
// reading. The first call to Now returns Epoch + 1ms.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: time.Millisecond}
}

// Now advances the clock and returns the new instant.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return Epoch.Add(time.Duration(c.seq) * c.step)
}

// Current returns the number of readings taken so far.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock. The next call to Now returns Epoch + step.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
