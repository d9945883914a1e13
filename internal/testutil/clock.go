package testutil

import (
	"fmt"
	"sync"
	"time"
)

// EventStart is the reception start used by FixedClock.
var EventStart = time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)

// StubClock is a manually driven moments.Clock. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock reading t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at EventStart.
func FixedClock() *StubClock {
	return NewStubClock(EventStart)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, e.g. past a queue entry's backoff.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator names artifacts "<prefix>-1", "<prefix>-2", ...
type StubIDGenerator struct {
	prefix string

	mu sync.Mutex
	n  int
}

// NewStubIDGenerator creates a generator whose IDs start with "shot".
func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{prefix: "shot"}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
