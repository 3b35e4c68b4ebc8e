package testsupport

import (
	"context"
	"sync"
	"time"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// ManualExecutor records submitted work until the test runs it. Work and
// its continuation both run on the test goroutine.
type ManualExecutor struct {
	queue []func(context.Context) func()
}

// Go records work.
func (x *ManualExecutor) Go(work func(ctx context.Context) func()) {
	x.queue = append(x.queue, work)
}

// Pending returns the number of recorded calls not yet run.
func (x *ManualExecutor) Pending() int { return len(x.queue) }

// RunNext runs the oldest recorded call and its continuation. It reports
// false when nothing was queued.
func (x *ManualExecutor) RunNext() bool {
	if len(x.queue) == 0 {
		return false
	}
	work := x.queue[0]
	x.queue = x.queue[1:]
	if resume := work(context.Background()); resume != nil {
		resume()
	}
	return true
}

// RunAll drains the queue, including calls submitted by continuations.
func (x *ManualExecutor) RunAll() int {
	n := 0
	for x.RunNext() {
		n++
	}
	return n
}

// Hold runs the oldest recorded call now but returns its continuation for
// the test to invoke later, simulating a response still on the wire.
func (x *ManualExecutor) Hold() func() {
	if len(x.queue) == 0 {
		return nil
	}
	work := x.queue[0]
	x.queue = x.queue[1:]
	return work(context.Background())
}
