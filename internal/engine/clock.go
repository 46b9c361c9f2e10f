package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping transactions.
//
// Journal entries are ordered by the clock value, never by wall time, so a
// replayed journal lists transactions in the order they were opened.
// Clock is safe for concurrent use; a Manager shares one clock between all
// of its contexts.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, typically the last
// journaled sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
