package timeline

import "sync/atomic"

// seqClock is the monotonic insertion-sequence counter for a timeline.
//
// Every interval is stamped with a strictly increasing seq at creation. The
// seq records arrival order independent of time order: late-arriving data may
// carry an earlier start than the last-inserted interval, and identical start
// times (possible after a merge) are tie-broken by seq so that ordering stays
// deterministic and independent of interval content.
//
// Thread-safety: safe for concurrent use (atomic operations).
type seqClock struct {
	seq atomic.Int64
}

// newSeqClockAt creates a clock resuming from a known position. Used when a
// merge commits a staged timeline that already consumed sequence numbers.
func newSeqClockAt(start int64) *seqClock {
	c := &seqClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *seqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *seqClock) Current() int64 {
	return c.seq.Load()
}
