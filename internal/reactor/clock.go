package reactor

import "sync/atomic"

// Clock stamps every state the reactor produces with a strictly increasing
// number. The evaluator treats equal stamps as the same state, so stamps
// are never reused within a reactor.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next stamp.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the last issued stamp without advancing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
