// Package testutil holds deterministic helpers shared by the scenario
// harness, the CLI and tests.
package testutil

import "sync"

// Sequence numbers trace events. The first call to Next returns 1.
//
// Unlike reactor.Clock, a Sequence can be rewound with Reset so one
// harness can run the same scenario twice with identical numbering.
type Sequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSequence returns a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the sequence number.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the last number handed out.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset rewinds to 0.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
