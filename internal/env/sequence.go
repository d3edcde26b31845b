package env

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// SequenceSource issues SEQUENCE values. Implementations must never hand
// out the same value of a name twice.
type SequenceSource interface {
	NextValue(ctx context.Context, name string) (int64, error)
}

// Sequence is a monotonic counter. The first Next returns start+1.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	n atomic.Int64
}

// Next returns the next value and increments the sequence.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last value handed out without incrementing.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}

// Sequences is a registry of named sequences created on first use. It
// only guarantees distinct values within one process; a runtime over a
// shared database issues values through the store instead.
type Sequences struct {
	mu   sync.Mutex
	byID map[string]*Sequence
}

// NewSequences returns an empty registry.
func NewSequences() *Sequences {
	return &Sequences{byID: make(map[string]*Sequence)}
}

// NewSequencesAt returns a registry resuming from the given positions.
func NewSequencesAt(start map[string]int64) *Sequences {
	s := NewSequences()
	for name, n := range start {
		s.get(name).n.Store(n)
	}
	return s
}

func (s *Sequences) get(name string) *Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.byID[name]
	if !ok {
		seq = &Sequence{}
		s.byID[name] = seq
	}
	return seq
}

// Next increments the named sequence and returns its new value.
func (s *Sequences) Next(name string) int64 {
	return s.get(name).Next()
}

// NextValue implements SequenceSource.
func (s *Sequences) NextValue(_ context.Context, name string) (int64, error) {
	return s.Next(name), nil
}

// Snapshot returns the current position of every sequence.
func (s *Sequences) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byID))
	for name, seq := range s.byID {
		out[name] = seq.Current()
	}
	return out
}

// Names returns the registered sequence names in sorted order.
func (s *Sequences) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.byID))
	for name := range s.byID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
