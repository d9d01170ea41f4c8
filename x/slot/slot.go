// Package slot provides a single-value, overwrite-on-write mailbox.
//
// A Slot holds at most one value. Write replaces whatever is there and never
// blocks; TryRead returns the latest value without consuming it and never
// blocks. Each write publishes a freshly allocated cell through one atomic
// pointer swap, so readers observe either the previous or the new value,
// never a mix of both.
package slot

import "sync/atomic"

type cell[T any] struct {
	v   T
	seq uint64
}

// Slot is safe for one writer and any number of concurrent readers.
// The zero value is an empty slot ready for use.
type Slot[T any] struct {
	p   atomic.Pointer[cell[T]]
	seq atomic.Uint64
}

// New returns an empty slot.
func New[T any]() *Slot[T] { return &Slot[T]{} }

// Write stores v, replacing any previous value.
func (s *Slot[T]) Write(v T) {
	s.p.Store(&cell[T]{v: v, seq: s.seq.Add(1)})
}

// TryRead returns the most recent value and true, or the zero value and
// false if nothing has been written yet.
func (s *Slot[T]) TryRead() (T, bool) {
	c := s.p.Load()
	if c == nil {
		var zero T
		return zero, false
	}
	return c.v, true
}

// ReadOr returns the most recent value, or def when the slot is empty.
func (s *Slot[T]) ReadOr(def T) T {
	if v, ok := s.TryRead(); ok {
		return v
	}
	return def
}

// Seq returns the write count of the value currently held (0 when empty).
// Readers use it to tell a fresh value from one they have already seen.
func (s *Slot[T]) Seq() uint64 {
	if c := s.p.Load(); c != nil {
		return c.seq
	}
	return 0
}
