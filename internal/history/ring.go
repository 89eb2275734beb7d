// Package history provides the fixed-capacity, newest-first sample buffer
// each device keeps.
package history

import "sync"

// Ring is a thread-safe circular buffer that keeps the most recent Cap()
// items. Logical index 0 is always the newest item; pushing into a full ring
// evicts the oldest. A Ring has a single writer in practice, but any number
// of goroutines may read snapshots concurrently.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // physical slot of the next write
	size  int
}

// NewRing allocates a ring holding up to capacity items. A non-positive
// capacity is treated as 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push stores item as the newest entry and returns the evicted oldest entry,
// if any.
func (r *Ring[T]) Push(item T) (evicted T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.items) {
		evicted, ok = r.items[r.head], true
	} else {
		r.size++
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	return evicted, ok
}

// physical maps logical index i (0 = newest) to a slot. Caller holds the lock.
func (r *Ring[T]) physical(i int) int {
	n := len(r.items)
	return ((r.head-1-i)%n + n) % n
}

// At returns the item at logical index i.
func (r *Ring[T]) At(i int) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if i < 0 || i >= r.size {
		return zero, false
	}
	return r.items[r.physical(i)], true
}

// Slice copies logical indices [lo, hi) newest-first. Bounds are clamped to
// the current length; an empty or inverted range yields nil.
func (r *Ring[T]) Slice(lo, hi int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lo < 0 {
		lo = 0
	}
	if hi > r.size {
		hi = r.size
	}
	if lo >= hi {
		return nil
	}
	out := make([]T, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, r.items[r.physical(i)])
	}
	return out
}

// Snapshot copies every item newest-first.
func (r *Ring[T]) Snapshot() []T {
	return r.Slice(0, r.Cap())
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}
