package router

import "sync"

// Ring is a thread-safe FIFO that doubles its capacity instead of blocking
// or dropping when full. Producers on the connection read loop therefore
// never stall behind a slow database.
type Ring[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	count  int
	closed bool

	pushed int64
	popped int64
	grows  int
}

// NewRing creates a ring with the given initial capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{items: make([]T, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push appends an item, growing the ring when full.
// Returns false once the ring is closed.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if r.count == len(r.items) {
		r.grow()
	}

	r.items[(r.head+r.count)%len(r.items)] = item
	r.count++
	r.pushed++

	r.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking until one is available or the ring
// is closed. The second return is false only when the ring is closed and
// drained.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.pop(), true
}

// Drain removes up to max items without blocking. max <= 0 drains everything.
func (r *Ring[T]) Drain(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = r.pop()
	}
	return out
}

// Close closes the ring: further pushes fail, pops drain what remains.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the current capacity.
func (r *Ring[T]) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// RingStats counts ring traffic.
type RingStats struct {
	Len    int
	Cap    int
	Pushed int64
	Popped int64
	Grows  int
}

// Stats returns a snapshot of ring counters.
func (r *Ring[T]) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RingStats{
		Len:    r.count,
		Cap:    len(r.items),
		Pushed: r.pushed,
		Popped: r.popped,
		Grows:  r.grows,
	}
}

// pop removes the head item. Lock held.
func (r *Ring[T]) pop() T {
	item := r.items[r.head]
	var zero T
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.count--
	r.popped++
	return item
}

// grow doubles capacity, unwrapping the ring into the new slice. Lock held.
func (r *Ring[T]) grow() {
	grown := make([]T, len(r.items)*2)
	n := copy(grown, r.items[r.head:])
	copy(grown[n:], r.items[:r.head])
	r.items = grown
	r.head = 0
	r.grows++
}
