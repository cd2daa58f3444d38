// Package ring implements a bounded, lock-free multi-producer
// multi-consumer queue, the transport spec.md §6 calls for between
// pipelines, vports, and the control channel. It is Dmitry Vyukov's
// MPMC bounded queue algorithm: each slot carries its own sequence
// number so producers and consumers claim slots with a single CAS and
// never block each other, which is the closest a goroutine-scheduled
// program gets to the lock-free SPSC/MPMC rings a kernel-bypass
// datapath relies on (see SPEC_FULL.md's Go re-architecture notes).
package ring

import "sync/atomic"

type cell[T any] struct {
	sequence uint64
	value    T
}

// Ring is a bounded MPMC queue of capacity elements, where capacity
// must be a power of two. The zero value is not usable; use New.
type Ring[T any] struct {
	mask  uint64
	cells []cell[T]

	// enqueuePos and dequeuePos sit next to each other with no
	// cache-line padding between them; Go gives no portable cache-line
	// padding, so unlike a C implementation this ring accepts the
	// false sharing between producers and consumers.
	enqueuePos uint64
	dequeuePos uint64
}

// New creates a Ring with room for capacity elements. capacity is
// rounded up to the next power of two if it isn't one already,
// defaulting to spec.md §6's 2048 when capacity is zero or negative.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 2048
	}
	capacity = nextPowerOfTwo(capacity)

	r := &Ring[T]{
		mask:  uint64(capacity - 1),
		cells: make([]cell[T], capacity),
	}
	for i := range r.cells {
		r.cells[i].sequence = uint64(i)
	}
	return r
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.cells) }

// Push enqueues value, returning false without blocking if the ring is
// full (the NOSPC condition spec.md §6 describes for a saturated
// ring).
func (r *Ring[T]) Push(value T) bool {
	var c *cell[T]
	pos := atomic.LoadUint64(&r.enqueuePos)
	for {
		c = &r.cells[pos&r.mask]
		seq := atomic.LoadUint64(&c.sequence)
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&r.enqueuePos, pos, pos+1) {
				goto claimed
			}
			pos = atomic.LoadUint64(&r.enqueuePos)
		case diff < 0:
			return false
		default:
			pos = atomic.LoadUint64(&r.enqueuePos)
		}
	}
claimed:
	c.value = value
	atomic.StoreUint64(&c.sequence, pos+1)
	return true
}

// Pop dequeues the oldest value, returning false without blocking if
// the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	var c *cell[T]
	pos := atomic.LoadUint64(&r.dequeuePos)
	for {
		c = &r.cells[pos&r.mask]
		seq := atomic.LoadUint64(&c.sequence)
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&r.dequeuePos, pos, pos+1) {
				goto claimed
			}
			pos = atomic.LoadUint64(&r.dequeuePos)
		case diff < 0:
			return zero, false
		default:
			pos = atomic.LoadUint64(&r.dequeuePos)
		}
	}
claimed:
	value := c.value
	c.value = zero
	atomic.StoreUint64(&c.sequence, pos+r.mask+1)
	return value, true
}
