// Package bufpool implements the fixed-size packet buffer and its
// preallocated, per-core-cached pool, per spec.md §2 and §4.1. It is
// grounded on the DPDK-style mempool/mbuf split this corpus's
// DPDK-manager reference reaches for (a shared pool backing small
// per-worker caches), adapted to a pure-Go reference-counted buffer
// since there is no rte_mbuf here.
package bufpool

import (
	"sync"
	"sync/atomic"
)

// Headroom is the number of bytes reserved before the packet payload
// in every buffer, sized to fit the prepended upcall header
// (spec.md §4.5: "if the header does not fit in headroom, the packet
// is dropped").
const Headroom = 64

// DataSize is the maximum frame size a buffer can hold after
// headroom, large enough for a full jumbo-safe Ethernet frame.
const DataSize = 9216

// bufSize is the total backing array size per buffer.
const bufSize = Headroom + DataSize

// Buffer is a fixed-size packet buffer with reserved headroom.
// Cloning (Clone) shares the backing array by reference count rather
// than copying; Release decrements the count and, at zero, returns the
// buffer to its owning pool's per-core cache.
type Buffer struct {
	pool *Pool
	core int

	raw    [bufSize]byte
	start  int // offset of payload start within raw
	length int // payload length

	refs int32
}

// Data returns the buffer's current payload slice.
func (b *Buffer) Data() []byte {
	return b.raw[b.start : b.start+b.length]
}

// Set overwrites the payload with data, anchored at the buffer's
// headroom boundary. Used by the action executor for mutations that
// resize the frame (PUSH_VLAN/POP_VLAN) as well as in-place field
// rewrites, since it's always safe to re-anchor at Headroom before any
// upcall header has been prepended.
func (b *Buffer) Set(data []byte) {
	b.start = Headroom
	b.length = copy(b.raw[Headroom:], data)
}

// Write copies src into the buffer at byte offset off within the
// current payload, for in-place field rewrites that don't change the
// frame length (SET_ETHERNET, SET_IPV4, SET_TCP, SET_UDP).
func (b *Buffer) Write(off int, src []byte) {
	copy(b.raw[b.start+off:], src)
}

// Headroom returns the number of free bytes before the payload, used
// by the upcall path to decide whether the upcall header fits.
func (b *Buffer) Headroom() int {
	return b.start
}

// PrependHeadroom writes hdr immediately before the current payload
// and returns false if it doesn't fit, per spec.md §4.5.
func (b *Buffer) PrependHeadroom(hdr []byte) bool {
	if len(hdr) > b.start {
		return false
	}
	b.start -= len(hdr)
	copy(b.raw[b.start:], hdr)
	b.length += len(hdr)
	return true
}

// Clone increments the shared refcount and returns b itself: the clone
// is the same Buffer, not a copy, so it shares payload, start and
// length with the original. Used by the action executor when
// an action list contains more than one OUTPUT (spec.md §4.1).
func (b *Buffer) Clone() *Buffer {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// release decrements the refcount and, when it reaches zero, returns
// the buffer to the per-core cache it came from.
func (b *Buffer) release() {
	if atomic.AddInt32(&b.refs, -1) > 0 {
		return
	}
	b.start = Headroom
	b.length = 0
	if b.pool != nil {
		b.pool.put(b.core, b)
	}
}

// Release is the public form of release, called once per logical
// owner of the buffer (see Clone).
func (b *Buffer) Release() { b.release() }

// coreCache is a small per-core freelist guarded by its own mutex, so
// that releasing a buffer never contends across cores on the fast
// path (spec.md §5: "no cross-core mutation on the fast path").
type coreCache struct {
	mu    sync.Mutex
	free  []*Buffer
	limit int
}

// Pool is the preallocated, fixed-size buffer pool shared by every
// pipeline. Each core has its own cache of free buffers; the cache
// spills to (and refills from) the shared backing pool only at its
// boundaries, never on every Alloc/Release.
type Pool struct {
	backingMu sync.Mutex
	backing   []*Buffer

	caches []coreCache
}

// New creates a Pool with capacity buffers total and nCores per-core
// caches holding up to cacheSize buffers each. Every buffer starts in
// the shared backing slice; a core's cache fills from it on that core's
// first Alloc.
func New(capacity, nCores, cacheSize int) *Pool {
	p := &Pool{
		caches: make([]coreCache, nCores),
	}
	for i := 0; i < capacity; i++ {
		p.backing = append(p.backing, &Buffer{pool: p, start: Headroom})
	}
	for i := range p.caches {
		p.caches[i].limit = cacheSize
	}
	return p
}

// Alloc returns a free buffer from the given core's cache, refilling
// from the shared backing pool if the cache is empty. Returns nil if
// the pool is exhausted (spec.md's NOBUFS condition).
func (p *Pool) Alloc(core int) *Buffer {
	c := &p.caches[core%len(p.caches)]

	c.mu.Lock()
	if len(c.free) == 0 {
		p.refill(c)
	}
	var b *Buffer
	if n := len(c.free); n > 0 {
		b = c.free[n-1]
		c.free = c.free[:n-1]
	}
	c.mu.Unlock()

	if b != nil {
		b.core = core % len(p.caches)
		b.refs = 1
		b.start = Headroom
		b.length = 0
	}
	return b
}

// AllocFrame allocates a buffer from core's cache and copies frame
// into it, returning nil if the pool is exhausted.
func (p *Pool) AllocFrame(core int, frame []byte) *Buffer {
	b := p.Alloc(core)
	if b == nil {
		return nil
	}
	b.Set(frame)
	return b
}

// refill moves up to c.limit buffers from the shared backing slice
// into the core cache. Caller holds c.mu.
func (p *Pool) refill(c *coreCache) {
	p.backingMu.Lock()
	defer p.backingMu.Unlock()

	want := c.limit
	if want > len(p.backing) {
		want = len(p.backing)
	}
	c.free = append(c.free, p.backing[len(p.backing)-want:]...)
	p.backing = p.backing[:len(p.backing)-want]
}

// put returns a buffer to the named core's cache, spilling the
// overflow back to the shared backing slice if the cache is full.
func (p *Pool) put(core int, b *Buffer) {
	c := &p.caches[core%len(p.caches)]

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.free) >= c.limit {
		p.backingMu.Lock()
		p.backing = append(p.backing, b)
		p.backingMu.Unlock()
		return
	}
	c.free = append(c.free, b)
}

// Count returns the total number of buffers currently tracked as free,
// across every core cache and the shared backing slice. Used by tests
// to assert that pool occupancy is unchanged across a processing round
// (spec.md §8 scenario 3).
func (p *Pool) Count() int {
	p.backingMu.Lock()
	n := len(p.backing)
	p.backingMu.Unlock()

	for i := range p.caches {
		p.caches[i].mu.Lock()
		n += len(p.caches[i].free)
		p.caches[i].mu.Unlock()
	}
	return n
}
