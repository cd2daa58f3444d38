package vportio

import (
	"sync"
	"time"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/ring"
)

// egressCacheSize and egressDeadline mirror spec.md §4.1's per-core
// transmit cache: outbound frames accumulate until the cache fills or
// a short deadline elapses, amortizing the cost of handing frames to
// the peer over many packets instead of one at a time.
const (
	egressCacheSize = 32
	egressDeadline  = 100 * time.Microsecond
)

// queuePort backs Client, Veth, Vhost, Bridge, and Vswitchd vports
// with an in-process ring pair standing in for the guest- or
// peer-facing transport those types front in a real deployment. A
// producer external to this package (a guest agent, another pipeline,
// a test) pushes frames onto ingress for ReceiveBurst to drain, and
// drains egress itself to observe what SendOne accumulated there.
type queuePort struct {
	ingress *ring.Ring[*bufpool.Buffer]
	egress  *ring.Ring[*bufpool.Buffer]

	mu        sync.Mutex
	cache     []*bufpool.Buffer
	lastFlush time.Time
}

func newQueuePort(capacity int) *queuePort {
	return &queuePort{
		ingress:   ring.New[*bufpool.Buffer](capacity),
		egress:    ring.New[*bufpool.Buffer](capacity),
		cache:     make([]*bufpool.Buffer, 0, egressCacheSize),
		lastFlush: time.Time{},
	}
}

// Ingress exposes the queue a test or in-process peer pushes arriving
// frames onto.
func (q *queuePort) Ingress() *ring.Ring[*bufpool.Buffer] { return q.ingress }

// Egress exposes the queue a test or in-process peer drains flushed
// outbound frames from.
func (q *queuePort) Egress() *ring.Ring[*bufpool.Buffer] { return q.egress }

func (q *queuePort) ReceiveBurst(out []*bufpool.Buffer) int {
	n := 0
	for n < len(out) {
		b, ok := q.ingress.Pop()
		if !ok {
			break
		}
		out[n] = b
		n++
	}
	return n
}

func (q *queuePort) SendOne(b *bufpool.Buffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastFlush.IsZero() {
		q.lastFlush = time.Now()
	}
	q.cache = append(q.cache, b)
	if len(q.cache) >= egressCacheSize || time.Since(q.lastFlush) >= egressDeadline {
		q.flushLocked()
	}
	return nil
}

func (q *queuePort) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushLocked()
}

func (q *queuePort) flushLocked() {
	for _, b := range q.cache {
		if !q.egress.Push(b) {
			b.Release()
		}
	}
	q.cache = q.cache[:0]
	q.lastFlush = time.Now()
}
