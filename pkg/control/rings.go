package control

import (
	"fmt"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/ring"
)

// DefaultRingCapacity is the per-ring depth spec.md §4.5 specifies.
const DefaultRingCapacity = 2048

// Channel is the eight-ring control-plane transport for one pipeline,
// named after spec.md §4.5's OVDK%02u_*_Ring template.
type Channel struct {
	ID int

	Request *ring.Ring[*DatapathMessage]
	Reply   *ring.Ring[*DatapathMessage]

	// Exception carries raw buffers, each with a {cmd, flow_key} upcall
	// header already prepended via Buffer.PrependHeadroom, per spec.md's
	// "Exception upcall" section — not DatapathMessage envelopes, since
	// the daemon strips the header directly off the packet payload.
	Exception *ring.Ring[*bufpool.Buffer]

	Packet      *ring.Ring[*bufpool.Buffer]
	PacketFree  *ring.Ring[*bufpool.Buffer]
	PacketAlloc *ring.Ring[*bufpool.Buffer]

	ControlFree  *ring.Ring[*DatapathMessage]
	ControlAlloc *ring.Ring[*DatapathMessage]
}

// NewChannel builds the eight rings for pipeline id, each of the given
// capacity (rounded up to a power of two by ring.New; pass
// DefaultRingCapacity for the spec's 2048 depth).
func NewChannel(id, capacity int) *Channel {
	return &Channel{
		ID:           id,
		Request:      ring.New[*DatapathMessage](capacity),
		Reply:        ring.New[*DatapathMessage](capacity),
		Exception:    ring.New[*bufpool.Buffer](capacity),
		Packet:       ring.New[*bufpool.Buffer](capacity),
		PacketFree:   ring.New[*bufpool.Buffer](capacity),
		PacketAlloc:  ring.New[*bufpool.Buffer](capacity),
		ControlFree:  ring.New[*DatapathMessage](capacity),
		ControlAlloc: ring.New[*DatapathMessage](capacity),
	}
}

// Name renders the ring's spec.md-style name for logging, e.g.
// "OVDK00_Request_Ring".
func (c *Channel) Name(ringName string) string {
	return fmt.Sprintf("OVDK%02d_%s_Ring", c.ID, ringName)
}

// ReplenishPacketAlloc tops up the packet-alloc ring from pool until
// its occupancy is at least a quarter of its capacity, per spec.md
// §4.5 step 4 ("replenish the alloc ring until its occupancy is ≥ 25%
// of ring size"). occupied is the caller's best estimate of current
// fill (this bounded ring exposes no direct length query without
// draining it, so callers track their own push/pop balance).
func ReplenishPacketAlloc(ch *Channel, pool *bufpool.Pool, core int, occupied *int) {
	target := ch.PacketAlloc.Cap() / 4
	for *occupied < target {
		b := pool.Alloc(core)
		if b == nil {
			return
		}
		if !ch.PacketAlloc.Push(b) {
			b.Release()
			return
		}
		*occupied++
	}
}
