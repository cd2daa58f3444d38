package vportio

import (
	"encoding/binary"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/memnic"
)

// slotSize is one memnic ring slot: a 4-byte length prefix followed by
// frame data. 2048 bytes comfortably holds a standard 1500-byte MTU
// frame plus headroom.
const slotSize = 2048

// memnicPort backs a Memnic vport with the shared-memory region's
// uplink (guest writes, host reads) and downlink (host writes, guest
// reads) sections, each treated as a fixed-slot ring. The write index
// lives in the section's first 8 bytes so a guest process mapping the
// same file can follow along; the read index is kept locally since
// this process is the section's only reader.
type memnicPort struct {
	region  *memnic.Region
	pool    *bufpool.Pool
	core    int
	upRead  uint64
	upSlots int
	dnWrite uint64
	dnSlots int
}

func newMemnicPort(region *memnic.Region, pool *bufpool.Pool, core int) *memnicPort {
	return &memnicPort{
		region:  region,
		pool:    pool,
		core:    core,
		upSlots: (len(region.Uplink()) - 8) / slotSize,
		dnSlots: (len(region.Downlink()) - 8) / slotSize,
	}
}

func (p *memnicPort) ReceiveBurst(out []*bufpool.Buffer) int {
	up := p.region.Uplink()
	writeIdx := binary.LittleEndian.Uint64(up[0:8])

	n := 0
	for n < len(out) && p.upRead < writeIdx {
		slot := upSlot(up, int(p.upRead%uint64(p.upSlots)))
		length := binary.LittleEndian.Uint32(slot[0:4])
		if length == 0 || int(length) > slotSize-4 {
			p.upRead++
			continue
		}
		b := p.pool.AllocFrame(p.core, slot[4:4+length])
		if b == nil {
			break
		}
		out[n] = b
		n++
		p.upRead++
	}
	return n
}

func (p *memnicPort) SendOne(b *bufpool.Buffer) error {
	defer b.Release()
	dn := p.region.Downlink()
	data := b.Data()
	if len(data) > slotSize-4 {
		return nil
	}
	slot := upSlot(dn, int(p.dnWrite%uint64(p.dnSlots)))
	binary.LittleEndian.PutUint32(slot[0:4], uint32(len(data)))
	copy(slot[4:], data)
	p.dnWrite++
	binary.LittleEndian.PutUint64(dn[0:8], p.dnWrite)
	return nil
}

func (p *memnicPort) Flush() {}

func upSlot(section []byte, index int) []byte {
	off := 8 + index*slotSize
	return section[off : off+slotSize]
}
