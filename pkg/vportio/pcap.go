// Package vportio provides the concrete vport.IOPort implementations
// the control channel's VPORT NEW handler attaches to a newly created
// vport, one per vport.Type. Physical NIC and KNI ports are grounded
// on this corpus's bridge capture handle (gopacket/pcap, OpenLive plus
// a short read timeout so ReadPacketData never blocks the poll loop
// for long); client/veth/vhost/bridge/vswitchd ports are in-process
// ring-backed queues standing in for the guest-facing transports
// spec.md §4.1 describes.
package vportio

import (
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
)

// readTimeout bounds how long a single ReadPacketData call may block,
// keeping a physical port's ReceiveBurst call non-blocking in
// practice even though libpcap's live-capture API has no true
// zero-timeout poll mode.
const readTimeout = time.Microsecond

// pcapPort backs Phy and KNI vports with a live capture handle.
type pcapPort struct {
	handle *pcap.Handle
	pool   *bufpool.Pool
	core   int
}

// newPCAPPort opens device in promiscuous mode for both capture and
// injection.
func newPCAPPort(device string, pool *bufpool.Pool, core int) (*pcapPort, error) {
	handle, err := pcap.OpenLive(device, 1<<16, true, readTimeout)
	if err != nil {
		return nil, err
	}
	return &pcapPort{handle: handle, pool: pool, core: core}, nil
}

func (p *pcapPort) ReceiveBurst(out []*bufpool.Buffer) int {
	n := 0
	for n < len(out) {
		data, _, err := p.handle.ReadPacketData()
		if err != nil {
			break
		}
		b := p.pool.AllocFrame(p.core, data)
		if b == nil {
			break
		}
		out[n] = b
		n++
	}
	return n
}

func (p *pcapPort) SendOne(b *bufpool.Buffer) error {
	if err := p.handle.WritePacketData(b.Data()); err != nil {
		return err
	}
	b.Release()
	return nil
}

func (p *pcapPort) Flush() {}

func (p *pcapPort) Close() { p.handle.Close() }
