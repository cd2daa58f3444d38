package control

import (
	"github.com/ovsdp/ovsdp/pkg/action"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

// untaggedL4Offset is the byte offset of the L4 header for an
// untagged Ethernet+IPv4 frame with no IP options, the common case
// for daemon-injected packets arriving via PACKET_CMD_FAMILY.
const untaggedL4Offset = 34

func executePacket(m *PacketMsg, reg *vport.Registry) {
	action.Execute(m.Buf, m.Actions, reg, nil, untaggedL4Offset)
}
