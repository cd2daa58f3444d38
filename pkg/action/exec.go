package action

import (
	"encoding/binary"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

// Offsets of the fields SET_ETHERNET/SET_IPV4/SET_TCP/SET_UDP rewrite
// in-place. The Ethernet and IPv4 offsets are relative to the start of
// an untagged Ethernet+IPv4 frame (14-byte Ethernet header), so
// SET_IPV4 assumes no 802.1Q tag; the TCP/UDP port offsets are relative
// to the l4Offset Execute is given.
const (
	ethDstOff = 0
	ethSrcOff = 6

	ipv4SrcOff = 14 + 12
	ipv4DstOff = 14 + 16
	ipv4TosOff = 14 + 1
	ipv4TTLOff = 14 + 8

	tcpSrcPortOff = 0
	tcpDstPortOff = 2
)

// Upcall delivers a packet that hit a VSWITCHD action to the control
// plane, addressed by the thread id the action carries. The caller
// owns buf; Execute hands it a buffer it must eventually Release.
type Upcall func(pid uint32, buf *bufpool.Buffer)

// Execute applies an action list to buf, sending, dropping, cloning,
// mutating, or upcalling it as each action directs, per spec.md §4.4.
// Execute always takes ownership of buf: on return, every reference it
// held (the original plus any clones it made) has been consumed by a
// Send, an Upcall, or a Release.
//
// l4Offset is the byte offset of the L4 header within buf's payload
// (34 for untagged Ethernet+IPv4 with no IP options, 38 if a single
// 802.1Q tag is present), needed to locate the fields SET_TCP/SET_UDP
// rewrite.
func Execute(buf *bufpool.Buffer, actions []Action, reg *vport.Registry, upcall Upcall, l4Offset int) {
	remainingOutputs := NumOutputs(actions)
	consumed := false

	for _, a := range actions {
		switch a.Kind {
		case Drop:
			buf.Release()
			consumed = true
			return

		case Output:
			remainingOutputs--
			out := buf
			if remainingOutputs > 0 {
				out = buf.Clone()
			} else {
				consumed = true
			}
			sendTo(reg, a.Port, out)
			if remainingOutputs <= 0 {
				return
			}

		case Vswitchd:
			if upcall != nil {
				upcall(a.PID, buf.Clone())
			}

		case PopVlan:
			popVlan(buf)

		case PushVlan:
			pushVlan(buf, a.TCI)

		case SetEthernet:
			buf.Write(ethDstOff, a.EthDst[:])
			buf.Write(ethSrcOff, a.EthSrc[:])

		case SetIPv4:
			var ipBuf [4]byte
			binary.BigEndian.PutUint32(ipBuf[:], a.IPSrc)
			buf.Write(ipv4SrcOff, ipBuf[:])
			binary.BigEndian.PutUint32(ipBuf[:], a.IPDst)
			buf.Write(ipv4DstOff, ipBuf[:])
			buf.Write(ipv4TosOff, []byte{a.IPTos})
			buf.Write(ipv4TTLOff, []byte{a.IPTTL})

		case SetTCP, SetUDP:
			var portBuf [2]byte
			binary.BigEndian.PutUint16(portBuf[:], a.TPSrc)
			buf.Write(l4Offset+tcpSrcPortOff, portBuf[:])
			binary.BigEndian.PutUint16(portBuf[:], a.TPDst)
			buf.Write(l4Offset+tcpDstPortOff, portBuf[:])
		}
	}

	if !consumed {
		// An action list with no terminal OUTPUT/DROP has the same
		// effect as an explicit DROP (spec.md §4.4).
		buf.Release()
	}
}

func sendTo(reg *vport.Registry, port VportID, buf *bufpool.Buffer) {
	v, ok := reg.Get(port)
	if !ok {
		buf.Release()
		return
	}
	v.Send(buf)
}

// popVlan removes a 4-byte 802.1Q tag starting at offset 12 (right
// after the two MAC addresses), shifting the EtherType and payload
// left over it.
func popVlan(buf *bufpool.Buffer) {
	data := buf.Data()
	if len(data) < 18 {
		return
	}
	rest := make([]byte, len(data)-4)
	copy(rest, data[:12])
	copy(rest[12:], data[16:])
	buf.Set(rest)
}

// pushVlan inserts a 4-byte 802.1Q tag (TPID 0x8100, tci) after the
// two MAC addresses, shifting the existing EtherType and payload
// right over it.
func pushVlan(buf *bufpool.Buffer, tci uint16) {
	data := buf.Data()
	if len(data) < 14 {
		return
	}
	grown := make([]byte, len(data)+4)
	copy(grown, data[:12])
	grown[12] = 0x81
	grown[13] = 0x00
	binary.BigEndian.PutUint16(grown[14:16], tci)
	copy(grown[16:], data[12:])
	buf.Set(grown)
}
