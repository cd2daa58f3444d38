// Package flowkey defines the exact-match flow key and the pure
// function that extracts one from a raw Ethernet frame.
package flowkey

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EncodedSize is the fixed wire width of Encode's output: InPort(4) +
// DstMAC(6) + SrcMAC(6) + EtherType(2) + VlanID(2) + VlanPCP(1) +
// HasVlan(1) + NWSrc(4) + NWDst(4) + NWProto(1) + NWTos(1) + NWTTL(1) +
// NWFrag(1) + TPSrc(2) + TPDst(2). Shared by the flow-shadow record
// layout and the exception-ring upcall header so both carry the same
// key bytes.
const EncodedSize = 4 + 6 + 6 + 2 + 2 + 1 + 1 + 4 + 4 + 1 + 1 + 1 + 1 + 2 + 2

// FragType is the IP fragmentation class of a key.
type FragType uint8

// Fragment classes used by the key's FragType field.
const (
	FragNone FragType = iota
	FragFirst
	FragLater
)

// VportID identifies the ingress port a key was extracted on. Defined
// here (rather than imported from package vport) to keep this package
// leaf-level and free of cycles; package vport uses the same type.
type VportID uint32

// Key is the fixed-layout, exact-match flow key described in spec.md
// §3. All multibyte fields are stored in host byte order once
// extraction completes. Fields absent from the frame are zero, and a
// Key is comparable with ==, which flowtable relies on for hashing and
// equality.
type Key struct {
	InPort     VportID
	DstMAC     [6]byte
	SrcMAC     [6]byte
	EtherType  uint16
	VlanID     uint16 // 12 bits
	VlanPCP    uint8  // 3 bits
	HasVlan    bool
	NWSrc      uint32
	NWDst      uint32
	NWProto    uint8
	NWTos      uint8
	NWTTL      uint8
	NWFrag     FragType
	TPSrc      uint16
	TPDst      uint16
}

// Extract parses the Ethernet/VLAN/IPv4/TCP/UDP headers out of a raw
// frame and returns the populated Key. It is a pure function of the
// frame bytes and the ingress port: no global state is read or
// mutated. Layers missing from the frame leave their corresponding
// key fields at zero, matching spec.md §4.3.
func Extract(frame []byte, inPort VportID) Key {
	k := Key{InPort: inPort}

	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	if ethLayer := packet.Layer(layers.LayerTypeEthernet); ethLayer != nil {
		eth := ethLayer.(*layers.Ethernet)
		copy(k.DstMAC[:], eth.DstMAC)
		copy(k.SrcMAC[:], eth.SrcMAC)
		k.EtherType = uint16(eth.EthernetType)
	}

	if vlanLayer := packet.Layer(layers.LayerTypeDot1Q); vlanLayer != nil {
		vlan := vlanLayer.(*layers.Dot1Q)
		k.HasVlan = true
		k.VlanID = vlan.VLANIdentifier
		k.VlanPCP = vlan.Priority
		// The frame's real EtherType lives past the consumed 802.1Q
		// tag; gopacket's Dot1Q.Type carries it.
		k.EtherType = uint16(vlan.Type)
	}

	if ip4Layer := packet.Layer(layers.LayerTypeIPv4); ip4Layer != nil {
		ip4 := ip4Layer.(*layers.IPv4)
		k.NWSrc = binary.BigEndian.Uint32(ip4.SrcIP.To4())
		k.NWDst = binary.BigEndian.Uint32(ip4.DstIP.To4())
		k.NWProto = uint8(ip4.Protocol)
		k.NWTos = ip4.TOS
		k.NWTTL = ip4.TTL
		k.NWFrag = fragType(ip4)
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		k.TPSrc = uint16(tcp.SrcPort)
		k.TPDst = uint16(tcp.DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		k.TPSrc = uint16(udp.SrcPort)
		k.TPDst = uint16(udp.DstPort)
	}

	return k
}

// fragType classifies an IPv4 header's fragmentation state into the
// {none, first, later} set spec.md §3 requires.
func fragType(ip4 *layers.IPv4) FragType {
	if ip4.FragOffset == 0 && ip4.Flags&layers.IPv4MoreFragments == 0 {
		return FragNone
	}
	if ip4.FragOffset == 0 {
		return FragFirst
	}
	return FragLater
}

// TCPFlags is the union-of-observed-flags bitset flowtable.Stats
// accumulates. Only the six classic flags are tracked, matching
// spec.md §4.2's "masked to the 6-flag set".
type TCPFlags uint8

// Flag bits for TCPFlags, in the order gopacket's layers.TCP exposes
// them.
const (
	TCPFlagFIN TCPFlags = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
)

// TCPFlagsFromFrame returns the TCP flags set on a frame's TCP layer,
// or 0 if the frame has none.
func TCPFlagsFromFrame(frame []byte) TCPFlags {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return 0
	}
	tcp := tcpLayer.(*layers.TCP)

	var f TCPFlags
	if tcp.FIN {
		f |= TCPFlagFIN
	}
	if tcp.SYN {
		f |= TCPFlagSYN
	}
	if tcp.RST {
		f |= TCPFlagRST
	}
	if tcp.PSH {
		f |= TCPFlagPSH
	}
	if tcp.ACK {
		f |= TCPFlagACK
	}
	if tcp.URG {
		f |= TCPFlagURG
	}
	return f
}

// MACString formats a 6-byte MAC array, a small convenience used by
// logging and the control-channel dump path.
func MACString(mac [6]byte) string {
	return net.HardwareAddr(mac[:]).String()
}

// Encode serializes k into out, a BigEndian field-by-field layout. out
// must be at least EncodedSize bytes.
func (k Key) Encode(out []byte) {
	binary.BigEndian.PutUint32(out[0:4], uint32(k.InPort))
	copy(out[4:10], k.DstMAC[:])
	copy(out[10:16], k.SrcMAC[:])
	binary.BigEndian.PutUint16(out[16:18], k.EtherType)
	binary.BigEndian.PutUint16(out[18:20], k.VlanID)
	out[20] = k.VlanPCP
	if k.HasVlan {
		out[21] = 1
	} else {
		out[21] = 0
	}
	binary.BigEndian.PutUint32(out[22:26], k.NWSrc)
	binary.BigEndian.PutUint32(out[26:30], k.NWDst)
	out[30] = k.NWProto
	out[31] = k.NWTos
	out[32] = k.NWTTL
	out[33] = byte(k.NWFrag)
	binary.BigEndian.PutUint16(out[34:36], k.TPSrc)
	binary.BigEndian.PutUint16(out[36:38], k.TPDst)
}

// Decode parses an EncodedSize-byte buffer produced by Encode back into
// a Key.
func Decode(in []byte) Key {
	var k Key
	k.InPort = VportID(binary.BigEndian.Uint32(in[0:4]))
	copy(k.DstMAC[:], in[4:10])
	copy(k.SrcMAC[:], in[10:16])
	k.EtherType = binary.BigEndian.Uint16(in[16:18])
	k.VlanID = binary.BigEndian.Uint16(in[18:20])
	k.VlanPCP = in[20]
	k.HasVlan = in[21] != 0
	k.NWSrc = binary.BigEndian.Uint32(in[22:26])
	k.NWDst = binary.BigEndian.Uint32(in[26:30])
	k.NWProto = in[30]
	k.NWTos = in[31]
	k.NWTTL = in[32]
	k.NWFrag = FragType(in[33])
	k.TPSrc = binary.BigEndian.Uint16(in[34:36])
	k.TPDst = binary.BigEndian.Uint16(in[36:38])
	return k
}
