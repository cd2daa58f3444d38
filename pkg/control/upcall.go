package control

import (
	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/flowkey"
)

// UpcallReason is the cmd byte of the {reason, flow_key} record spec.md
// §3 and its "Exception upcall" section prepend to a packet handed to
// the daemon.
type UpcallReason uint8

// Upcall reasons. MISS fires on a flow-table lookup failure; ACTION
// fires when a matched flow's action list contains an explicit
// VSWITCHD(pid) action.
const (
	UpcallMiss UpcallReason = iota
	UpcallAction
)

// upcallHeaderSize is the encoded {cmd, flow_key} record's fixed width.
const upcallHeaderSize = 1 + flowkey.EncodedSize

// PushException prepends a {reason, key} upcall header onto buf via
// its reserved headroom and enqueues it on ch.Exception, per spec.md's
// "prepend an upcall info record and enqueue the packet on the
// exception ring". If the header doesn't fit in headroom or the ring
// is full, buf is released and PushException returns false, matching
// spec.md's "if the header does not fit in headroom, the packet is
// dropped".
func PushException(ch *Channel, reason UpcallReason, key flowkey.Key, buf *bufpool.Buffer) bool {
	var hdr [upcallHeaderSize]byte
	hdr[0] = byte(reason)
	key.Encode(hdr[1:])

	if !buf.PrependHeadroom(hdr[:]) {
		buf.Release()
		return false
	}
	if !ch.Exception.Push(buf) {
		buf.Release()
		return false
	}
	return true
}

// DecodeUpcall splits a buffer popped off an exception ring back into
// its upcall reason, flow key, and the original packet payload, per
// spec.md's "the daemon is responsible for stripping before forwarding
// to its OpenFlow pipeline".
func DecodeUpcall(buf *bufpool.Buffer) (UpcallReason, flowkey.Key, []byte) {
	data := buf.Data()
	reason := UpcallReason(data[0])
	key := flowkey.Decode(data[1:upcallHeaderSize])
	return reason, key, data[upcallHeaderSize:]
}
