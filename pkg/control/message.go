// Package control implements the datapath's asynchronous control
// channel: the tagged-union message format, the eight per-pipeline
// rings, and the request-ring dispatcher an out-of-process daemon
// drives to configure vports and flows and to inject packets, per
// spec.md §4.5. Grounded on the ovsnl generic-netlink client's
// command/attribute vocabulary (NEW/DEL/GET, vport_msg/flow_msg
// shapes), reworked from a netlink RPC to an in-process ring protocol
// since there is no kernel datapath on the other end of the wire here.
package control

import (
	"github.com/ovsdp/ovsdp/pkg/action"
	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/flowkey"
	"github.com/ovsdp/ovsdp/pkg/flowtable"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

// MsgType tags which arm of the union a DatapathMessage carries.
type MsgType uint8

const (
	VportCmdFamily MsgType = iota
	FlowCmdFamily
	PacketCmdFamily
)

// Cmd is the sub-command carried by vport_msg and flow_msg.
type Cmd uint8

const (
	CmdNew Cmd = iota
	CmdDel
	CmdGet
)

// Flag bits carried in a request's Flags field.
const (
	FlagDump    uint32 = 1 << iota // GET: enumerate rather than point-lookup
	FlagCreate                     // FLOW NEW: create if not present
	FlagReplace                    // FLOW NEW: replace if already present
	FlagClearStats
)

// Error is the small stable integer vocabulary spec.md §4.5/§7 maps
// control-channel outcomes to. Zero is success.
type Error int32

const (
	OK Error = 0
	EINVAL Error = iota
	EEXIST
	ENOENT
	EBUSY
	ENODEV
	ENOSPC
	EOF // dump iteration past the end of the range
)

// VportMsg is the vport_msg arm of a DatapathMessage.
type VportMsg struct {
	Cmd   Cmd
	ID    vport.ID
	Name  string
	Type  vport.Type
	Flags uint32
	Stats vport.Stats
}

// FlowMsg is the flow_msg arm of a DatapathMessage.
type FlowMsg struct {
	Cmd        Cmd
	Flags      uint32
	Key        flowkey.Key
	ClearStats bool
	Actions    []action.Action
	Stats      flowtable.Stats
	Handle     flowtable.Handle
}

// PacketMsg is the packet_msg arm: an action list to run on an
// attached buffer supplied by the daemon. In this design the buffer
// travels embedded in the message itself rather than as a separate
// shared-memory handle resolved via the packet/packet-alloc/
// packet-free rings — see DESIGN.md for why the handle-indirection
// those rings exist for in a cross-process ABI has no counterpart
// once the daemon and the pipelines share a single Go heap.
type PacketMsg struct {
	Actions []action.Action
	Buf     *bufpool.Buffer
}

// DatapathMessage is the tagged union spec.md §3 and §4.5 describe:
// exactly one of Vport/Flow/Packet is populated, selected by Type.
// ThreadID disambiguates which daemon thread a reply belongs to;
// ReplyError is meaningful only on replies.
type DatapathMessage struct {
	Type       MsgType
	ThreadID   uint64
	ReplyError Error

	Vport  *VportMsg
	Flow   *FlowMsg
	Packet *PacketMsg
}

// NewReply builds a reply DatapathMessage carrying req's ThreadID, as
// spec.md §4.5 requires ("replies are addressed back to the submitting
// daemon thread by copying the request's thread_id").
func NewReply(req *DatapathMessage, errCode Error) *DatapathMessage {
	return &DatapathMessage{
		Type:       req.Type,
		ThreadID:   req.ThreadID,
		ReplyError: errCode,
		Vport:      req.Vport,
		Flow:       req.Flow,
	}
}
