package control

import (
	"github.com/ovsdp/ovsdp/pkg/flowkey"
	"github.com/ovsdp/ovsdp/pkg/flowtable"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

// RequestBatchSize is the maximum number of request-ring messages
// dequeued per dispatch round (spec.md §4.5 step 1: "dequeue batch
// (up to 32)").
const RequestBatchSize = 32

// ioFactory builds the concrete IOPort for a newly-attached vport.
// The control handler doesn't know how to construct transports for
// every vport type; the caller supplies one, keeping this package
// free of a dependency on any specific port implementation.
type ioFactory func(t vport.Type, name string) (vport.IOPort, error)

// Handler dispatches request-ring messages for one pipeline against a
// shared vport registry and that pipeline's own flow table, replying
// on the same channel's reply ring.
type Handler struct {
	Registry  *vport.Registry
	Table     *flowtable.Table
	NewIOPort ioFactory
}

// DispatchBatch drains up to RequestBatchSize messages from ch.Request,
// handles each, and pushes a reply for every control-family message
// (PACKET_CMD_FAMILY messages produce no reply, per spec.md §4.5 step
// 3: "for control-family messages only").
func (h *Handler) DispatchBatch(ch *Channel) int {
	n := 0
	for n < RequestBatchSize {
		req, ok := ch.Request.Pop()
		if !ok {
			break
		}
		n++
		h.dispatchOne(ch, req)
	}
	return n
}

func (h *Handler) dispatchOne(ch *Channel, req *DatapathMessage) {
	switch req.Type {
	case VportCmdFamily:
		ch.Reply.Push(h.handleVport(req))
	case FlowCmdFamily:
		ch.Reply.Push(h.handleFlow(req))
	case PacketCmdFamily:
		h.handlePacket(req)
	default:
		ch.Reply.Push(NewReply(req, EINVAL))
	}
}

func (h *Handler) handleVport(req *DatapathMessage) *DatapathMessage {
	m := req.Vport
	if m == nil {
		return NewReply(req, EINVAL)
	}

	switch m.Cmd {
	case CmdNew:
		io, err := h.NewIOPort(m.Type, m.Name)
		if err != nil {
			return NewReply(req, ENODEV)
		}
		id, addErr := h.Registry.Add(m.Type, m.ID, m.Name, io, 0)
		if addErr != nil {
			switch addErr {
			case vport.ErrBusy:
				return NewReply(req, EBUSY)
			default:
				return NewReply(req, ENODEV)
			}
		}
		reply := NewReply(req, OK)
		reply.Vport = &VportMsg{Cmd: CmdNew, ID: id, Name: m.Name, Type: m.Type}
		return reply

	case CmdDel:
		v, ok := h.Registry.Get(m.ID)
		if !ok || !v.Enabled {
			return NewReply(req, ENODEV)
		}
		if err := h.Registry.Delete(m.ID); err != nil {
			return NewReply(req, ENODEV)
		}
		return NewReply(req, OK)

	case CmdGet:
		if m.Flags&FlagDump != 0 {
			v, ok := h.Registry.NextEnabled(m.ID)
			if !ok {
				return NewReply(req, EOF)
			}
			reply := NewReply(req, OK)
			reply.Vport = &VportMsg{Cmd: CmdGet, ID: v.ID, Name: v.Name, Type: v.Type, Stats: v.Stats()}
			return reply
		}
		var v *vport.Vport
		var ok bool
		if m.Name != "" {
			v, ok = h.Registry.GetByName(m.Name)
		} else {
			v, ok = h.Registry.Get(m.ID)
		}
		if !ok {
			return NewReply(req, ENODEV)
		}
		reply := NewReply(req, OK)
		reply.Vport = &VportMsg{Cmd: CmdGet, ID: v.ID, Name: v.Name, Type: v.Type, Stats: v.Stats()}
		return reply
	}
	return NewReply(req, EINVAL)
}

func (h *Handler) handleFlow(req *DatapathMessage) *DatapathMessage {
	m := req.Flow
	if m == nil {
		return NewReply(req, EINVAL)
	}

	switch m.Cmd {
	case CmdNew:
		// Dispatch on whether the key is already present, not on which
		// flag the caller set, matching flow_cmd_new's pos<0/pos>=0
		// split: a missing key is a CREATE-or-ENOENT decision, a
		// present key is a REPLACE-or-EEXIST decision. This also makes
		// the common CREATE|REPLACE upsert request work: whichever
		// state the table is in, the one flag that applies is checked.
		_, exists := h.Table.Lookup(m.Key)
		switch {
		case !exists:
			if m.Flags&FlagCreate == 0 {
				return NewReply(req, ENOENT)
			}
			if _, err := h.Table.Add(m.Key, m.Actions); err != nil {
				return NewReply(req, ENOENT)
			}
			return NewReply(req, OK)
		default:
			if m.Flags&FlagReplace == 0 {
				return NewReply(req, EEXIST)
			}
			if err := h.Table.Modify(m.Key, m.Actions); err != nil {
				return NewReply(req, EEXIST)
			}
			if m.Flags&FlagClearStats != 0 {
				h.Table.ClearStats(m.Key)
			}
			return NewReply(req, OK)
		}

	case CmdDel:
		if isZeroKey(m.Key) {
			h.Table.Flush()
			return NewReply(req, OK)
		}
		_, stats, ok := h.Table.Get(m.Key)
		if !ok {
			return NewReply(req, ENOENT)
		}
		h.Table.Delete(m.Key)
		reply := NewReply(req, OK)
		reply.Flow = &FlowMsg{Cmd: CmdDel, Key: m.Key, Stats: stats}
		return reply

	case CmdGet:
		if m.Flags&FlagDump != 0 {
			var next flowkey.Key
			var ok bool
			if isZeroKey(m.Key) {
				next, ok = h.Table.First()
			} else {
				next, ok = h.Table.Next(m.Key)
			}
			if !ok {
				return NewReply(req, EOF)
			}
			acts, stats, _ := h.Table.Get(next)
			reply := NewReply(req, OK)
			reply.Flow = &FlowMsg{Cmd: CmdGet, Key: next, Actions: acts, Stats: stats}
			return reply
		}
		acts, stats, ok := h.Table.Get(m.Key)
		if !ok {
			return NewReply(req, ENOENT)
		}
		reply := NewReply(req, OK)
		reply.Flow = &FlowMsg{Cmd: CmdGet, Key: m.Key, Actions: acts, Stats: stats}
		return reply
	}
	return NewReply(req, EINVAL)
}

func (h *Handler) handlePacket(req *DatapathMessage) {
	m := req.Packet
	if m == nil || m.Buf == nil {
		return
	}
	// PACKET_CMD_FAMILY requests carry their own buffer rather than a
	// flow-table key, so execution happens directly against the vport
	// registry outside the forwarding pipeline's flow lookup.
	executePacket(m, h.Registry)
}

func isZeroKey(k flowkey.Key) bool {
	return k == flowkey.Key{}
}
