package control

import (
	"testing"

	"github.com/ovsdp/ovsdp/pkg/action"
	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/flowkey"
	"github.com/ovsdp/ovsdp/pkg/flowtable"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

type stubIO struct{}

func (stubIO) ReceiveBurst(out []*bufpool.Buffer) int { return 0 }
func (stubIO) SendOne(b *bufpool.Buffer) error         { return nil }
func (stubIO) Flush()                                  {}

func newTestHandler() (*Handler, *Channel) {
	reg := vport.NewRegistry()
	table := flowtable.New()
	h := &Handler{
		Registry: reg,
		Table:    table,
		NewIOPort: func(t vport.Type, name string) (vport.IOPort, error) {
			return stubIO{}, nil
		},
	}
	return h, NewChannel(0, 64)
}

func TestVportNewThenDuplicateSpecificIDIsBusy(t *testing.T) {
	h, ch := newTestHandler()

	req := &DatapathMessage{
		Type:     VportCmdFamily,
		ThreadID: 42,
		Vport:    &VportMsg{Cmd: CmdNew, ID: 1, Name: "eth0", Type: vport.Phy},
	}
	ch.Request.Push(req)
	h.DispatchBatch(ch)

	reply, ok := ch.Reply.Pop()
	if !ok {
		t.Fatal("no reply for first NEW")
	}
	if reply.ReplyError != OK {
		t.Fatalf("first NEW error = %v, want OK", reply.ReplyError)
	}
	if reply.ThreadID != 42 {
		t.Errorf("ThreadID = %d, want 42", reply.ThreadID)
	}

	req2 := &DatapathMessage{
		Type:  VportCmdFamily,
		Vport: &VportMsg{Cmd: CmdNew, ID: 1, Name: "eth0dup", Type: vport.Phy},
	}
	ch.Request.Push(req2)
	h.DispatchBatch(ch)

	reply2, _ := ch.Reply.Pop()
	if reply2.ReplyError != EBUSY {
		t.Errorf("duplicate NEW error = %v, want EBUSY", reply2.ReplyError)
	}
}

func TestVportDelUnknownIsNoDev(t *testing.T) {
	h, ch := newTestHandler()

	ch.Request.Push(&DatapathMessage{
		Type:  VportCmdFamily,
		Vport: &VportMsg{Cmd: CmdDel, ID: 99},
	})
	h.DispatchBatch(ch)

	reply, _ := ch.Reply.Pop()
	if reply.ReplyError != ENODEV {
		t.Errorf("DEL unknown error = %v, want ENODEV", reply.ReplyError)
	}
}

func TestFlowNewCreateThenCreateAgainIsExist(t *testing.T) {
	h, ch := newTestHandler()
	key := flowkey.Key{InPort: 1, EtherType: 0x0800}

	req := &DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdNew, Flags: FlagCreate, Key: key, Actions: []action.Action{action.NewDrop()}},
	}
	ch.Request.Push(req)
	h.DispatchBatch(ch)
	reply, _ := ch.Reply.Pop()
	if reply.ReplyError != OK {
		t.Fatalf("first flow NEW error = %v, want OK", reply.ReplyError)
	}

	ch.Request.Push(req)
	h.DispatchBatch(ch)
	reply2, _ := ch.Reply.Pop()
	if reply2.ReplyError != EEXIST {
		t.Errorf("second flow NEW/CREATE error = %v, want EEXIST", reply2.ReplyError)
	}
}

func TestFlowReplaceUnknownIsNoEnt(t *testing.T) {
	h, ch := newTestHandler()
	key := flowkey.Key{InPort: 1}

	ch.Request.Push(&DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdNew, Flags: FlagReplace, Key: key, Actions: []action.Action{action.NewDrop()}},
	})
	h.DispatchBatch(ch)
	reply, _ := ch.Reply.Pop()
	if reply.ReplyError != ENOENT {
		t.Errorf("REPLACE on missing flow error = %v, want ENOENT", reply.ReplyError)
	}
}

func TestFlowNewCreateReplaceUpsertsOverExisting(t *testing.T) {
	h, ch := newTestHandler()
	key := flowkey.Key{InPort: 1}
	upsert := FlagCreate | FlagReplace

	ch.Request.Push(&DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdNew, Flags: upsert, Key: key, Actions: []action.Action{action.NewDrop()}},
	})
	h.DispatchBatch(ch)
	if reply, _ := ch.Reply.Pop(); reply.ReplyError != OK {
		t.Fatalf("first upsert error = %v, want OK", reply.ReplyError)
	}

	ch.Request.Push(&DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdNew, Flags: upsert, Key: key, Actions: []action.Action{action.NewOutput(5)}},
	})
	h.DispatchBatch(ch)
	reply2, _ := ch.Reply.Pop()
	if reply2.ReplyError != OK {
		t.Fatalf("second upsert error = %v, want OK", reply2.ReplyError)
	}

	acts, _, ok := h.Table.Get(key)
	if !ok || len(acts) != 1 || acts[0].Kind != action.Output {
		t.Errorf("flow actions after upsert = %+v, want a single OUTPUT action", acts)
	}
}

func TestFlowDelFlushOnEmptyKey(t *testing.T) {
	h, ch := newTestHandler()
	h.Table.Add(flowkey.Key{InPort: 1}, []action.Action{action.NewDrop()})
	h.Table.Add(flowkey.Key{InPort: 2}, []action.Action{action.NewDrop()})

	ch.Request.Push(&DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdDel, Key: flowkey.Key{}},
	})
	h.DispatchBatch(ch)

	reply, _ := ch.Reply.Pop()
	if reply.ReplyError != OK {
		t.Fatalf("flush error = %v, want OK", reply.ReplyError)
	}
	if h.Table.Len() != 0 {
		t.Errorf("Len() after flush = %d, want 0", h.Table.Len())
	}
}

func TestFlowGetDumpReturnsEOFAtEnd(t *testing.T) {
	h, ch := newTestHandler()
	key := flowkey.Key{InPort: 1}
	h.Table.Add(key, []action.Action{action.NewDrop()})

	ch.Request.Push(&DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdGet, Flags: FlagDump, Key: flowkey.Key{}},
	})
	h.DispatchBatch(ch)
	reply, _ := ch.Reply.Pop()
	if reply.ReplyError != OK || reply.Flow.Key != key {
		t.Fatalf("first dump = %+v, want key %v", reply, key)
	}

	ch.Request.Push(&DatapathMessage{
		Type: FlowCmdFamily,
		Flow: &FlowMsg{Cmd: CmdGet, Flags: FlagDump, Key: key},
	})
	h.DispatchBatch(ch)
	reply2, _ := ch.Reply.Pop()
	if reply2.ReplyError != EOF {
		t.Errorf("dump past end error = %v, want EOF", reply2.ReplyError)
	}
}

func TestUnknownMessageTypeIsEinval(t *testing.T) {
	h, ch := newTestHandler()
	ch.Request.Push(&DatapathMessage{Type: MsgType(99)})
	h.DispatchBatch(ch)

	reply, _ := ch.Reply.Pop()
	if reply.ReplyError != EINVAL {
		t.Errorf("unknown type error = %v, want EINVAL", reply.ReplyError)
	}
}

func TestPacketCmdFamilyProducesNoReply(t *testing.T) {
	h, ch := newTestHandler()
	pool := bufpool.New(2, 1, 2)
	buf := pool.AllocFrame(0, make([]byte, 64))

	ch.Request.Push(&DatapathMessage{
		Type:   PacketCmdFamily,
		Packet: &PacketMsg{Actions: []action.Action{action.NewDrop()}, Buf: buf},
	})
	h.DispatchBatch(ch)

	if _, ok := ch.Reply.Pop(); ok {
		t.Error("PACKET_CMD_FAMILY produced a reply, want none")
	}
}

func TestReplenishPacketAllocStopsAtQuarterCapacity(t *testing.T) {
	ch := NewChannel(0, 16)
	pool := bufpool.New(100, 1, 100)
	occupied := 0

	ReplenishPacketAlloc(ch, pool, 0, &occupied)

	want := ch.PacketAlloc.Cap() / 4
	if occupied != want {
		t.Errorf("occupied = %d, want %d", occupied, want)
	}
}
