package action

import (
	"errors"
	"testing"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

type recordIO struct {
	sent    [][]byte
	sendErr error
}

func (r *recordIO) ReceiveBurst(out []*bufpool.Buffer) int { return 0 }
func (r *recordIO) SendOne(b *bufpool.Buffer) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	data := make([]byte, len(b.Data()))
	copy(data, b.Data())
	r.sent = append(r.sent, data)
	b.Release()
	return nil
}
func (r *recordIO) Flush() {}

func ethFrame() []byte {
	return []byte{
		0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, // dst
		0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, // src
		0x08, 0x00, // EtherType IPv4
		0x45, 0x00, 0x00, 0x14, // IP header start
		0x00, 0x00, 0x00, 0x00,
		0x40, 0x06, 0x00, 0x00,
		10, 0, 0, 1,
		10, 0, 0, 2,
		0x1f, 0x90, 0x00, 0x50, // TCP ports 8080 -> 80
	}
}

func TestExecuteDropReleasesBuffer(t *testing.T) {
	pool := bufpool.New(2, 1, 2)
	before := pool.Count()
	buf := pool.AllocFrame(0, ethFrame())

	Execute(buf, []Action{NewDrop()}, vport.NewRegistry(), nil, 34)

	if after := pool.Count(); after != before {
		t.Errorf("pool count = %d, want %d", after, before)
	}
}

func TestExecuteEmptyListActsAsDrop(t *testing.T) {
	pool := bufpool.New(2, 1, 2)
	before := pool.Count()
	buf := pool.AllocFrame(0, ethFrame())

	Execute(buf, nil, vport.NewRegistry(), nil, 34)

	if after := pool.Count(); after != before {
		t.Errorf("pool count = %d, want %d", after, before)
	}
}

func TestExecuteSingleOutputSendsOriginal(t *testing.T) {
	reg := vport.NewRegistry()
	io := &recordIO{}
	port, _ := reg.Add(vport.Client, vport.AnyID, "cl0", io, 0)

	pool := bufpool.New(2, 1, 2)
	buf := pool.AllocFrame(0, ethFrame())

	Execute(buf, []Action{NewOutput(port)}, reg, nil, 34)

	if len(io.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(io.sent))
	}
}

func TestExecuteMultiOutputClonesAndSendsToEach(t *testing.T) {
	reg := vport.NewRegistry()
	io1 := &recordIO{}
	io2 := &recordIO{}
	p1, _ := reg.Add(vport.Client, vport.AnyID, "cl0", io1, 0)
	p2, _ := reg.Add(vport.Client, vport.AnyID, "cl1", io2, 0)

	pool := bufpool.New(2, 1, 2)
	before := pool.Count()
	buf := pool.AllocFrame(0, ethFrame())

	Execute(buf, []Action{NewOutput(p1), NewOutput(p2)}, reg, nil, 34)

	if len(io1.sent) != 1 || len(io2.sent) != 1 {
		t.Fatalf("sent counts = %d,%d, want 1,1", len(io1.sent), len(io2.sent))
	}
	if after := pool.Count(); after != before {
		t.Errorf("pool count after multi-output = %d, want %d (no leak)", after, before)
	}
}

func TestExecuteOutputToSaturatedPortDropsWithoutLeak(t *testing.T) {
	reg := vport.NewRegistry()
	io := &recordIO{sendErr: errors.New("full")}
	port, _ := reg.Add(vport.Client, vport.AnyID, "cl0", io, 0)

	pool := bufpool.New(2, 1, 2)
	before := pool.Count()
	buf := pool.AllocFrame(0, ethFrame())

	Execute(buf, []Action{NewOutput(port)}, reg, nil, 34)

	if after := pool.Count(); after != before {
		t.Errorf("pool count = %d, want %d", after, before)
	}
}

func TestExecuteSetEthernetRewritesAddresses(t *testing.T) {
	reg := vport.NewRegistry()
	io := &recordIO{}
	port, _ := reg.Add(vport.Client, vport.AnyID, "cl0", io, 0)

	pool := bufpool.New(2, 1, 2)
	buf := pool.AllocFrame(0, ethFrame())

	newDst := [6]byte{1, 1, 1, 1, 1, 1}
	newSrc := [6]byte{2, 2, 2, 2, 2, 2}
	Execute(buf, []Action{NewSetEthernet(newDst, newSrc), NewOutput(port)}, reg, nil, 34)

	if len(io.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(io.sent))
	}
	got := io.sent[0]
	for i := 0; i < 6; i++ {
		if got[i] != newDst[i] {
			t.Errorf("dst mac[%d] = %x, want %x", i, got[i], newDst[i])
		}
		if got[6+i] != newSrc[i] {
			t.Errorf("src mac[%d] = %x, want %x", i, got[6+i], newSrc[i])
		}
	}
}

func TestExecutePushThenPopVlanRoundTrips(t *testing.T) {
	reg := vport.NewRegistry()
	io := &recordIO{}
	port, _ := reg.Add(vport.Client, vport.AnyID, "cl0", io, 0)

	pool := bufpool.New(2, 1, 2)
	original := ethFrame()
	buf := pool.AllocFrame(0, original)

	Execute(buf, []Action{NewPushVlan(0x0005), NewPopVlan(), NewOutput(port)}, reg, nil, 34)

	if len(io.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(io.sent))
	}
	if len(io.sent[0]) != len(original) {
		t.Errorf("round-tripped frame length = %d, want %d", len(io.sent[0]), len(original))
	}
}

func TestExecuteVswitchdUpcallsAndStillFreesOriginal(t *testing.T) {
	pool := bufpool.New(2, 1, 2)
	before := pool.Count()
	buf := pool.AllocFrame(0, ethFrame())

	var upcalled bool
	upcall := func(pid uint32, b *bufpool.Buffer) {
		upcalled = true
		if pid != 7 {
			t.Errorf("pid = %d, want 7", pid)
		}
		b.Release()
	}

	Execute(buf, []Action{NewVswitchd(7)}, vport.NewRegistry(), upcall, 34)

	if !upcalled {
		t.Error("upcall was not invoked")
	}
	if after := pool.Count(); after != before {
		t.Errorf("pool count = %d, want %d (implicit drop of original after upcall-only list)", after, before)
	}
}
