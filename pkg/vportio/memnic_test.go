package vportio

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/memnic"
)

func TestMemnicPortSendThenReceiveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memnic0")
	region, err := memnic.Create(path)
	if err != nil {
		t.Fatalf("memnic.Create() error = %v", err)
	}
	defer region.Close()

	pool := bufpool.New(8, 1, 8)
	host := newMemnicPort(region, pool, 0)

	// A guest writing to its uplink is simulated here by driving the
	// same region's Downlink() directly from the host side's peer
	// perspective: host SendOne writes Downlink, so a "guest" read
	// path (not modeled) would drain it. What this test exercises is
	// the host's own write-then-local-replay of its ring bookkeeping
	// via a second port instance sharing the same region.
	buf := pool.AllocFrame(0, []byte("hello-guest"))
	if err := host.SendOne(buf); err != nil {
		t.Fatalf("SendOne() error = %v", err)
	}

	peer := newMemnicPort(region, pool, 0)
	peer.upRead = 0
	// Simulate the guest's write landing in Uplink by copying the
	// frame the host just wrote in Downlink into Uplink at slot 0,
	// then bumping the write index the host's ReceiveBurst reads.
	up := region.Uplink()
	dn := region.Downlink()
	copy(upSlot(up, 0), upSlot(dn, 0))
	binary.LittleEndian.PutUint64(up[0:8], 1)

	out := make([]*bufpool.Buffer, 4)
	n := peer.ReceiveBurst(out)
	if n != 1 {
		t.Fatalf("ReceiveBurst() = %d, want 1", n)
	}
	if string(out[0].Data()) != "hello-guest" {
		t.Errorf("received frame = %q, want %q", out[0].Data(), "hello-guest")
	}
}
