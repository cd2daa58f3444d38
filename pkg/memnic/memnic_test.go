package memnic

import (
	"path/filepath"
	"testing"
)

func TestCreateGeneratesLocalUnicastMAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memnic0")
	r, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer r.Close()

	mac := r.MAC()
	if mac[0]&0x01 != 0 {
		t.Error("MAC has multicast bit set")
	}
	if mac[0]&0x02 == 0 {
		t.Error("MAC does not have local-admin bit set")
	}
}

func TestReopenPreservesMAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memnic0")
	r, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mac := r.MAC()
	r.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()

	if reopened.MAC() != mac {
		t.Errorf("MAC after reopen = %v, want %v", reopened.MAC(), mac)
	}
}

func TestUplinkDownlinkDoNotOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memnic0")
	r, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer r.Close()

	up := r.Uplink()
	down := r.Downlink()

	if len(up) != uplinkSize {
		t.Errorf("len(Uplink()) = %d, want %d", len(up), uplinkSize)
	}
	if len(down) != downlinkSize {
		t.Errorf("len(Downlink()) = %d, want %d", len(down), downlinkSize)
	}

	up[0] = 0xff
	if down[0] == 0xff {
		t.Error("writing Uplink() leaked into Downlink()")
	}
}
