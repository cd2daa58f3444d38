// Package memnic implements the memnic vport's shared-memory region:
// a 16 MiB file under /dev/shm laid out as header/uplink/reserved/
// downlink, shared with a guest process that maps the same file, per
// spec.md §4.7/§8. It reuses dpif's typed-region abstraction (magic,
// version, validated on open) rather than inventing a second
// mmap wrapper.
package memnic

import (
	"crypto/rand"
	"fmt"

	"github.com/ovsdp/ovsdp/pkg/dpif"
)

// Magic identifies a memnic region, per spec.md §4.7.
const Magic = 0x43494e76

// Version is the current memnic region layout version.
const Version = 1

// Layout within one memnic record, per spec.md §4.7: a 1 MiB header
// (carrying the MAC), 7 MiB uplink (guest→host), 1 MiB reserved, and 7
// MiB downlink (host→guest). dpif.Region itself spends 16 bytes on its
// own magic/version/count header ahead of the record, so the
// reserved section is shrunk by that amount to keep the on-disk file
// at exactly 16 MiB.
const (
	hdrSize      = 1 << 20
	uplinkSize   = 7 << 20
	reservedSize = 1<<20 - 16
	downlinkSize = 7 << 20

	uplinkOffset   = hdrSize
	reservedOffset = uplinkOffset + uplinkSize
	downlinkOffset = reservedOffset + reservedSize
)

const recordSize = hdrSize + uplinkSize + reservedSize + downlinkSize

// Region is one memnic shared-memory vport backing.
type Region struct {
	dr  *dpif.Region
	mac [6]byte
}

// Create makes a fresh memnic region at path (conventionally
// /dev/shm/<port_name>) with a freshly generated MAC address.
func Create(path string) (*Region, error) {
	dr, err := dpif.Create(path, Magic, Version, recordSize, 1)
	if err != nil {
		return nil, fmt.Errorf("memnic: %w", err)
	}
	mac, err := generateMAC()
	if err != nil {
		dr.Close()
		return nil, err
	}
	r := &Region{dr: dr, mac: mac}
	r.writeMAC(mac)
	return r, nil
}

// Open attaches an existing memnic region, validating its magic and
// version.
func Open(path string) (*Region, error) {
	dr, err := dpif.Open(path, Magic, Version, recordSize, 1)
	if err != nil {
		return nil, fmt.Errorf("memnic: %w", err)
	}
	r := &Region{dr: dr}
	r.mac = r.readMAC()
	return r, nil
}

// Close unmaps the region.
func (r *Region) Close() error { return r.dr.Close() }

// MAC returns the region's locally-administered, unicast MAC address.
func (r *Region) MAC() [6]byte { return r.mac }

// macOffset is just past the magic/version/count header dpif.Region
// itself maintains, at the front of header space.
const macOffset = 0

func (r *Region) body() []byte {
	return r.dr.RecordBytes(0)
}

func (r *Region) writeMAC(mac [6]byte) {
	copy(r.body()[macOffset:macOffset+6], mac[:])
}

func (r *Region) readMAC() [6]byte {
	var mac [6]byte
	copy(mac[:], r.body()[macOffset:macOffset+6])
	return mac
}

// Uplink returns the guest-to-host ring's byte slice within the
// region.
func (r *Region) Uplink() []byte {
	b := r.body()
	return b[uplinkOffset : uplinkOffset+uplinkSize]
}

// Downlink returns the host-to-guest ring's byte slice within the
// region.
func (r *Region) Downlink() []byte {
	b := r.body()
	return b[downlinkOffset : downlinkOffset+downlinkSize]
}

// generateMAC produces a random locally-administered, unicast MAC:
// local-bit set, multicast-bit clear in the first octet, per spec.md
// §4.7.
func generateMAC() ([6]byte, error) {
	var mac [6]byte
	if _, err := rand.Read(mac[:]); err != nil {
		return mac, fmt.Errorf("memnic: generate mac: %w", err)
	}
	mac[0] &^= 0x01 // clear multicast bit
	mac[0] |= 0x02  // set local-admin bit
	return mac, nil
}
