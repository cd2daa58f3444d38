package dpif

import (
	"encoding/binary"
	"sync"

	"github.com/ovsdp/ovsdp/pkg/vport"
)

// VportShadowMagic and VportShadowVersion identify the vport-shadow
// region's on-disk schema.
const (
	VportShadowMagic   = 0x56534857 // "VSHW"
	VportShadowVersion = 1

	nameFieldSize = 32

	// vportRecordSize is in_use(1) + owning_lcore(4) + type(1) +
	// name(nameFieldSize).
	vportRecordSize = 1 + 4 + 1 + nameFieldSize
)

// VportShadow mirrors the data plane vport registry's id-space
// partitioning: an array of (in_use, owning_lcore, type, name)
// records, indexed by the same partitioned id the data plane uses, so
// a daemon restart can recover which pipeline owns which port without
// re-querying every pipeline (spec.md §4.7).
type VportShadow struct {
	mu     sync.Mutex
	region *Region
}

// CreateVportShadow makes a fresh vport-shadow file at path sized for
// capacity entries.
func CreateVportShadow(path string, capacity int) (*VportShadow, error) {
	r, err := Create(path, VportShadowMagic, VportShadowVersion, vportRecordSize, capacity)
	if err != nil {
		return nil, err
	}
	return &VportShadow{region: r}, nil
}

// OpenVportShadow attaches an existing vport-shadow file.
func OpenVportShadow(path string, capacity int) (*VportShadow, error) {
	r, err := Open(path, VportShadowMagic, VportShadowVersion, vportRecordSize, capacity)
	if err != nil {
		return nil, err
	}
	return &VportShadow{region: r}, nil
}

// Close releases the shadow's backing mapping.
func (s *VportShadow) Close() error { return s.region.Close() }

// Record publishes the owning pipeline and type for a newly-attached
// vport at the given id slot.
func (s *VportShadow) Record(id vport.ID, owningLcore int, t vport.Type, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.region.record(int(id) % s.region.Capacity())
	rec[0] = 1
	binary.BigEndian.PutUint32(rec[1:5], uint32(owningLcore))
	rec[5] = byte(t)
	nameBytes := make([]byte, nameFieldSize)
	copy(nameBytes, name)
	copy(rec[6:6+nameFieldSize], nameBytes)
}

// Forget marks id's slot unused, leaving owning_lcore/type/name in
// place for post-mortem inspection rather than zeroing them. This
// resolves spec.md §9's open question about whether a vport-table
// entry should be scrubbed or preserved on delete: the shadow table
// is a diagnostic mirror the daemon reads, not a capacity-constrained
// allocator, so keeping the last-known owner visible after removal
// costs nothing and helps debugging; Forget only flips in_use.
func (s *VportShadow) Forget(id vport.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.region.record(int(id) % s.region.Capacity())
	rec[0] = 0
}

// Lookup returns the recorded owning pipeline, type, and name for id.
func (s *VportShadow) Lookup(id vport.ID) (owningLcore int, t vport.Type, name string, inUse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.region.record(int(id) % s.region.Capacity())
	inUse = rec[0] != 0
	owningLcore = int(binary.BigEndian.Uint32(rec[1:5]))
	t = vport.Type(rec[5])
	nameBytes := rec[6 : 6+nameFieldSize]
	end := 0
	for end < len(nameBytes) && nameBytes[end] != 0 {
		end++
	}
	name = string(nameBytes[:end])
	return
}
