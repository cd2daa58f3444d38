package dpif

import (
	"encoding/binary"
	"sync"

	"github.com/ovsdp/ovsdp/pkg/flowkey"
)

// FlowShadowMagic and FlowShadowVersion identify the flow-shadow
// region's on-disk schema.
const (
	FlowShadowMagic   = 0x46534857 // "FSHW"
	FlowShadowVersion = 1

	// flowRecordSize is valid(1) + handle(8) + key(flowkey.EncodedSize).
	flowRecordSize = 1 + 8 + flowkey.EncodedSize
)

// FlowShadow is the daemon-side persistent mirror of the data plane's
// flow table: a fixed-capacity array of (flow_key, flow_handle,
// valid) tuples, linear-scanned on every operation per spec.md §4.7.
type FlowShadow struct {
	mu     sync.Mutex
	region *Region
}

// CreateFlowShadow makes a fresh flow-shadow file at path sized for
// capacity entries (matching the data plane flow table's capacity).
func CreateFlowShadow(path string, capacity int) (*FlowShadow, error) {
	r, err := Create(path, FlowShadowMagic, FlowShadowVersion, flowRecordSize, capacity)
	if err != nil {
		return nil, err
	}
	return &FlowShadow{region: r}, nil
}

// OpenFlowShadow attaches an existing flow-shadow file.
func OpenFlowShadow(path string, capacity int) (*FlowShadow, error) {
	r, err := Open(path, FlowShadowMagic, FlowShadowVersion, flowRecordSize, capacity)
	if err != nil {
		return nil, err
	}
	return &FlowShadow{region: r}, nil
}

// Close releases the shadow's backing mapping.
func (s *FlowShadow) Close() error { return s.region.Close() }

func (s *FlowShadow) recordKey(i int) flowkey.Key {
	rec := s.region.record(i)
	return flowkey.Decode(rec[9 : 9+flowkey.EncodedSize])
}

func (s *FlowShadow) recordValid(i int) bool {
	return s.region.record(i)[0] != 0
}

func (s *FlowShadow) recordHandle(i int) uint64 {
	return binary.BigEndian.Uint64(s.region.record(i)[1:9])
}

func (s *FlowShadow) writeRecord(i int, valid bool, handle uint64, key flowkey.Key) {
	rec := s.region.record(i)
	if valid {
		rec[0] = 1
	} else {
		rec[0] = 0
	}
	binary.BigEndian.PutUint64(rec[1:9], handle)
	key.Encode(rec[9 : 9+flowkey.EncodedSize])
}

// Add inserts (key, handle) at the first free slot. Returns false if
// the shadow is full or key is already present.
func (s *FlowShadow) Add(key flowkey.Key, handle uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := -1
	for i := 0; i < s.region.Capacity(); i++ {
		if !s.recordValid(i) {
			if free < 0 {
				free = i
			}
			continue
		}
		if s.recordKey(i) == key {
			return false
		}
	}
	if free < 0 {
		return false
	}
	s.writeRecord(free, true, handle, key)
	return true
}

// Find returns the handle recorded for key.
func (s *FlowShadow) Find(key flowkey.Key) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.region.Capacity(); i++ {
		if s.recordValid(i) && s.recordKey(i) == key {
			return s.recordHandle(i), true
		}
	}
	return 0, false
}

// Delete invalidates the slot holding key.
func (s *FlowShadow) Delete(key flowkey.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.region.Capacity(); i++ {
		if s.recordValid(i) && s.recordKey(i) == key {
			s.writeRecord(i, false, 0, flowkey.Key{})
			return true
		}
	}
	return false
}

// Next returns the key of the first valid record at or after index i,
// and the index to resume from on a subsequent call. ok is false once
// the scan reaches the end of the capacity.
func (s *FlowShadow) Next(i int) (flowkey.Key, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ; i < s.region.Capacity(); i++ {
		if s.recordValid(i) {
			return s.recordKey(i), i + 1, true
		}
	}
	return flowkey.Key{}, i, false
}
