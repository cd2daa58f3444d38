// Package vport implements the vport registry: a type-tagged table of
// ports with a per-port I/O vtable and statistics, per spec.md §3 and
// §4.1. The port polymorphism is modeled as an interface (IOPort)
// dispatched through a single concrete Vport wrapper, which is the
// "trait/interface with a concrete vtable" re-architecture spec.md §9
// calls for in place of a `switch(type)` on an untagged field.
package vport

import (
	"fmt"
	"sync"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/flowkey"
)

// ID is the vport identifier type, shared with flowkey.VportID so flow
// keys and vports agree on ingress-port representation.
type ID = flowkey.VportID

// AnyID is the sentinel passed to Add when the caller wants the
// registry to pick the next free id of the requested Type, rather than
// claiming a specific one.
const AnyID ID = 0xFFFFFFFF

// Type is the vport type tag. The type set matches spec.md §3 exactly
// — it is NOT the Linux kernel OVS datapath's vport type set
// (netdev/internal/gre/vxlan/geneve), which belongs to a different,
// kernel-resident system this design explicitly bypasses (see
// DESIGN.md).
type Type uint8

// Vport types and their id-space partition. Each type owns a disjoint
// 4096-entry range, satisfying spec.md §3's "vport-id layout
// partitions the id space by type" invariant. The exact range width is
// an implementation choice (spec.md leaves it unspecified); 4096 was
// chosen as comfortably larger than any single pipeline's realistic
// port count while keeping the full id space inside a uint32.
const (
	Disabled Type = iota
	Phy
	Client
	KNI
	Veth
	Vhost
	Memnic
	Bridge
	Vswitchd

	numTypes
)

const rangeWidth = 0x1000

func base(t Type) ID { return ID(uint32(t-1) * rangeWidth) }

// String names a Type for logging and control-channel dumps.
func (t Type) String() string {
	switch t {
	case Disabled:
		return "disabled"
	case Phy:
		return "phy"
	case Client:
		return "client"
	case KNI:
		return "kni"
	case Veth:
		return "veth"
	case Vhost:
		return "vhost"
	case Memnic:
		return "memnic"
	case Bridge:
		return "bridge"
	case Vswitchd:
		return "vswitchd"
	default:
		return "unknown"
	}
}

// Stats is the monotonic per-vport counter set spec.md §3 requires.
// Values only ever increase; Registry never resets them (clearing
// statistics is not a Non-goal exception the control channel exposes).
type Stats struct {
	RxPackets, TxPackets           uint64
	RxBytes, TxBytes               uint64
	RxDropped, TxDropped           uint64
}

// IOPort is the per-port I/O capability set: receive_burst, send_one
// and flush. get_stats is not part of it; statistics are kept and
// reported by the Vport wrapper (Vport.Stats). Every concrete port descriptor
// (phy/client/kni/veth/vhost/memnic/bridge/vswitchd) implements it.
type IOPort interface {
	// ReceiveBurst drains up to len(out) ready packets into out,
	// returning the number filled. Never blocks.
	ReceiveBurst(out []*bufpool.Buffer) int
	// SendOne transmits (or enqueues for egress-cache batching) one
	// buffer, taking ownership of it. Returns an error (NOSPC) if the
	// underlying transport is saturated; the caller must then free
	// the buffer and count a drop.
	SendOne(b *bufpool.Buffer) error
	// Flush forces any buffered egress packets out now, regardless of
	// the egress-cache deadline.
	Flush()
}

// Vport is one entry of the registry: an id, type, name, owning
// pipeline, administrative state, statistics, and its I/O descriptor.
type Vport struct {
	ID             ID
	Type           Type
	Name           string
	OwningPipeline int
	Enabled        bool

	io    IOPort
	stats Stats
	mu    sync.Mutex
}

// addRx folds in one receive observation; safe for concurrent callers.
func (v *Vport) addRx(packets, bytes, dropped uint64) {
	v.mu.Lock()
	v.stats.RxPackets += packets
	v.stats.RxBytes += bytes
	v.stats.RxDropped += dropped
	v.mu.Unlock()
}

func (v *Vport) addTx(packets, bytes, dropped uint64) {
	v.mu.Lock()
	v.stats.TxPackets += packets
	v.stats.TxBytes += bytes
	v.stats.TxDropped += dropped
	v.mu.Unlock()
}

// Stats returns a consistent snapshot of the vport's counters.
func (v *Vport) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Send transmits b via the vport's I/O descriptor, accounting
// statistics and freeing b on a saturation error, matching the
// ring-saturation testable property in spec.md §8.
func (v *Vport) Send(b *bufpool.Buffer) error {
	n := len(b.Data())
	if err := v.io.SendOne(b); err != nil {
		v.addTx(0, 0, 1)
		b.Release()
		return err
	}
	v.addTx(1, uint64(n), 0)
	return nil
}

// ReceiveBurst drains ready packets from the vport's I/O descriptor
// and accounts rx statistics.
func (v *Vport) ReceiveBurst(out []*bufpool.Buffer) int {
	n := v.io.ReceiveBurst(out)
	var bytes uint64
	for i := 0; i < n; i++ {
		bytes += uint64(len(out[i].Data()))
	}
	if n > 0 {
		v.addRx(uint64(n), bytes, 0)
	}
	return n
}

// Flush forces the vport's egress cache (if any) out now.
func (v *Vport) Flush() { v.io.Flush() }

// Registry is the process-wide, type-tagged vport table. Mutation
// (Add/Delete) is guarded by a single mutex per spec.md §5 ("guarded
// by a single process-wide mutex for add/remove/reset"); reads of a
// published vport's stable fields (Type, Name, OwningPipeline) are
// unsynchronized, matching "fields are stable after publication".
type Registry struct {
	mu     sync.Mutex
	byID   map[ID]*Vport
	byName map[string]*Vport
	next   [numTypes]uint32
}

// NewRegistry creates an empty vport registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[ID]*Vport),
		byName: make(map[string]*Vport),
	}
}

// Error codes returned by Registry operations, matching spec.md §7.
var (
	ErrBusy    = fmt.Errorf("vport: id in use")
	ErrNoDev   = fmt.Errorf("vport: no such vport or pipeline")
	ErrInval   = fmt.Errorf("vport: invalid vport type")
	ErrNoSpace = fmt.Errorf("vport: type id range exhausted")
)

// Add inserts a new, enabled vport. If id is AnyID, the next free id
// within t's range is allocated; otherwise the caller's id is claimed
// exactly, returning ErrBusy if it is already in use — this matches
// spec.md §8's "port add with specific phy id succeeds once; second
// attempt on the same id returns BUSY".
func (r *Registry) Add(t Type, id ID, name string, io IOPort, owningPipeline int) (ID, error) {
	if t == Disabled || t >= numTypes {
		return 0, ErrInval
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id == AnyID {
		var err error
		id, err = r.allocLocked(t)
		if err != nil {
			return 0, err
		}
	} else {
		if !inRange(t, id) {
			return 0, ErrInval
		}
		if _, exists := r.byID[id]; exists {
			return 0, ErrBusy
		}
	}

	v := &Vport{
		ID:             id,
		Type:           t,
		Name:           name,
		OwningPipeline: owningPipeline,
		Enabled:        true,
		io:             io,
	}
	r.byID[id] = v
	r.byName[name] = v
	return id, nil
}

func inRange(t Type, id ID) bool {
	lo := base(t)
	return id >= lo && id < lo+rangeWidth
}

// allocLocked returns the next unused id in t's range. Caller holds
// r.mu.
func (r *Registry) allocLocked(t Type) (ID, error) {
	lo := base(t)
	for i := uint32(0); i < rangeWidth; i++ {
		candidate := lo + ID(r.next[t])
		r.next[t] = (r.next[t] + 1) % rangeWidth
		if _, exists := r.byID[candidate]; !exists {
			return candidate, nil
		}
	}
	return 0, ErrNoSpace
}

// Delete disables and removes a vport. Per spec.md §9's open question
// about whether delete should be idempotent or preserve the entry for
// post-mortem inspection, this implementation resolves toward
// idempotence: deleting an already-absent id returns ErrNoDev, and the
// entry is fully removed (not retained), since nothing else in this
// design reads a deleted vport's history.
func (r *Registry) Delete(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[id]
	if !ok {
		return ErrNoDev
	}
	v.Enabled = false
	delete(r.byID, id)
	delete(r.byName, v.Name)
	return nil
}

// Get returns the vport with the given id.
func (r *Registry) Get(id ID) (*Vport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	return v, ok
}

// GetByName returns the vport with the given name.
func (r *Registry) GetByName(name string) (*Vport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byName[name]
	return v, ok
}

// NextEnabled returns the first enabled vport with id >= from, for the
// GET-with-dump-bit iteration spec.md §4.5 describes. ok is false past
// the end of the range (EOF).
func (r *Registry) NextEnabled(from ID) (*Vport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Vport
	for id, v := range r.byID {
		if id < from || !v.Enabled {
			continue
		}
		if best == nil || id < best.ID {
			best = v
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// List returns every vport currently registered, in no particular
// order.
func (r *Registry) List() []*Vport {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Vport, 0, len(r.byID))
	for _, v := range r.byID {
		out = append(out, v)
	}
	return out
}
