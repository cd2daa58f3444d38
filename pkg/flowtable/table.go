package flowtable

import (
	"errors"
	"sync"

	"github.com/ovsdp/ovsdp/pkg/action"
	"github.com/ovsdp/ovsdp/pkg/flowkey"
)

// Errors returned by Table operations, matching spec.md §7's
// EEXIST/ENOENT vocabulary for flow-table mutation.
var (
	ErrExist  = errors.New("flowtable: flow already exists")
	ErrNoEnt  = errors.New("flowtable: no such flow")
)

// entry is one exact-match flow: a key, its action list, and its
// statistics under a per-entry lock.
type entry struct {
	key     flowkey.Key
	actions []action.Action
	stats   Stats
	lock    entryLock
}

// Handle identifies one flow-table entry stably across Get/Dump calls,
// independent of any later rehash, matching spec.md §4.2's
// "handles stay valid until the entry is deleted" invariant.
type Handle struct {
	key flowkey.Key
}

// Table is the exact-match flow table: a hash map from flow key to
// entry, guarded by one RWMutex for the index structure itself. Each
// entry's statistics are guarded independently via entryLock, so a
// stats update never contends with an unrelated lookup. Grounded on
// the ovsnl flow client's add/del/get/dump vocabulary, reworked from a
// netlink RPC surface into a direct in-process table per spec.md §4.2.
type Table struct {
	mu      sync.RWMutex
	entries map[flowkey.Key]*entry
	// order preserves insertion order so First/Next provide a stable
	// dump iteration, matching spec.md §4.2's "First/Next consistently
	// enumerate every live flow exactly once absent concurrent mutation".
	order []flowkey.Key
}

// New creates an empty flow table.
func New() *Table {
	return &Table{entries: make(map[flowkey.Key]*entry)}
}

// Add inserts a new flow with the given key and actions. Returns
// ErrExist if a flow with this exact key is already present, matching
// spec.md §8's "add, add again on the same key" scenario.
func (t *Table) Add(key flowkey.Key, actions []action.Action) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; exists {
		return Handle{}, ErrExist
	}

	acts := make([]action.Action, len(actions))
	copy(acts, actions)
	t.entries[key] = &entry{key: key, actions: acts}
	t.order = append(t.order, key)
	return Handle{key: key}, nil
}

// Modify replaces the action list of an existing flow in place,
// leaving its statistics untouched. Returns ErrNoEnt if the key is
// absent.
func (t *Table) Modify(key flowkey.Key, actions []action.Action) error {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return ErrNoEnt
	}

	acts := make([]action.Action, len(actions))
	copy(acts, actions)

	e.lock.mu.Lock()
	e.actions = acts
	e.lock.mu.Unlock()
	return nil
}

// Delete removes a flow from the table. This implementation resolves
// the teacher system's del-path bug (it cleared the entry's key with a
// memset sized by sizeof(action) instead of sizeof(key), so the wrong
// number of bytes was cleared) by never touching the entry's
// memory at all: deletion simply drops the map entry and lets Go's
// garbage collector reclaim it, so there is no memset and no size to
// get wrong.
func (t *Table) Delete(key flowkey.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; !ok {
		return ErrNoEnt
	}
	delete(t.entries, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup finds the flow matching key exactly (the wildcard-free exact
// match spec.md §4.2 describes) and returns its current action list.
func (t *Table) Lookup(key flowkey.Key) ([]action.Action, bool) {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.lock.mu.Lock()
	acts := make([]action.Action, len(e.actions))
	copy(acts, e.actions)
	e.lock.mu.Unlock()
	return acts, true
}

// Get returns the actions and a statistics snapshot for key.
func (t *Table) Get(key flowkey.Key) ([]action.Action, Stats, bool) {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return nil, Stats{}, false
	}

	e.lock.mu.Lock()
	acts := make([]action.Action, len(e.actions))
	copy(acts, e.actions)
	stats := e.stats
	e.lock.mu.Unlock()
	return acts, stats, true
}

// UpdateStats folds one packet observation into key's entry, taking
// the forwarding-path fast path: an RLock on the table index plus a
// single per-entry lock, so concurrent updates to different flows
// never contend with each other.
func (t *Table) UpdateStats(key flowkey.Key, pktBytes int, flags flowkey.TCPFlags) bool {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	e.lock.update(&e.stats, pktBytes, flags)
	return true
}

// ClearStats zeroes key's statistics without disturbing its action
// list or re-initializing its entry lock (see entryLock.reset).
func (t *Table) ClearStats(key flowkey.Key) bool {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	e.lock.reset(&e.stats)
	return true
}

// First returns the first flow key in dump order, for control-channel
// FLOW_CMD_FAMILY iteration (spec.md §4.5). ok is false if the table
// is empty.
func (t *Table) First() (flowkey.Key, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.order) == 0 {
		return flowkey.Key{}, false
	}
	return t.order[0], true
}

// Next returns the key immediately following after in dump order. ok
// is false once the iteration reaches the end, or if after is no
// longer present (it was deleted mid-dump).
func (t *Table) Next(after flowkey.Key) (flowkey.Key, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, k := range t.order {
		if k == after {
			if i+1 < len(t.order) {
				return t.order[i+1], true
			}
			return flowkey.Key{}, false
		}
	}
	return flowkey.Key{}, false
}

// Flush removes every flow from the table, for datapath reset.
func (t *Table) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[flowkey.Key]*entry)
	t.order = nil
}

// Len reports the number of live flows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
