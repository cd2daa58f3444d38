package flowtable

import (
	"sync"

	"github.com/ovsdp/ovsdp/pkg/flowkey"
)

// Stats is the per-entry statistics block spec.md §3 defines: packet
// and byte counters, a last-used timestamp, and a union of observed
// TCP flags. It is mutated only under entry.lock (held just for the
// duration of the update, never across a lookup), so readers that skip
// the lock see, at worst, a torn snapshot — acceptable per spec.md §5
// ("stats are advisory").
type Stats struct {
	Packets    uint64
	Bytes      uint64
	LastUsedTSC uint64
	TCPFlags   flowkey.TCPFlags
}

// LastUsedMillis reports Stats.LastUsedTSC converted to monotonic
// milliseconds since the UNIX epoch, per spec.md §4.2.
func (s Stats) LastUsedMillis() int64 {
	if s.LastUsedTSC == 0 {
		return 0
	}
	return lastUsedMillis(s.LastUsedTSC)
}

// entryLock guards a single entry's mutable Stats. It is a plain
// mutex rather than a spinlock — spec.md §5 calls for a per-entry
// spinlock held only across the stats update, which a short-critical-
// -section sync.Mutex satisfies just as well on a goroutine scheduler
// that has no notion of pinned spinning without burning a core.
type entryLock struct {
	mu sync.Mutex
}

// update applies one packet observation to Stats under the lock.
func (l *entryLock) update(s *Stats, pktBytes int, flags flowkey.TCPFlags) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.Packets++
	s.Bytes += uint64(pktBytes)
	s.LastUsedTSC = readTSC()
	s.TCPFlags |= flags
}

// reset clears Stats under the lock. spec.md §9 flags the teacher
// system's "re-init the lock during stats-clear, which deadlocks any
// concurrent reader" as an open question; this implementation resolves
// it by zeroing the fields under the existing lock instead of
// re-initializing the lock itself, which is race-free by construction
// and never requires re-creating the synchronization primitive.
func (l *entryLock) reset(s *Stats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*s = Stats{}
}

// snapshot returns a copy of Stats under the lock, a consistent
// (non-torn) view. Table.Get takes the same lock inline rather than
// calling it.
func (l *entryLock) snapshot(s *Stats) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *s
}
