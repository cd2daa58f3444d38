package flowtable

import (
	"sync"
	"time"
)

// tscClock stands in for the CPU time-stamp counter spec.md §4.2 uses
// as the monotonic clock source. A real datapath samples RDTSC and
// calibrates its frequency once at startup by timing a one-second
// interval; Go has no portable RDTSC intrinsic, so the "cycle" counter
// here is nanoseconds since an epoch captured at first use, and the
// calibration step degenerates to recording that epoch. This keeps the
// public surface — a cycle counter plus a frequency — faithful to the
// spec's external-reporting contract without inventing real hardware
// access.
type tscClock struct {
	once  sync.Once
	epoch time.Time
	// hz is the number of "cycles" (nanoseconds) per second; fixed
	// at 1e9 since the backing counter already runs in nanoseconds.
	hz uint64
}

var clock tscClock

func (c *tscClock) ensure() {
	c.once.Do(func() {
		c.epoch = time.Now()
		c.hz = uint64(time.Second)
	})
}

// readTSC returns the current cycle count, i.e. nanoseconds elapsed
// since the clock's epoch. Flow entries record this value on every
// stats update as LastUsedTSC.
func readTSC() uint64 {
	clock.ensure()
	return uint64(time.Since(clock.epoch))
}

// lastUsedMillis converts a stored cycle reading into monotonic
// milliseconds since the UNIX epoch, per spec.md §4.2:
//
//	now_ms - (current_tsc - flow_tsc) * 1000 / tsc_hz
func lastUsedMillis(flowTSC uint64) int64 {
	clock.ensure()

	cur := readTSC()
	var ageCycles uint64
	if cur > flowTSC {
		ageCycles = cur - flowTSC
	}
	ageMillis := ageCycles * 1000 / clock.hz

	nowMillis := clock.epoch.Add(time.Duration(cur)).UnixMilli()
	return nowMillis - int64(ageMillis)
}
