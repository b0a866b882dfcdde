// ════════════════════════════════════════════════════════════════════════════════════════════════
// Signal Bus
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Shared Signal / Snapshot / Timestamp / Acknowledgement Columns
//
// Description:
//   The only memory shared between the generator and the detectors. Every column is an array of
//   atomic cells; Go's sync/atomic operations are sequentially consistent, which covers the
//   acquire/release ordering the acknowledgement protocol depends on.
//
// Ownership (single writer per cell):
//   - value:  generator
//   - stamp:  generator
//   - old:    the detector owning the cell
//   - ack:    generator holds (1→0) and releases deactivations; the owning detector releases
//             activations. The two never race: the generator only touches ack[r] while it is 1,
//             the detector only while it is 0.
//
// Layout:
//   - Unpacked: one value/old cell per signal.
//   - Packed:   32 signals per value/old word, addressed by (index>>5, index&31).
//   - stamp and ack are always one cell per signal.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package bus

import (
	"sync/atomic"

	"pacedetect/constants"
)

// Bus holds the shared columns for N signals.
type Bus struct {
	value []atomic.Uint32
	old   []atomic.Uint32
	stamp []atomic.Int64
	ack   []atomic.Uint32

	signals int
	packed  bool
}

// Words returns the number of 32-signal words needed for n signals.
func Words(n int) int {
	return (n + constants.WordBits - 1) >> constants.WordShift
}

// New allocates the bus for n signals. Every gate starts acknowledged.
// Allocation failure is fatal (the runtime aborts), matching the
// no-retry policy for resource exhaustion.
func New(n int, packed bool) *Bus {
	if n <= 0 {
		panic("bus: signal count must be > 0")
	}
	cells := n
	if packed {
		cells = Words(n)
	}
	b := &Bus{
		value:   make([]atomic.Uint32, cells),
		old:     make([]atomic.Uint32, cells),
		stamp:   make([]atomic.Int64, n),
		ack:     make([]atomic.Uint32, n),
		signals: n,
		packed:  packed,
	}
	for i := range b.ack {
		b.ack[i].Store(1)
	}
	return b
}

// Signals returns N.
func (b *Bus) Signals() int { return b.signals }

// Cells returns the number of value/old cells (N, or ⌈N/32⌉ when packed).
func (b *Bus) Cells() int { return len(b.value) }

// Packed reports whether signals share 32-bit words.
func (b *Bus) Packed() bool { return b.packed }

// ───────────────────────────── Addressing ──────────────────────────────────

// Locate returns the cell holding signal i and the mask selecting it.
// Unpacked cells hold a single 0/1 value, so their mask is 1.
//
//go:nosplit
//go:inline
func (b *Bus) Locate(i int) (cell int, mask uint32) {
	if b.packed {
		return i >> constants.WordShift, 1 << (i & constants.WordMask)
	}
	return i, 1
}

// ───────────────────────────── Value Column ────────────────────────────────

// Value is the live content of a cell.
//
//go:nosplit
//go:inline
func (b *Bus) Value(cell int) uint32 { return b.value[cell].Load() }

// Active reports the live state of signal i.
func (b *Bus) Active(i int) bool {
	cell, mask := b.Locate(i)
	return b.value[cell].Load()&mask != 0
}

// Toggle flips signal i and returns its new state. Only the generator may
// call it: the load/store pair is not a read-modify-write and relies on
// there being exactly one writer of the value column.
func (b *Bus) Toggle(i int) bool {
	cell, mask := b.Locate(i)
	v := b.value[cell].Load() ^ mask
	b.value[cell].Store(v)
	return v&mask != 0
}

// ───────────────────────────── Snapshot Column ─────────────────────────────

// Old is the owning detector's snapshot of a cell.
//
//go:nosplit
//go:inline
func (b *Bus) Old(cell int) uint32 { return b.old[cell].Load() }

// SetOld replaces the snapshot of a cell.
//
//go:nosplit
//go:inline
func (b *Bus) SetOld(cell int, v uint32) { b.old[cell].Store(v) }

// FlipOld toggles the masked bits of a snapshot, leaving the others alone.
// Single writer (the owning detector), so load/store is sufficient.
//
//go:nosplit
//go:inline
func (b *Bus) FlipOld(cell int, mask uint32) {
	b.old[cell].Store(b.old[cell].Load() ^ mask)
}

// ───────────────────────────── Timestamp Column ────────────────────────────

// Stamp returns the generator's last toggle time for signal i (µs).
//
//go:nosplit
//go:inline
func (b *Bus) Stamp(i int) int64 { return b.stamp[i].Load() }

// SetStamp records the toggle time for signal i. Must precede Toggle.
//
//go:nosplit
//go:inline
func (b *Bus) SetStamp(i int, ts int64) { b.stamp[i].Store(ts) }

// ───────────────────────────── Acknowledgement Column ──────────────────────

// Acked reports whether signal i is idle (the generator may toggle it).
//
//go:nosplit
//go:inline
func (b *Bus) Acked(i int) bool { return b.ack[i].Load() == 1 }

// Hold marks signal i as pending.
//
//go:nosplit
//go:inline
func (b *Bus) Hold(i int) { b.ack[i].Store(0) }

// Release reopens the gate for signal i.
//
//go:nosplit
//go:inline
func (b *Bus) Release(i int) { b.ack[i].Store(1) }
