// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go - Detector pool sizing & generator pacing tunables
//
// Purpose:
//   - Defines the compile-time defaults shared by the planner, the generator
//     and the supervisor. Runtime overrides live in the config package.
//
// Notes:
//   - WordBits is structural: the packed bus and BitScan both assume 32-bit
//     words. Changing it requires a new scan table.
//
// ⚠️ No runtime logic here - all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Detector Pool ──────────────────────────────

const (
	// Threads is the detector budget. Below it every signal gets its own
	// goroutine; above it signals are partitioned across exactly this many.
	Threads = 5

	// WordBits is the number of signals packed into one bus word.
	WordBits = 32

	// WordShift and WordMask split a signal index into (word, bit).
	WordShift = 5
	WordMask  = WordBits - 1
)

// ─────────────────────────── Generator Pacing ─────────────────────────────

const (
	// SleepMultiplier scales the generator's random [1, 10] inter-arrival
	// draw. 20µs × [1, 10] keeps toggles between 20µs and 200µs apart.
	SleepMultiplier = 20 * time.Microsecond

	// SleepSteps is the upper bound of the inter-arrival draw.
	SleepSteps = 10
)

// ─────────────────────────── Run Lifecycle ────────────────────────────────

const (
	// ExecutionTime is how long the generator keeps toggling.
	ExecutionTime = 1 * time.Second

	// GracePeriod lets detectors resolve the last activations after the
	// generator has been joined and before they are cancelled.
	GracePeriod = 500 * time.Microsecond
)

// ─────────────────────────── Event Stream ─────────────────────────────────

const (
	// EventRingSize is the capacity of the MPSC event ring. Power of two.
	// 2^16 events ≈ 2 MiB, enough to absorb a stalled writer for several
	// hundred milliseconds at the generator's maximum rate.
	EventRingSize = 1 << 16

	// DrainSpinBudget is the number of empty polls between spin hints
	// once the drain has cooled down.
	DrainSpinBudget = 256

	// DrainHotWindow keeps the drain in tight spin after the last event.
	DrainHotWindow = 5 * time.Millisecond

	// RingYieldBudget is the number of failed ring attempts between
	// scheduler yields in PushWait and PopWait. Producers outnumber the
	// Ps when GOMAXPROCS is small, so a waiting side must hand its P back.
	RingYieldBudget = 64
)
