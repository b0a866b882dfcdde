// ════════════════════════════════════════════════════════════════════════════════════════════════
// Signal Generator
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Synthetic Sensor Toggler
//
// Description:
//   The only writer of signal values and timestamps. Sleeps a random [1, steps] multiple of the
//   configured interval, picks a uniformly random signal, waits for its acknowledgement gate,
//   and toggles it. Activations are emitted as change events; deactivations reopen the gate
//   immediately because no detection follows them.
//
// Publication order for one toggle:
//   ack←0 → stamp → change event claimed → value flipped → (deactivation) ack←1
//
//   The change event is claimed before the value is published so it precedes the matching
//   detection in the event stream. The toggle's outcome is known in advance because no other
//   actor writes values.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package generator

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"pacedetect/bus"
	"pacedetect/constants"
	"pacedetect/control"
	"pacedetect/cpu"
	"pacedetect/types"
	"pacedetect/utils"
)

// Config tunes the generator.
type Config struct {
	// Multiplier scales the random sleep draw. Zero disables sleeping.
	Multiplier time.Duration

	// Steps is the upper bound of the sleep draw [1, Steps].
	Steps int

	// Ack enables the acknowledgement gate.
	Ack bool

	// Seed seeds the PRNG. Zero seeds from the clock.
	Seed uint64
}

// DefaultConfig mirrors the reference pacing with the gate enabled.
func DefaultConfig() Config {
	return Config{
		Multiplier: constants.SleepMultiplier,
		Steps:      constants.SleepSteps,
		Ack:        true,
	}
}

// Generator toggles signals on a bus.
type Generator struct {
	bus   *bus.Bus
	out   types.Emitter
	ctl   *control.Control
	clock types.Clock
	rng   *rand.Rand
	cfg   Config

	toggles atomic.Uint64
	changes atomic.Uint64
}

// New wires a generator to its bus, event sink and run flag.
func New(b *bus.Bus, out types.Emitter, ctl *control.Control, clock types.Clock, cfg Config) *Generator {
	if cfg.Steps <= 0 {
		cfg.Steps = constants.SleepSteps
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		bus:   b,
		out:   out,
		ctl:   ctl,
		clock: clock,
		rng:   rand.New(rand.NewPCG(seed, utils.Mix64(seed))),
		cfg:   cfg,
	}
}

// Run toggles random signals while the run flag is raised. It returns
// after the in-flight toggle once the flag drops.
func (g *Generator) Run() {
	n := g.bus.Signals()
	for g.ctl.Running() {
		g.pause()
		g.Toggle(g.rng.IntN(n))
	}
}

// pause sleeps a random multiple of the configured interval.
func (g *Generator) pause() {
	if g.cfg.Multiplier <= 0 {
		return
	}
	time.Sleep(time.Duration(g.rng.IntN(g.cfg.Steps)+1) * g.cfg.Multiplier)
}

// Toggle performs one protocol step on signal r and reports whether the
// signal was activated. With the gate enabled it spins until r is
// acknowledged; if the run flag drops meanwhile it gives up without
// toggling and returns false.
func (g *Generator) Toggle(r int) bool {
	if g.cfg.Ack {
		for !g.bus.Acked(r) {
			if !g.ctl.Running() {
				return false
			}
			cpu.Relax()
		}
		g.bus.Hold(r)
	}

	ts := g.clock()
	g.bus.SetStamp(r, ts)

	activating := !g.bus.Active(r)
	if activating {
		g.out.Emit(types.Event{Kind: types.Change, Index: uint32(r), Stamp: ts})
		g.changes.Add(1)
	}
	g.bus.Toggle(r)
	g.toggles.Add(1)

	if !activating && g.cfg.Ack {
		g.bus.Release(r)
	}
	return activating
}

// Toggles returns the number of completed toggles.
func (g *Generator) Toggles() uint64 { return g.toggles.Load() }

// Changes returns the number of activations emitted.
func (g *Generator) Changes() uint64 { return g.changes.Load() }
