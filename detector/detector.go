// ════════════════════════════════════════════════════════════════════════════════════════════════
// Change Detectors
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Spin-Polling Detector Strategies
//
// Description:
//   Three interchangeable ways to watch the signal bus, picked once by Plan. Each detector owns a
//   disjoint range of bus cells, compares the live value against its private snapshot and, on an
//   activation, stamps the time, emits a detection, folds the change into the snapshot and
//   releases the signal's acknowledgement gate, in that order.
//
// Polling model:
//   - Poll is one sweep over the owned range and returns after the first resolved change.
//   - Run resolves the concrete type once and spins Poll until the cancellation token is raised.
//   - No sweep ever yields: detection latency is the quantity under measurement.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package detector

import (
	"sync/atomic"

	"pacedetect/bus"
	"pacedetect/control"
	"pacedetect/types"
)

// Detector watches a fixed range of bus cells.
type Detector interface {
	// Poll performs one sweep and reports whether an activation was
	// detected.
	Poll() bool

	// Span returns the owned cell range.
	Span() Range

	// Detected returns the number of activations this detector emitted.
	Detected() uint64
}

// base carries the state shared by all strategies.
type base struct {
	bus   *bus.Bus
	out   types.Emitter
	clock types.Clock
	span  Range
	hits  atomic.Uint64
}

func (b *base) Span() Range      { return b.span }
func (b *base) Detected() uint64 { return b.hits.Load() }

func (b *base) init(bs *bus.Bus, out types.Emitter, clock types.Clock, span Range) {
	b.bus, b.out, b.clock, b.span = bs, out, clock, span
}

// detect stamps and emits an activation of signal i. The generator's stamp
// is read after the value, so it belongs to the toggle just observed.
func (b *base) detect(i int) {
	b.out.Emit(types.Event{
		Kind:   types.Detection,
		Index:  uint32(i),
		Stamp:  b.clock(),
		Origin: b.bus.Stamp(i),
	})
	b.hits.Add(1)
}

// Build creates the detectors described by l over b. Each emits to out
// and stamps with clock.
func Build(l Layout, b *bus.Bus, out types.Emitter, clock types.Clock) []Detector {
	dets := make([]Detector, l.Threads)
	for id := range dets {
		span := l.Span(id)
		switch l.Strategy {
		case Single:
			d := &SingleDetector{target: span.Start}
			d.init(b, out, clock, span)
			dets[id] = d
		case Partitioned:
			d := &PartitionedDetector{cursor: span.Start}
			d.init(b, out, clock, span)
			dets[id] = d
		case Packed:
			d := &PackedDetector{cursor: span.Start}
			d.init(b, out, clock, span)
			dets[id] = d
		}
	}
	return dets
}

// Run spins d until ctl is cancelled. The token is read once per sweep.
func Run(d Detector, ctl *control.Control) {
	switch d := d.(type) {
	case *SingleDetector:
		for !ctl.Cancelled() {
			d.Poll()
		}
	case *PartitionedDetector:
		for !ctl.Cancelled() {
			d.Poll()
		}
	case *PackedDetector:
		for !ctl.Cancelled() {
			d.Poll()
		}
	default:
		for !ctl.Cancelled() {
			d.Poll()
		}
	}
}
