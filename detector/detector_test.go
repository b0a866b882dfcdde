package detector_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacedetect/bus"
	"pacedetect/control"
	"pacedetect/detector"
	"pacedetect/generator"
	"pacedetect/ring"
	"pacedetect/types"
)

// stream is a synchronous emitter that keeps events in emission order.
type stream struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *stream) Emit(ev types.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *stream) all() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.events...)
}

// ticking is a strictly increasing fake clock.
func ticking() types.Clock {
	var mu sync.Mutex
	var now int64 = 1_000_000
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		now += 3
		return now
	}
}

// rig wires a generator and the planned detectors to one stream without
// starting any goroutine; tests drive both sides by hand.
type rig struct {
	layout detector.Layout
	bus    *bus.Bus
	out    *stream
	gen    *generator.Generator
	dets   []detector.Detector
}

func newRig(t *testing.T, n int) *rig {
	t.Helper()
	l, err := detector.Plan(n, 5)
	require.NoError(t, err)
	b := bus.New(n, l.Packed())
	out := &stream{}
	clock := ticking()
	return &rig{
		layout: l,
		bus:    b,
		out:    out,
		gen:    generator.New(b, out, control.New(), clock, generator.Config{Ack: true, Seed: 1}),
		dets:   detector.Build(l, b, out, clock),
	}
}

// owner returns the detector whose span holds signal i.
func (r *rig) owner(i int) detector.Detector {
	cell, _ := r.bus.Locate(i)
	for _, d := range r.dets {
		if d.Span().Contains(cell) {
			return d
		}
	}
	return nil
}

// pollAll sweeps every detector rounds times and counts detections.
func (r *rig) pollAll(rounds int) int {
	hits := 0
	for round := 0; round < rounds; round++ {
		for _, d := range r.dets {
			if d.Poll() {
				hits++
			}
		}
	}
	return hits
}

// activate toggles i until it is active and lets its owner detect it.
func (r *rig) activate(t *testing.T, i int) {
	t.Helper()
	for !r.gen.Toggle(i) {
	}
	d := r.owner(i)
	require.NotNil(t, d)
	for n := 0; n < 64 && !r.bus.Acked(i); n++ {
		d.Poll()
	}
	require.Truef(t, r.bus.Acked(i), "signal %d never acknowledged", i)
}

// deactivate toggles an active signal back to 0.
func (r *rig) deactivate(t *testing.T, i int) {
	t.Helper()
	require.True(t, r.bus.Active(i))
	require.False(t, r.gen.Toggle(i))
	require.True(t, r.bus.Acked(i))
}

type line struct {
	kind  types.Kind
	index uint32
}

func lines(evs []types.Event) []line {
	out := make([]line, len(evs))
	for i, ev := range evs {
		out[i] = line{ev.Kind, ev.Index}
	}
	return out
}

func TestScenarioSingleStrategy(t *testing.T) {
	r := newRig(t, 3)
	require.Equal(t, detector.Single, r.layout.Strategy)
	require.Len(t, r.dets, 3)

	r.activate(t, 1)
	r.deactivate(t, 1)
	r.pollAll(4)
	r.activate(t, 1)
	r.activate(t, 2)

	evs := r.out.all()
	assert.Equal(t, []line{
		{types.Change, 1}, {types.Detection, 1},
		{types.Change, 1}, {types.Detection, 1},
		{types.Change, 2}, {types.Detection, 2},
	}, lines(evs))

	for i := 0; i < len(evs); i += 2 {
		c, d := evs[i], evs[i+1]
		assert.GreaterOrEqual(t, d.Stamp, c.Stamp)
		assert.Equal(t, c.Stamp, d.Origin, "detector reads the generator's stamp")
	}
	assert.Equal(t, uint64(2), r.dets[1].Detected())
	assert.Equal(t, uint64(1), r.dets[2].Detected())
	assert.Zero(t, r.dets[0].Detected())
}

func TestScenarioPackedStrategy(t *testing.T) {
	r := newRig(t, 160)
	require.Equal(t, detector.Packed, r.layout.Strategy)

	cell, mask := r.bus.Locate(95)
	require.Equal(t, 2, cell)
	require.Equal(t, uint32(1)<<31, mask)

	r.activate(t, 95)

	evs := r.out.all()
	require.Len(t, evs, 2)
	assert.Equal(t, line{types.Change, 95}, line{evs[0].Kind, evs[0].Index})
	assert.Equal(t, line{types.Detection, 95}, line{evs[1].Kind, evs[1].Index})
	assert.Equal(t, r.bus.Value(2), r.bus.Old(2), "snapshot caught up with the word")
	assert.Equal(t, uint64(1), r.owner(95).Detected())
}

func TestNoDetectionForDeactivation(t *testing.T) {
	for _, n := range []int{3, 40, 200} {
		r := newRig(t, n)
		for i := 0; i < n; i += 7 {
			r.activate(t, i)
		}
		before := len(r.out.all())
		for i := 0; i < n; i += 7 {
			r.deactivate(t, i)
		}
		r.pollAll(100)
		assert.Lenf(t, r.out.all(), before, "n=%d", n)
		for c := 0; c < r.bus.Cells(); c++ {
			assert.Equalf(t, r.bus.Value(c), r.bus.Old(c), "n=%d cell %d snapshot out of sync", n, c)
		}
	}
}

func TestDeactivatedSignalCanBeDetectedAgain(t *testing.T) {
	for _, n := range []int{3, 40, 200} {
		r := newRig(t, n)
		for round := 0; round < 3; round++ {
			r.activate(t, n-1)
			r.deactivate(t, n-1)
			r.pollAll(8)
		}
		assert.Lenf(t, r.out.all(), 6, "n=%d", n)
	}
}

// TestPackedResolvesHighestBitFirst toggles several bits of one word while
// the detector is idle, then checks they surface highest first, one per
// sweep.
func TestPackedResolvesHighestBitFirst(t *testing.T) {
	r := newRig(t, 160)
	for _, i := range []int{64, 70, 95, 81} {
		require.True(t, r.gen.Toggle(i))
	}
	d := r.owner(64)
	for k := 0; k < 4; k++ {
		require.True(t, d.Poll())
	}
	assert.False(t, d.Poll())

	var got []uint32
	for _, ev := range r.out.all() {
		if ev.Kind == types.Detection {
			got = append(got, ev.Index)
		}
	}
	assert.Equal(t, []uint32{95, 81, 70, 64}, got)
}

func TestPartitionedRoundRobin(t *testing.T) {
	r := newRig(t, 40)
	require.Equal(t, detector.Partitioned, r.layout.Strategy)

	d := r.dets[4]
	span := d.Span()
	require.Equal(t, detector.Range{Start: 32, End: 40}, span)

	// Activate the whole partition, then drain it: every index surfaces
	// once regardless of where the cursor starts.
	for i := span.Start; i < span.End; i++ {
		require.True(t, r.gen.Toggle(i))
	}
	seen := make(map[uint32]int)
	for k := 0; k < 3*span.Len(); k++ {
		d.Poll()
	}
	for _, ev := range r.out.all() {
		if ev.Kind == types.Detection {
			seen[ev.Index]++
		}
	}
	assert.Len(t, seen, span.Len())
	for i, c := range seen {
		assert.Equalf(t, 1, c, "signal %d detected %d times", i, c)
	}
}

func TestEachDetectorOwnsItsSignals(t *testing.T) {
	for _, n := range []int{3, 40, 200} {
		r := newRig(t, n)
		for i := 0; i < n; i++ {
			r.activate(t, i)
		}
		var total uint64
		for _, d := range r.dets {
			total += d.Detected()
		}
		assert.Equalf(t, uint64(n), total, "n=%d", n)
	}
}

// TestRunUntilCancelled runs real detector goroutines against a real
// generator and a real ring, then checks the ack discipline on the
// resulting stream.
func TestRunUntilCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("spinning goroutines")
	}
	for _, n := range []int{3, 40, 200} {
		t.Run(map[int]string{3: "single", 40: "partitioned", 200: "packed"}[n], func(t *testing.T) {
			l, err := detector.Plan(n, 5)
			require.NoError(t, err)
			b := bus.New(n, l.Packed())
			q := ring.New(1 << 16)
			ctl := control.New()
			gen := generator.New(b, q, ctl, types.Now, generator.Config{Ack: true, Seed: 3})
			dets := detector.Build(l, b, q, types.Now)

			var wg sync.WaitGroup
			for _, d := range dets {
				wg.Add(1)
				go func(d detector.Detector) {
					defer wg.Done()
					detector.Run(d, ctl)
				}(d)
			}

			t.Cleanup(ctl.Shutdown)

			// After every toggle wait until the owner has folded it into its
			// snapshot and the gate is open again, so the run does not depend
			// on how the scheduler interleaves the spinning goroutines.
			for i := 0; i < 120; i++ {
				sig := i % n
				gen.Toggle(sig)
				cell, mask := b.Locate(sig)
				deadline := time.Now().Add(5 * time.Second)
				for (b.Value(cell)^b.Old(cell))&mask != 0 || !b.Acked(sig) {
					require.Truef(t, time.Now().Before(deadline), "signal %d never resolved", sig)
				}
			}
			ctl.Stop()
			ctl.Cancel()
			wg.Wait()

			pending := make(map[uint32]bool)
			changes, detections := 0, 0
			for {
				ev, ok := q.Pop()
				if !ok {
					break
				}
				switch ev.Kind {
				case types.Change:
					require.Falsef(t, pending[ev.Index], "second change for %d before detection", ev.Index)
					pending[ev.Index] = true
					changes++
				case types.Detection:
					require.Truef(t, pending[ev.Index], "detection for %d without change", ev.Index)
					pending[ev.Index] = false
					detections++
				}
			}
			assert.Equal(t, changes, detections)
			assert.Positive(t, changes)
		})
	}
}
