// ════════════════════════════════════════════════════════════════════════════════════════════════
// Output Drain
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Single Consumer Of The Event Ring
//
// Description:
//   The only goroutine that writes the event protocol. Pops events in claim order, renders one
//   line per event, and keeps the run's counters, metrics and trace digest. Actors never block
//   on I/O: they only claim ring slots.
//
// Line format:
//   C <index> <microseconds>\n
//   D <index> <microseconds>\n
//
// Adaptive Behavior:
//   - Hot mode: continuous polling while events arrived within the hot window
//   - Cool mode: CPU relaxation and a scheduler yield after the spin budget of empty polls
//   - Buffered output is flushed on the first empty poll after traffic and on exit
//   - Exit once halted and the ring is empty; all producers are joined before the halt
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package sink

import (
	"bufio"
	"encoding/hex"
	"hash"
	"io"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"

	"pacedetect/constants"
	"pacedetect/control"
	"pacedetect/cpu"
	"pacedetect/debug"
	"pacedetect/metrics"
	"pacedetect/ring"
	"pacedetect/types"
)

// Sink drains a ring into a writer.
type Sink struct {
	ring    *ring.Ring
	w       *bufio.Writer
	digest  hash.Hash
	metrics *metrics.Metrics
	line    []byte

	record bool
	events []types.Event

	dirty bool
	err   error

	changes    atomic.Uint64
	detections atomic.Uint64
}

// New builds a sink over r writing to out. m may be nil. When record is
// set every drained event is kept for Events.
func New(r *ring.Ring, out io.Writer, m *metrics.Metrics, record bool) *Sink {
	d, err := blake2b.New256(nil)
	if err != nil {
		panic("sink: blake2b: " + err.Error()) // only fails for oversized keys
	}
	return &Sink{
		ring:    r,
		w:       bufio.NewWriterSize(out, 64<<10),
		digest:  d,
		metrics: m,
		line:    make([]byte, 0, 32),
		record:  record,
	}
}

// AppendLine renders ev as one protocol line onto dst.
//
//go:nosplit
//go:inline
func AppendLine(dst []byte, ev types.Event) []byte {
	dst = append(dst, byte(ev.Kind), ' ')
	dst = strconv.AppendUint(dst, uint64(ev.Index), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, ev.Stamp, 10)
	return append(dst, '\n')
}

// Handle writes one event and updates the counters. A write error is kept
// and later lines are dropped; the drain keeps consuming so producers never
// stall on a dead writer.
func (s *Sink) Handle(ev types.Event) {
	switch ev.Kind {
	case types.Change:
		s.changes.Add(1)
		if s.metrics != nil {
			s.metrics.Changes.Inc()
		}
	case types.Detection:
		s.detections.Add(1)
		if s.metrics != nil {
			s.metrics.Detections.Inc()
			s.metrics.Latency.Observe(float64(ev.Latency()))
		}
	}
	if s.record {
		s.events = append(s.events, ev)
	}

	s.line = AppendLine(s.line[:0], ev)
	s.digest.Write(s.line)
	if s.err != nil {
		return
	}
	if _, err := s.w.Write(s.line); err != nil {
		s.err = err
		debug.DropError("SINK", err)
		return
	}
	s.dirty = true
}

// Flush pushes buffered lines to the writer.
func (s *Sink) Flush() error {
	if s.err != nil {
		return s.err
	}
	if err := s.w.Flush(); err != nil {
		s.err = err
		debug.DropError("SINK", err)
		return err
	}
	s.dirty = false
	return nil
}

// Drain consumes the ring until ctl is halted and the ring is empty, then
// flushes. A core >= 0 locks the goroutine to an OS thread pinned there and
// leaves it locked, so the pinned thread is retired when the goroutine
// exits; pass a core only from a goroutine that ends after Drain.
func (s *Sink) Drain(ctl *control.Control, core int) error {
	if core >= 0 {
		runtime.LockOSThread()
		if err := cpu.Pin(core); err != nil {
			debug.DropError("SINK PIN", err)
		}
	}

	var miss int
	lastHit := time.Now()

	for {
		if ev, ok := s.ring.Pop(); ok {
			s.Handle(ev)
			miss = 0
			lastHit = time.Now()
			continue
		}

		if ctl.Halted() {
			// Producers are joined before the halt, so a failed pop after
			// it means the ring is empty for good.
			if ev, ok := s.ring.Pop(); ok {
				s.Handle(ev)
				continue
			}
			return s.Flush()
		}

		if s.dirty {
			_ = s.Flush()
		}

		if time.Since(lastHit) <= constants.DrainHotWindow {
			continue
		}

		if miss++; miss >= constants.DrainSpinBudget {
			miss = 0
			cpu.Relax()
			runtime.Gosched()
		}
	}
}

// Start runs Drain on its own goroutine. The returned channel yields the
// drain's final error and is then closed.
func (s *Sink) Start(ctl *control.Control, core int) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.Drain(ctl, core)
	}()
	return done
}

// Changes returns the number of change lines drained so far.
func (s *Sink) Changes() uint64 { return s.changes.Load() }

// Detections returns the number of detection lines drained so far.
func (s *Sink) Detections() uint64 { return s.detections.Load() }

// Digest returns the hex BLAKE2b-256 of every line drained. Call after the
// drain has exited.
func (s *Sink) Digest() string {
	return hex.EncodeToString(s.digest.Sum(nil))
}

// Events returns the recorded events. Call after the drain has exited.
func (s *Sink) Events() []types.Event { return s.events }

// Err returns the first write error, if any.
func (s *Sink) Err() error { return s.err }
