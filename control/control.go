// control.go - Run flag and cancellation token shared by all actors
// ============================================================================
// SYSTEM CONTROL ORCHESTRATION
// ============================================================================
//
// Control carries the three process-wide flags of a detection run:
//
//   • run    - 1 while the generator may keep toggling (the RunFlag).
//   • cancel - 1 once detectors must leave their scan loop.
//   • stop   - 1 once the output drain may exit after emptying the ring.
//
// Every flag is written once by the supervisor and polled by spinning
// goroutines, so each lives on its own cache line to keep the supervisor's
// single store from bouncing the lines the detectors are reading.
//
// Shutdown sequence:
//   Stop() → generator exits → grace → Cancel() → detectors exit → Halt() → drain exits

package control

import "sync/atomic"

// Control is the flag block for one run. The zero value is not running;
// use New.
type Control struct {
	_      [64]byte
	run    atomic.Uint32
	_      [60]byte
	cancel atomic.Uint32
	_      [60]byte
	stop   atomic.Uint32
	_      [60]byte
}

// New returns a control block with the run flag raised.
func New() *Control {
	c := &Control{}
	c.run.Store(1)
	return c
}

// ============================================================================
// GENERATOR FLAG
// ============================================================================

// Running reports whether the generator may keep toggling.
//
//go:nosplit
//go:inline
func (c *Control) Running() bool { return c.run.Load() == 1 }

// Stop lowers the run flag. Idempotent.
func (c *Control) Stop() { c.run.Store(0) }

// ============================================================================
// DETECTOR CANCELLATION TOKEN
// ============================================================================

// Cancelled reports whether detectors must leave their scan loop. Checked
// once per sweep, never inside one.
//
//go:nosplit
//go:inline
func (c *Control) Cancelled() bool { return c.cancel.Load() != 0 }

// Cancel raises the detector cancellation token. Idempotent.
func (c *Control) Cancel() { c.cancel.Store(1) }

// ============================================================================
// DRAIN SHUTDOWN
// ============================================================================

// Halted reports whether the drain may exit once the ring is empty.
//
//go:nosplit
//go:inline
func (c *Control) Halted() bool { return c.stop.Load() != 0 }

// Halt asks the drain to finish. Idempotent.
func (c *Control) Halt() { c.stop.Store(1) }

// Shutdown runs the whole sequence without waiting in between. Used when
// a run is abandoned before its actors were started.
func (c *Control) Shutdown() {
	c.Stop()
	c.Cancel()
	c.Halt()
}
