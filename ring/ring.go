// ring.go
//
// Lock-free multi-producer/single-consumer ring of fixed-size events.
// Each slot carries a sequence stamp exactly like the SPSC variant; the
// only addition is a CAS on the tail so several detectors and the
// generator can claim slots concurrently. The claim is the linearisation
// point: the consumer sees events in claim order, which respects every
// happens-before edge between producers.
//
// Slot life cycle (capacity C, position p):
//
//	seq == p      free, claimable by the producer that wins tail CAS p→p+1
//	seq == p+1    published, readable by the consumer
//	seq == p+C    reclaimed, free for position p+C
//
// Producer and consumer cursors sit on separate cache lines.

package ring

import (
	"runtime"
	"sync/atomic"

	"pacedetect/constants"
	"pacedetect/cpu"
	"pacedetect/types"
)

// slot couples one event with its sequence stamp.
type slot struct {
	seq atomic.Uint64
	ev  types.Event
}

// Ring is a bounded MPSC queue of events.
type Ring struct {
	_    [64]byte // consumer head isolated on its own cache-line
	head uint64
	//lint:ignore U1000 padding to keep head & tail on different cache-lines
	_pad1 [56]byte
	tail  atomic.Uint64
	//lint:ignore U1000 padding to keep hot fields from colliding with metadata
	_pad2 [56]byte
	mask  uint64
	buf   []slot
}

// New allocates a ring whose size must be a power-of-two; otherwise it
// panics so that the bit-masking arithmetic stays valid.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be >0 and a power of two")
	}
	r := &Ring{
		mask: uint64(size - 1),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Push enqueues ev, returning false if the ring is full. Safe for any
// number of concurrent producers. The retry loop must stay preemptible, so
// it carries no nosplit directive.
func (r *Ring) Push(ev types.Event) bool {
	for {
		t := r.tail.Load()
		s := &r.buf[t&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == t:
			if r.tail.CompareAndSwap(t, t+1) {
				s.ev = ev
				s.seq.Store(t + 1)
				return true
			}
		case seq < t:
			return false // consumer has not yet reclaimed the slot
		}
		// another producer claimed position t first; reload and retry
	}
}

// PushWait spins until ev is enqueued. Producers never drop events. Every
// RingYieldBudget failed attempts the producer yields its P so the consumer
// can run even when producers outnumber the Ps.
func (r *Ring) PushWait(ev types.Event) {
	for miss := 1; !r.Push(ev); miss++ {
		if miss%constants.RingYieldBudget == 0 {
			runtime.Gosched()
			continue
		}
		cpu.Relax()
	}
}

// Pop dequeues one event. It reports false if the next position has not
// been published yet, even when later positions already have.
//
//go:nosplit
func (r *Ring) Pop() (types.Event, bool) {
	h := r.head
	s := &r.buf[h&r.mask]
	if s.seq.Load() != h+1 {
		return types.Event{}, false // producer has not yet published the slot
	}
	ev := s.ev
	s.seq.Store(h + uint64(len(r.buf)))
	r.head = h + 1
	return ev, true
}

// PopWait busy-spins until an event becomes available, yielding every
// RingYieldBudget empty polls.
func (r *Ring) PopWait() types.Event {
	for miss := 1; ; miss++ {
		if ev, ok := r.Pop(); ok {
			return ev
		}
		if miss%constants.RingYieldBudget == 0 {
			runtime.Gosched()
			continue
		}
		cpu.Relax()
	}
}

// Len approximates the number of claimed but not yet consumed slots.
// Exact only when called from the consumer with producers quiescent.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Emit is PushWait under the types.Emitter contract.
func (r *Ring) Emit(ev types.Event) { r.PushWait(ev) }
