package types

import "time"

// ============================================================================
// EVENT RECORD - ONE LINE OF THE OUTPUT PROTOCOL
// ============================================================================

// Kind tags an event with its protocol letter.
type Kind uint8

const (
	// Change is emitted by the generator when a toggle activates a signal.
	Change Kind = 'C'

	// Detection is emitted by a detector when it observes an activation.
	Detection Kind = 'D'
)

// String returns the protocol letter.
func (k Kind) String() string {
	switch k {
	case Change:
		return "C"
	case Detection:
		return "D"
	}
	return "?"
}

// Valid reports whether k is one of the two protocol kinds.
func (k Kind) Valid() bool {
	return k == Change || k == Detection
}

// Event is a single (kind, signal, timestamp) record travelling from an
// actor to the output drain. Fixed size so ring slots never allocate.
type Event struct {
	// Stamp is the wall-clock time of the event in microseconds.
	Stamp int64

	// Origin is the generator's bus stamp observed by the detector.
	// Zero on change events.
	Origin int64

	// Index is the absolute signal index, even in packed mode.
	Index uint32

	Kind Kind
	_    [3]byte
}

// Latency returns the detection latency in microseconds, or zero for
// change events.
func (e Event) Latency() int64 {
	if e.Kind != Detection {
		return 0
	}
	return e.Stamp - e.Origin
}

// ============================================================================
// ACTOR PLUMBING
// ============================================================================

// Emitter accepts events from the generator or a detector. Implementations
// must be safe for concurrent use and must not drop events.
type Emitter interface {
	Emit(Event)
}

// Clock returns the current wall-clock time in microseconds.
type Clock func() int64

// Now is the production clock.
func Now() int64 { return time.Now().UnixMicro() }
