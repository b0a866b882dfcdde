package detector

import (
	"errors"
	"fmt"

	"pacedetect/bus"
	"pacedetect/constants"
)

var (
	// ErrSignals is returned when the signal count is not positive.
	ErrSignals = errors.New("detector: signal count must be positive")

	// ErrThreads is returned when the detector budget is not positive.
	ErrThreads = errors.New("detector: thread budget must be positive")
)

// Strategy selects how signals are divided between detector goroutines.
type Strategy uint8

const (
	// Single binds one goroutine to each signal.
	Single Strategy = iota

	// Partitioned gives each goroutine a contiguous range of signals.
	Partitioned

	// Packed gives each goroutine a contiguous range of 32-signal words.
	Packed
)

func (s Strategy) String() string {
	switch s {
	case Single:
		return "single"
	case Partitioned:
		return "partitioned"
	case Packed:
		return "packed"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// Layout is the configuration decision taken before any actor starts.
type Layout struct {
	Strategy Strategy
	Signals  int // N
	Cells    int // bus cells: N, or ⌈N/32⌉ when packed
	Threads  int // detector goroutines
}

// Plan picks the strategy for n signals under a budget of detector
// goroutines. Packing kicks in once every goroutine would own at least a
// full word; below the budget each signal gets its own goroutine.
func Plan(n, budget int) (Layout, error) {
	if n <= 0 {
		return Layout{}, fmt.Errorf("%w: %d", ErrSignals, n)
	}
	if budget <= 0 {
		return Layout{}, fmt.Errorf("%w: %d", ErrThreads, budget)
	}
	switch {
	case n/budget >= constants.WordBits:
		return Layout{Strategy: Packed, Signals: n, Cells: bus.Words(n), Threads: budget}, nil
	case n > budget:
		return Layout{Strategy: Partitioned, Signals: n, Cells: n, Threads: budget}, nil
	default:
		return Layout{Strategy: Single, Signals: n, Cells: n, Threads: n}, nil
	}
}

// Packed reports whether the layout uses bit-packed words.
func (l Layout) Packed() bool { return l.Strategy == Packed }

// Span returns the cell range owned by detector id.
func (l Layout) Span(id int) Range {
	return Tile(l.Cells, l.Threads, id)
}

// Range is a half-open interval of bus cells [Start, End).
type Range struct {
	Start, End int
}

// Len returns the number of cells in r.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether cell i is in r.
func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Tile returns the id-th of parts contiguous ranges covering [0, total).
// Every range has total/parts cells; the last one also absorbs the
// remainder, so the ranges tile the space with no gaps or overlaps.
func Tile(total, parts, id int) Range {
	per := total / parts
	start := id * per
	end := start + per
	if id == parts-1 {
		end += total % parts
	}
	return Range{Start: start, End: end}
}
