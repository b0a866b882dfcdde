// ════════════════════════════════════════════════════════════════════════════════════════════════
// Changed-Bit Scan
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Packed Word Difference Locator
//
// Description:
//   Locates the bit that differs between two versions of a 32-signal word. The difference word is
//   split into four bytes and the highest nonzero byte is resolved through a 256-entry floor(log2)
//   table, so the cost is at most two shifts and one load regardless of which bit moved.
//
// Semantics:
//   - When several bits differ, the highest one wins. Callers resolve it, fold it into their
//     snapshot, and pick up the remaining bits on the next scan.
//   - A zero difference returns -1.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package bitscan

// lt repeats n sixteen times to fill one row of the table.
func lt(n int8) [16]int8 {
	var row [16]int8
	for i := range row {
		row[i] = n
	}
	return row
}

// log2Table maps a byte to floor(log2(b)); entry 0 is the -1 sentinel.
var log2Table = func() (t [256]int8) {
	head := [16]int8{-1, 0, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3}
	copy(t[0:16], head[:])
	rows := [15]int8{4, 5, 5, 6, 6, 6, 6, 7, 7, 7, 7, 7, 7, 7, 7}
	for i, n := range rows {
		row := lt(n)
		copy(t[16*(i+1):16*(i+2)], row[:])
	}
	return
}()

// Changed returns the position of the highest set bit in diff, or -1 if
// diff is zero.
//
//go:nosplit
//go:inline
func Changed(diff uint32) int {
	if hi := diff >> 16; hi != 0 {
		if t := hi >> 8; t != 0 {
			return 24 + int(log2Table[t])
		}
		return 16 + int(log2Table[hi])
	}
	if t := diff >> 8; t != 0 {
		return 8 + int(log2Table[t])
	}
	return int(log2Table[diff])
}

// Between returns the highest bit position at which live and old differ,
// or -1 if they are equal.
//
//go:nosplit
//go:inline
func Between(live, old uint32) int {
	return Changed(live ^ old)
}
