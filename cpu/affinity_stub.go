//go:build !linux

// affinity_stub.go
//
// No-op affinity for platforms without sched_setaffinity(2).

package cpu

// Pin is a no-op outside Linux.
func Pin(core int) error { return nil }

// Allowed is unknown outside Linux.
func Allowed() []int { return nil }
