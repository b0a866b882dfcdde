//go:build (amd64 || arm64) && !noasm

// relax.go
//
// Go declaration for Relax on amd64 and arm64. The bodies live in
// relax_amd64.s (PAUSE) and relax_arm64.s (YIELD) so busy-wait loops
// hint the core without leaving userspace or yielding the thread.

package cpu

// Relax executes a single spin-wait hint instruction.
//
//go:noescape
func Relax()
