//go:build linux

// affinity_linux.go
//
// Pins the calling OS thread to one logical CPU through sched_setaffinity(2).
// The caller must hold runtime.LockOSThread, otherwise the goroutine can
// migrate off the pinned thread at the next reschedule.

package cpu

import "golang.org/x/sys/unix"

// Pin binds the current thread to core. Cores outside the CPU set size are
// rejected by the kernel with EINVAL and reported as-is; containers that
// forbid the call return EPERM. Either way the thread keeps running unpinned.
func Pin(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

// Allowed lists, in ascending order, the CPUs the process may run on. The
// numbers need not be contiguous: a cpuset of {4,5} yields [4 5].
func Allowed() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	cores := make([]int, 0, set.Count())
	for c := 0; len(cores) < cap(cores); c++ {
		if set.IsSet(c) {
			cores = append(cores, c)
		}
	}
	return cores
}
