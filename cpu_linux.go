//go:build linux

package mainmemory

import "golang.org/x/sys/unix"

// pinThread binds the calling OS thread to cpuIndex via sched_setaffinity,
// per spec §4.4 "each thread bound (optionally) to a CPU." The caller must
// already hold the OS thread exclusively (runtime.LockOSThread).
func pinThread(cpuIndex int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuIndex)
	return unix.SchedSetaffinity(0, &set)
}
