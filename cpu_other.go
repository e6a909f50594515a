//go:build !linux

package mainmemory

// pinThread is a no-op on platforms without sched_setaffinity.
func pinThread(cpuIndex int) error { return nil }
