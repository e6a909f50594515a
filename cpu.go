package mainmemory

import (
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
)

// defaultWorkerCount sets GOMAXPROCS from the detected container CPU
// quota (spec §6.1 "CPU affinity / GOMAXPROCS") and returns the resulting
// value as the domain's default worker count.
func defaultWorkerCount() int {
	_, _ = maxprocs.Set()
	return runtime.GOMAXPROCS(0)
}
