package mainmemory

import (
	"io"
	"os"

	"github.com/mainmemory/mainmemory-go/internal/obs"
)

// DomainConfig configures a Domain at construction, per spec §6.1
// "Configuration": zero value means "use documented default," following
// the teacher's BatcherConfig shape (microbatch.BatcherConfig).
type DomainConfig struct {
	// Workers is the number of contexts (OS threads) the domain runs.
	// Defaults to runtime.GOMAXPROCS(0) after automaxprocs has adjusted
	// it for the detected container CPU quota.
	Workers int

	// PinCPU requests SchedSetaffinity-style pinning of each worker's OS
	// thread to a distinct CPU, per spec §4.4 "each thread bound
	// (optionally) to a CPU." Ignored on platforms without the syscall.
	PinCPU bool

	// LogWriter receives structured JSON log records; defaults to
	// os.Stderr.
	LogWriter io.Writer

	// LogLevel filters emitted records; defaults to obs.LevelInformational.
	LogLevel obs.Level

	// InboxCapacity is the per-context async-call inbox ring size
	// (spec §4.8), rounded up to a power of two. Defaults to 1024.
	InboxCapacity int

	// ForwardLowWaterMark is the detached-sink queue depth that triggers
	// waking an idle listener (spec §4.5 step 6). Defaults to 16.
	ForwardLowWaterMark int

	// ArenaReclaimCapacity sizes each context's private-arena cross-context
	// free queue (spec §6 "private arena ... SPSC reclaim queue"). Defaults
	// to 256.
	ArenaReclaimCapacity int

	// AsyncIOWorkers sizes the domain-wide helper-thread pool backing
	// Context.Async (spec §4.8 "blocking async syscall wrapper"). These
	// goroutines perform genuinely blocking calls on a fiber's behalf, off
	// any context's own driver thread. Defaults to 4.
	AsyncIOWorkers int
}

func (c DomainConfig) normalized() DomainConfig {
	if c.Workers <= 0 {
		c.Workers = defaultWorkerCount()
	}
	if c.LogWriter == nil {
		c.LogWriter = os.Stderr
	}
	if c.LogLevel == 0 {
		c.LogLevel = obs.LevelInformational
	}
	if c.InboxCapacity <= 0 {
		c.InboxCapacity = 1024
	}
	if c.ForwardLowWaterMark <= 0 {
		c.ForwardLowWaterMark = 16
	}
	if c.ArenaReclaimCapacity <= 0 {
		c.ArenaReclaimCapacity = 256
	}
	if c.AsyncIOWorkers <= 0 {
		c.AsyncIOWorkers = 4
	}
	return c
}

// ContextConfig configures a single worker context; currently only
// carries the fields a caller might reasonably want to override per
// worker (e.g. in tests that run a single context inline).
type ContextConfig struct {
	// CPUIndex is the CPU this context's OS thread is pinned to when the
	// owning Domain was constructed with PinCPU. Assigned automatically
	// by Domain.Start; exposed here for Context.CPUIndex.
	CPUIndex int
}
