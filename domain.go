package mainmemory

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mainmemory/mainmemory-go/internal/arena"
	"github.com/mainmemory/mainmemory-go/internal/asyncio"
	"github.com/mainmemory/mainmemory-go/internal/obs"
)

// Domain is a fixed set of worker contexts sharing one Dispatch, per spec
// §2 "a domain: a fixed set of worker threads, each running a strand."
// The zero value is not usable; construct with NewDomain.
type Domain struct {
	cfg       DomainConfig
	dispatch  *Dispatch
	log       *obs.Logger
	asyncPool *asyncio.Pool
	common    *arena.Common

	contexts []*Context

	wg      sync.WaitGroup
	started bool
	stopped atomic.Bool
	mu      sync.Mutex
}

// NewDomain constructs a domain with cfg.Workers contexts (defaulting to
// automaxprocs-adjusted GOMAXPROCS), each with its own strand, poller,
// inbox, and private arena, sharing a single Dispatch.
func NewDomain(cfg DomainConfig) (*Domain, error) {
	cfg = cfg.normalized()

	d := &Domain{
		cfg:       cfg,
		dispatch:  newDispatch(cfg.ForwardLowWaterMark),
		log:       obs.New(cfg.LogWriter, cfg.LogLevel),
		asyncPool: asyncio.NewPool(cfg.AsyncIOWorkers),
		common:    arena.NewCommon(),
	}

	d.contexts = make([]*Context, cfg.Workers)
	for i := range d.contexts {
		c, err := newContext(i, d, cfg)
		if err != nil {
			for _, prior := range d.contexts[:i] {
				if prior != nil {
					_ = prior.poller.Close()
				}
			}
			d.asyncPool.Close()
			return nil, err
		}
		d.contexts[i] = c
	}
	d.dispatch.contexts = d.contexts

	return d, nil
}

// Contexts returns the domain's worker contexts, indexed by ID.
func (d *Domain) Contexts() []*Context { return d.contexts }

// CommonArena returns the domain-wide, lock-guarded allocator for memory
// whose owning context isn't yet known (spec §6 "common (thread-lock
// guarded)"), e.g. a connection accepted but not yet handed off to the
// context that will run it.
func (d *Domain) CommonArena() *arena.Common { return d.common }

// Start launches one OS-thread-locked driver goroutine per context,
// per spec §4.4 "each thread bound (optionally) to a CPU" and §6.1's
// worker-thread model. Returns ErrDomainAlreadyStarted if called twice.
func (d *Domain) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrDomainAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(len(d.contexts))
	for _, c := range d.contexts {
		c := c
		go func() {
			defer d.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if d.cfg.PinCPU {
				if err := pinThread(c.id); err != nil {
					d.log.Warning().Err(err).Int("cpu", c.id).Log("cpu pin failed")
				}
			}
			c.strand.Run()
		}()
	}
	return nil
}

// Stop requests every context's strand to halt once its runqueue drains,
// then waits for all driver goroutines to exit and closes each context's
// poller. Safe to call once, after Start.
func (d *Domain) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrDomainNotStarted
	}
	d.mu.Unlock()

	d.stopped.Store(true)
	for _, c := range d.contexts {
		c.strand.Stop()
		_ = c.poller.Wake()
	}
	d.wg.Wait()
	d.asyncPool.Close()

	var firstErr error
	for _, c := range d.contexts {
		if err := c.poller.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DomainStats aggregates per-context counters across the whole domain.
type DomainStats struct {
	Contexts []Stats
}

// Stats returns a snapshot of every context's counters.
func (d *Domain) Stats() DomainStats {
	out := DomainStats{Contexts: make([]Stats, len(d.contexts))}
	for i, c := range d.contexts {
		out.Contexts[i] = c.Stats()
	}
	return out
}
