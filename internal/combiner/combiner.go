// Package combiner implements the single-executor serialization primitive
// from spec §4.2: under contention, exactly one thread performs all updates
// while the rest pay only the cost of an enqueue, amortizing the exclusive
// critical section and avoiding the thundering herd of a plain lock.
//
// This is the generalization of the teacher's microbatch.Batcher: a batch
// processor with MaxConcurrency 1 is a combiner whose routine happens to
// operate on a slice of jobs instead of one argument at a time. Here the
// routine is invoked once per argument (spec §4.2 step 2: "call routine(x)
// directly, then drain up to handoff additional entries"), matching the
// spec's "serializes concurrent operations through a single executor"
// contract precisely.
package combiner

import (
	"sync"
	"sync/atomic"

	"github.com/mainmemory/mainmemory-go/internal/ring"
	"github.com/mainmemory/mainmemory-go/internal/waitset"
)

// Routine is applied, one argument at a time, by whichever goroutine holds
// the executor lock.
type Routine[T any] func(arg T)

type request[T any] struct {
	arg  T
	done atomic.Bool
}

// Combiner serializes calls to Routine through a single executor, per spec
// §4.2. The zero value is not usable; construct with New.
type Combiner[T any] struct {
	routine Routine[T]
	handoff int
	pending *ring.MPMC[*request[T]]
	locked  atomic.Bool

	// waitMu guards waiters, per spec §4.7's "shared wait-set": the Set's
	// own LIFO push/broadcast isn't self-synchronizing, it assumes a
	// caller-held lock. Used by the wait=true path of Execute as the
	// condvar-style broadcast complement to the Backoff/CAS-takeover spin
	// loop below, not a replacement for it — see await's doc comment.
	waitMu  sync.Mutex
	waiters *waitset.Set[*request[T]]
}

// New creates a combiner. capacity must be a power of two (rounded up if
// not); handoff must be >= 4 per spec §4.2.
func New[T any](routine Routine[T], capacity, handoff int) *Combiner[T] {
	if handoff < 4 {
		handoff = 4
	}
	return &Combiner[T]{
		routine: routine,
		handoff: handoff,
		pending: ring.NewMPMC[*request[T]](capacity),
		waiters: waitset.NewSet[*request[T]](),
	}
}

// Execute applies the combiner's routine to argument, either directly (if
// this goroutine acquires the executor lock) or by enqueueing it for the
// current holder to drain. If wait is true, Execute does not return until
// the routine has been applied to argument at least once.
func (c *Combiner[T]) Execute(argument T, wait bool) {
	if c.locked.CompareAndSwap(false, true) {
		c.routine(argument)
		c.drain()
		c.locked.Store(false)
		c.wakeWaiters()
		return
	}

	req := &request[T]{arg: argument}
	c.pending.Enqueue(req)

	if !wait {
		return
	}
	c.await(req)
}

// await blocks the calling goroutine (not necessarily a fiber — a
// Combiner is also used from plain goroutines, e.g. Dispatch's detached
// queue) until req is applied. It registers in the shared wait-set so a
// lock holder's wakeWaiters call can end the wait promptly, but keeps the
// original Backoff/CAS-takeover spin as the correctness fallback: the
// wait-set's Broadcast only runs when some goroutine actually holds the
// lock and finishes a drain, so a request enqueued in the narrow window
// after the holder's drain() call returns but before it clears locked
// would otherwise have nobody obligated to wake it.
func (c *Combiner[T]) await(req *request[T]) {
	woken := make(chan struct{}, 1)
	wake := func() {
		select {
		case woken <- struct{}{}:
		default:
		}
	}

	c.waitMu.Lock()
	entry := c.waiters.Wait(req, wake)
	c.waitMu.Unlock()

	var bo ring.Backoff
	for !req.done.Load() {
		select {
		case <-woken:
			if req.done.Load() {
				continue
			}
			c.waitMu.Lock()
			entry = c.waiters.Wait(req, wake)
			c.waitMu.Unlock()
		default:
			bo.Spin()
			// The current holder might release the lock having left req
			// un-drained (e.g. raced past the handoff bound); try to
			// become the holder ourselves so Execute(wait=true) never
			// stalls forever.
			if !req.done.Load() && c.locked.CompareAndSwap(false, true) {
				if !req.done.Load() {
					c.routine(req.arg)
					req.done.Store(true)
				}
				c.drain()
				c.locked.Store(false)
				c.wakeWaiters()
			}
		}
	}

	c.waitMu.Lock()
	c.waiters.Woken(entry)
	c.waitMu.Unlock()
}

// wakeWaiters broadcasts to every goroutine currently parked in await,
// per spec §4.7 "shared wait-set": called once a drain completes, so
// waiters re-check their own request's done flag instead of spinning
// blind until their next Backoff-driven takeover attempt.
func (c *Combiner[T]) wakeWaiters() {
	c.waitMu.Lock()
	woke := c.waiters.Broadcast()
	c.waitMu.Unlock()
	for _, e := range woke {
		waitset.Wake(e)
	}
}

// drain is called only while holding the executor lock: apply up to
// handoff additional pending requests, per spec §4.2 step 2.
func (c *Combiner[T]) drain() {
	for i := 0; i < c.handoff; i++ {
		req, err := c.pending.TryDequeue()
		if err != nil {
			return
		}
		if !req.done.Load() {
			c.routine(req.arg)
			req.done.Store(true)
		}
	}
}

// Pending returns a snapshot count of requests awaiting a drain; for
// metrics only.
func (c *Combiner[T]) Pending() int { return c.pending.Len() }
