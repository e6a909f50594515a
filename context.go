package mainmemory

import (
	"sync/atomic"

	"github.com/mainmemory/mainmemory-go/internal/arena"
	"github.com/mainmemory/mainmemory-go/internal/asyncio"
	"github.com/mainmemory/mainmemory-go/internal/epoch"
	"github.com/mainmemory/mainmemory-go/internal/fiber"
	"github.com/mainmemory/mainmemory-go/internal/obs"
	"github.com/mainmemory/mainmemory-go/internal/poller"
	"github.com/mainmemory/mainmemory-go/internal/ring"
	"github.com/mainmemory/mainmemory-go/internal/waitset"
)

// asyncCall is one slot of a context's inbox ring, per spec §4.8: "an
// async call is (routine, up-to-N-uintptr arguments)." Argument 0 is
// folded into the routine closure itself rather than a raw function
// pointer plus uintptr payload, since Go closures already capture typed
// state directly — see DESIGN.md.
type asyncCall struct {
	routine func(args [5]uintptr)
	args    [5]uintptr
}

// Context is the per-thread aggregate from spec §2/§3: a strand, an event
// listener's local state (its own poller, to keep the per-context event
// buffer data-race free — see Dispatch's doc comment), an async-call
// inbox, a timer queue (owned by the strand), a private allocator arena,
// and a local epoch slot.
type Context struct {
	id       int
	domain   *Domain
	dispatch *Dispatch

	strand *fiber.Strand
	inbox  *ring.MPMC[asyncCall]
	arena  *arena.Private
	local  *epoch.Local
	poller poller.Poller
	retire *epoch.RetireList[*Sink]
	log    *obs.Logger

	sinks map[int]*Sink // fds owned by this context

	idle atomic.Bool

	directEvents    atomic.Uint64
	forwardedEvents atomic.Uint64
}

func newContext(id int, domain *Domain, cfg DomainConfig) (*Context, error) {
	p, err := poller.New()
	if err != nil {
		// Per spec §7 taxonomy 1, "fatal invariant violation: abort the
		// process; never attempt to continue in a state an invariant
		// already proved cannot happen." A domain's worker count is fixed
		// at construction and every context is assumed pollable; a backend
		// that can't even be created leaves the domain in a state none of
		// its invariants anticipate, so this aborts rather than handing
		// back a half-constructed Domain for a caller to misuse.
		obs.Abort(domain.log, "poller construction failed", func(b *obs.Builder) *obs.Builder {
			return b.Int("context", id).Err(err)
		})
		return nil, err // unreachable: obs.Abort terminates the process
	}
	log := domain.log
	if cloned := domain.log.Clone(); cloned != nil {
		log = cloned.Int("context", id).Logger()
	}
	c := &Context{
		id:       id,
		domain:   domain,
		dispatch: domain.dispatch,
		strand:   fiber.NewStrand(),
		inbox:    ring.NewMPMC[asyncCall](cfg.InboxCapacity),
		arena:    arena.NewPrivate(cfg.ArenaReclaimCapacity),
		local:    domain.dispatch.epoch.NewLocal(),
		poller:   p,
		sinks:    make(map[int]*Sink),
		log:      log,
	}
	// free is a no-op: unlike the C original, a retired *Sink's memory is
	// reclaimed by the Go garbage collector once nothing references it.
	// The retire list's job here is purely the quiescence wait — ensuring
	// no peer listener still holds a stale pointer to an owner-less sink
	// before it is dropped from this context's bookkeeping.
	c.retire = epoch.NewRetireList(c.local, func(*Sink) {})
	c.strand.DrainInbox = c.drainInbox
	c.strand.OnIdle = c.pollOnce
	return c, nil
}

// ID returns the context's index within its domain (also its CPU index
// when the domain was constructed with PinCPU).
func (c *Context) ID() int { return c.id }

// Strand returns the context's fiber scheduler.
func (c *Context) Strand() *fiber.Strand { return c.strand }

// Arena returns the context's private allocator.
func (c *Context) Arena() *arena.Private { return c.arena }

// Spawn creates a fiber on this context's strand, per spec §4.4 "create."
func (c *Context) Spawn(attr fiber.Attr, fn fiber.Func, arg any) *fiber.Fiber {
	return c.strand.Create(attr, fn, arg)
}

// Post enqueues an async call for this context's inbox, per spec §4.8.
// Non-blocking if the inbox has room; otherwise spins with the ring
// package's standard back-off, which yields to another fiber instead of
// the OS thread when called from within one (internal/fiber's init wires
// that hook — see ring.FiberYield). If the target context is currently
// blocked in its poll cycle, wakes it so the call is drained promptly
// instead of waiting for the next I/O event or timer.
func (c *Context) Post(routine func(args [5]uintptr), args [5]uintptr) {
	c.inbox.Enqueue(asyncCall{routine: routine, args: args})
	if c.idle.Load() {
		_ = c.poller.Wake()
	}
}

// TryPost is Post's non-blocking counterpart: it returns ErrInboxFull
// immediately instead of spinning if the inbox ring is momentarily
// saturated. Intended for callers that must never block the calling
// goroutine, notably asyncio helper threads completing a Context.Async
// call — those goroutines aren't fibers and have no strand to yield to,
// so Post's spin-with-backoff would just burn a helper thread on a full
// ring instead of reporting back.
func (c *Context) TryPost(routine func(args [5]uintptr), args [5]uintptr) error {
	if err := c.inbox.TryEnqueue(asyncCall{routine: routine, args: args}); err != nil {
		return ErrInboxFull
	}
	if c.idle.Load() {
		_ = c.poller.Wake()
	}
	return nil
}

// drainInbox processes every async call currently queued, per spec §4.4
// step 3. Wired into Strand.DrainInbox so it runs once per fiber switch.
func (c *Context) drainInbox() {
	for {
		call, err := c.inbox.TryDequeue()
		if err != nil {
			return
		}
		call.routine(call.args)
	}
}

// pollOnce runs one poll cycle, per spec §4.5 "Poll cycle": ticks the
// timer queue, polls the backend with the given timeout, then reclaims
// any arena memory peer contexts have handed back. Wired into
// Strand.OnIdle.
func (c *Context) pollOnce(timeoutMicros int64) {
	c.idle.Store(true)
	if deadline, ok := c.strand.Timers().NextDeadline(); ok && timeoutMicros != 0 {
		if until := deadline - c.strand.NowMicros(); until < timeoutMicros || timeoutMicros < 0 {
			timeoutMicros = until
			if timeoutMicros < 0 {
				timeoutMicros = 0
			}
		}
	}

	_, _ = c.poller.Poll(timeoutMicros)
	c.idle.Store(false)

	c.strand.Timers().Tick(c.strand.NowMicros())
	c.arena.Reclaim()

	if c.retire.Len() > 0 {
		c.retire.Advance()
	}

	c.drainDetached()
}

// drainDetached claims sinks from the shared detached-sink queue and
// rebinds them to this context, per spec §4.5 step 6's companion rule
// ("Sink rebinding": a sink with equal stamps and no fixed-poller flag may
// be reassigned to whichever listener next touches it).
func (c *Context) drainDetached() {
	for _, s := range c.dispatch.drainDetached() {
		if s.flag(FlagFixedPoller) {
			c.dispatch.enqueueDetached(s)
			continue
		}
		s.owner.Store(c)
		c.sinks[s.fd] = s
	}
}

// RegisterFD registers fd for I/O readiness with this context's poller
// and creates its owning sink, per spec §4.5/§6 "Poll backend."
func (c *Context) RegisterFD(fd int, events poller.Events, onInput, onOutput func(poller.Events)) (*Sink, error) {
	if c.domain.stopped.Load() {
		return nil, ErrDomainStopped
	}
	if _, exists := c.sinks[fd]; exists {
		return nil, ErrFDAlreadyRegistered
	}
	sink := NewSink(c, fd, onInput, onOutput)
	cb := func(ev poller.Events) { c.handleReady(sink, ev) }
	if err := c.poller.Register(fd, events, cb); err != nil {
		return nil, err
	}
	c.sinks[fd] = sink
	return sink, nil
}

// ModifyFD changes the monitored event set for an already-registered fd.
func (c *Context) ModifyFD(fd int, events poller.Events) error {
	if _, exists := c.sinks[fd]; !exists {
		return ErrFDNotRegistered
	}
	return c.poller.Modify(fd, events)
}

// UnregisterFD stops monitoring fd and retires its sink for epoch-delayed
// reclamation, per spec §4.6 "retire(local, sink)."
func (c *Context) UnregisterFD(fd int) error {
	sink, exists := c.sinks[fd]
	if !exists {
		return ErrFDNotRegistered
	}
	delete(c.sinks, fd)
	if err := c.poller.Unregister(fd); err != nil {
		return err
	}
	sink.owner.Store(nil)
	if !c.local.Active() {
		c.local.Enter()
	}
	if c.retire.Retire(sink) {
		c.retire.Advance()
	}
	return nil
}

// DetachFD voluntarily releases fd for rebinding to whichever context
// next drains the shared detached-sink queue, per spec §4.5 step 6's
// companion "sink rebinding" rule. Unlike UnregisterFD, the poller
// registration and sink itself survive; only ownership is given up.
// Returns ErrSinkFixed if the sink has the fixed-poller flag set (such a
// sink may only move via an explicit re-ownership, never by drifting to
// whichever context happens to drain the queue next).
func (c *Context) DetachFD(fd int) error {
	sink, exists := c.sinks[fd]
	if !exists {
		return ErrFDNotRegistered
	}
	if sink.flag(FlagFixedPoller) {
		return ErrSinkFixed
	}
	delete(c.sinks, fd)
	sink.owner.Store(nil)
	c.dispatch.enqueueDetached(sink)
	c.log.Debug().Int("fd", fd).Log("fd detached")
	return nil
}

// WaitFD blocks the calling fiber until sink reports readiness for at
// least one of the directions in events, per spec §3's "optional
// input/output blocked-on pointers" and CORE item (ii), the event
// dispatcher that couples kernel readiness to fiber wake-ups. Returns the
// events actually observed.
//
// Must be called from within a fiber running on this context, which must
// also be sink's current owner — the wait is resolved by this same
// context's own poll cycle delivering to the sink (Sink.deliver) while
// this fiber sits blocked, so a cross-context or non-fiber call is a
// misuse rather than a race to guard against at runtime with extra
// locking.
func (c *Context) WaitFD(sink *Sink, events poller.Events) (poller.Events, error) {
	f := fiber.Current()
	if f == nil {
		return 0, ErrNotOnFiber
	}
	if sink.Owner() != c {
		c.log.Warning().Int("fd", sink.fd).Log("WaitFD called on a detached sink")
		return 0, ErrSinkDetached
	}
	if err := c.ModifyFD(sink.fd, events); err != nil {
		return 0, err
	}

	var u waitset.Unique
	if events&(poller.Read|poller.Hangup|poller.Error) != 0 {
		sink.inputWaiter.Store(&u)
		f.SetInputWait(&u)
	}
	if events&poller.Write != 0 {
		sink.outputWaiter.Store(&u)
		f.SetOutputWait(&u)
	}
	clear := func() {
		if events&(poller.Read|poller.Hangup|poller.Error) != 0 {
			sink.inputWaiter.Store(nil)
		}
		if events&poller.Write != 0 {
			sink.outputWaiter.Store(nil)
		}
		f.ClearIOWait()
	}
	token := f.Cleanup(clear)

	u.Wait(func() { c.strand.Run(f) })
	f.Block()

	f.RemoveCleanup(token)
	clear()

	var got poller.Events
	if events&(poller.Read|poller.Hangup|poller.Error) != 0 {
		got |= sink.inputEvents
	}
	if events&poller.Write != 0 {
		got |= sink.outputEvents
	}
	return got, nil
}

// Async runs fn on the domain's shared helper-thread pool and blocks the
// calling fiber until it completes, per spec §4.8's "blocking async
// syscall wrapper": fn performs the genuinely blocking call off any
// context's own driver thread; its stack-resident wait state (the result
// slot and the Unique below) lives on this call's own stack frame, which
// is exactly the calling fiber's goroutine stack.
//
// The helper goroutine never touches that wait state directly — its
// completion callback posts the result onto this context's own inbox (the
// same Post/drainInbox machinery used for every other cross-goroutine
// hand-off), so the result slot and Unique are only ever written by this
// context's own driver goroutine, strictly after the calling fiber has
// already blocked (drainInbox only runs during the boot fiber's turn,
// which this fiber's own Block call is what yields to).
func (c *Context) Async(fn func() (any, error)) (any, error) {
	f := fiber.Current()
	if f == nil {
		return nil, ErrNotOnFiber
	}

	var u waitset.Unique
	var result any
	var callErr error

	c.domain.asyncPool.Submit(asyncio.Job{
		Call: fn,
		Done: func(res any, err error) {
			post := func([5]uintptr) {
				if err != nil {
					c.log.Debug().Err(err).Log("Context.Async call returned an error")
				}
				result, callErr = res, err
				u.Signal()
			}
			var bo ring.Backoff
			for c.TryPost(post, [5]uintptr{}) != nil {
				// The ring being momentarily full is the only case
				// TryPost fails on; this helper goroutine has nothing
				// better to do with the finished result than retry, since
				// it owns no fiber to park instead. ring.FiberYield is
				// never installed here regardless (this isn't a fiber
				// goroutine), so Spin always falls back to
				// runtime.Gosched.
				bo.Spin()
			}
		},
	})

	u.Wait(func() { c.strand.Run(f) })
	f.Block()

	return result, callErr
}

// handleReady is the poller callback for every registered sink: it
// implements spec §4.5 steps 3-5 (locate owner, direct-deliver or
// forward).
func (c *Context) handleReady(sink *Sink, ev poller.Events) {
	owner := sink.Owner()
	switch {
	case owner == c:
		sink.deliver(ev)
		c.directEvents.Add(1)
	case owner == nil:
		c.dispatch.enqueueDetached(sink)
	default:
		owner.forward(sink, ev)
		c.forwardedEvents.Add(1)
	}
}

// forward posts ev's delivery to sink's owning context's inbox, per spec
// §4.5 step 5 "push onto this listener's per-target forward buffer ...
// on poll cycle end, flush ... each target receives a single async-call."
// Simplified here to post directly (the ring already batches cheaply
// under contention; a separate per-target buffer would only save inbox
// slots at the cost of an extra flush step — see DESIGN.md).
func (c *Context) forward(sink *Sink, ev poller.Events) {
	c.log.Debug().Int("fd", sink.fd).Log("forwarding event to fixed owner")
	c.Post(func([5]uintptr) { sink.deliver(ev) }, [5]uintptr{})
}

// Stats reports the externally observable counters from spec §8's
// end-to-end scenarios.
type Stats struct {
	DirectEvents    uint64
	ForwardedEvents uint64
	CSwitchCount    uint64
}

// Stats returns a snapshot of this context's counters.
func (c *Context) Stats() Stats {
	return Stats{
		DirectEvents:    c.directEvents.Load(),
		ForwardedEvents: c.forwardedEvents.Load(),
		CSwitchCount:    c.strand.CSwitchCount(),
	}
}
