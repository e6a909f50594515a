package fiber

import (
	"sync/atomic"
	"time"

	"github.com/mainmemory/mainmemory-go/internal/waitset"
)

type ctrlAction int

const (
	actionYield ctrlAction = iota
	actionBlock
	actionExit
)

type ctrlMsg struct {
	fiber  *Fiber
	action ctrlAction
}

// Strand owns a runqueue, blocked/dead fiber lists, and drives fiber
// execution; exclusive to its context, per spec §3 "Strand."
type Strand struct {
	runq     runqueue
	blocked  map[*Fiber]struct{}
	deadPool map[int][]*Fiber // stack-size bucket -> reusable *Fiber

	cswitchCount atomic.Uint64
	stop         atomic.Bool

	control chan ctrlMsg
	current atomic.Pointer[Fiber]

	boot *Fiber

	anchor time.Time
	timers waitset.TimerQueue

	// DrainInbox, when set, is invoked once per fiber switch (spec §4.4
	// step 3: "process any queued async calls in the inbox ring"). Wired
	// by the owning context so the fiber package stays free of any
	// dependency on the ring/listener packages.
	DrainInbox func()

	// OnIdle, when set, is invoked by the boot fiber when no other fiber
	// is ready and the inbox is empty; it should perform one blocking
	// poll cycle with the given timeout (microseconds, -1 for infinite)
	// and return once it has run the poll backend, per spec §4.4 "Strand
	// loop."
	OnIdle func(timeoutMicros int64)
}

// NewStrand constructs a strand and its boot fiber, ready to Run.
func NewStrand() *Strand {
	s := &Strand{
		blocked:  make(map[*Fiber]struct{}),
		deadPool: make(map[int][]*Fiber),
		control:  make(chan ctrlMsg),
		anchor:   time.Now(),
	}
	s.boot = s.newFiberLocked(Attr{Priority: PriorityBoot, StackSize: DefaultStackPages * PageSize}, func(any) any {
		for !s.stop.Load() {
			if s.DrainInbox != nil {
				s.DrainInbox()
			}
			hasWork := !s.runq.Empty() // boot itself isn't in runq while running
			timeout := int64(-1)
			if !hasWork {
				timeout = 0
			}
			if s.OnIdle != nil {
				s.OnIdle(timeout)
			}
			s.boot.Yield()
		}
		return nil
	})
	s.runq.Put(s.boot)
	return s
}

// NowMicros returns the strand's monotonic clock reading in microseconds
// since the strand was created, per spec §5 "Timeout semantics: absolute
// deadlines on the monotonic clock with microsecond resolution."
func (s *Strand) NowMicros() int64 {
	return time.Since(s.anchor).Microseconds()
}

// CSwitchCount returns the number of fiber context switches performed so
// far.
func (s *Strand) CSwitchCount() uint64 { return s.cswitchCount.Load() }

// Timers returns the strand's timer queue (spec §4.7), owned exclusively
// by this strand. The owning context's poll cycle calls Tick once per
// wakeup; Fiber.Pause arms and disarms entries in it.
func (s *Strand) Timers() *waitset.TimerQueue { return &s.timers }

// Current returns the fiber currently holding the strand's baton, or nil.
func (s *Strand) Current() *Fiber { return s.current.Load() }

func (s *Strand) newFiberLocked(attr Attr, fn Func) *Fiber {
	attr = attr.normalized()
	if pooled := s.popDead(attr.StackSize); pooled != nil {
		f := pooled
		f.priority = attr.Priority
		f.originalPriority = attr.Priority
		f.startFn = fn
		f.flags.Store(0)
		f.state.Store(int32(StatePending))
		f.result = nil
		f.cleanup = nil
		f.cswitchReturn = make(chan struct{})
		go f.goroutineMain(s)
		return f
	}
	f := &Fiber{
		priority:         attr.Priority,
		originalPriority: attr.Priority,
		stackSize:        attr.StackSize,
		startFn:          fn,
		strand:           s,
		resumeCh:         make(chan struct{}),
		cswitchReturn:    make(chan struct{}),
	}
	f.state.Store(int32(StatePending))
	go f.goroutineMain(s)
	return f
}

func (s *Strand) popDead(stackSize int) *Fiber {
	bucket := s.deadPool[stackSize]
	if len(bucket) == 0 {
		return nil
	}
	f := bucket[len(bucket)-1]
	s.deadPool[stackSize] = bucket[:len(bucket)-1]
	return f
}

func (s *Strand) pushDead(f *Fiber) {
	s.deadPool[f.stackSize] = append(s.deadPool[f.stackSize], f)
}

// Create allocates or reuses a fiber (per spec §4.4 "create"), places it
// directly in the runqueue as ready.
func (s *Strand) Create(attr Attr, fn Func, arg any) *Fiber {
	f := s.newFiberLocked(attr, fn)
	f.arg = arg
	s.runq.Put(f)
	return f
}

// Run moves a blocked fiber to the runqueue at its own priority, per spec
// §4.4 "run(fiber): if blocked, move to runqueue at its own priority."
func (s *Strand) Run(f *Fiber) {
	if f.State() != StateBlocked {
		return
	}
	delete(s.blocked, f)
	f.priority = f.originalPriority
	s.runq.Put(f)
}

// Hoist is like Run, but temporarily raises f's priority to p if p is
// higher (numerically lower) than its current priority; the original
// priority is restored on f's next context switch, per spec §4.4
// "hoist(fiber, p)."
func (s *Strand) Hoist(f *Fiber, p Priority) {
	wasBlocked := f.State() == StateBlocked
	wasReady := !wasBlocked && s.runq.Delete(f)
	if p < f.priority {
		f.priority = p
	}
	if wasBlocked {
		delete(s.blocked, f)
	}
	if wasBlocked || wasReady {
		s.runq.Put(f)
	}
}

// Cancel sets cancel-required on f; if f is blocked, it is moved to the
// runqueue so it observes the flag at its next cancellation point, per
// spec §4.4 "cancel(fiber)."
func (s *Strand) Cancel(f *Fiber) {
	f.flags.Or(uint32(FlagCancelRequired))
	if f.State() == StateBlocked {
		s.Run(f)
	}
}

// switchLoop is the strand's driver goroutine: the core fiber switch
// algorithm from spec §4.4, steps 1-6, repeated forever.
func (s *Strand) switchLoop() {
	for {
		if s.runq.Empty() {
			return
		}
		f := s.runq.Get()
		s.current.Store(f)
		f.state.Store(int32(StateRunning))
		f.resumeCh <- struct{}{}
		msg := <-s.control
		s.cswitchCount.Add(1)
		s.current.Store(nil)

		switch msg.action {
		case actionYield:
			// A fiber hoisted while merely ready (Hoist's wasReady branch)
			// never passes through Run, the only other place priority is
			// restored — so a hoist followed by nothing but Yield calls
			// would otherwise run at the hoisted priority forever. Spec
			// §4.4: "original priority is restored on its next context
			// switch," and a switch out via Yield counts same as one via
			// Block.
			msg.fiber.priority = msg.fiber.originalPriority
			msg.fiber.state.Store(int32(StatePending))
			s.runq.Put(msg.fiber)
		case actionBlock:
			msg.fiber.priority = msg.fiber.originalPriority
			msg.fiber.state.Store(int32(StateBlocked))
			s.blocked[msg.fiber] = struct{}{}
		case actionExit:
			msg.fiber.state.Store(int32(StateInvalid))
			<-msg.fiber.cswitchReturn
			s.pushDead(msg.fiber)
		}
	}
}

// Run starts the strand's driver loop on the calling goroutine; it
// returns once Stop has been called and no fiber remains ready.
func (s *Strand) Run() { s.switchLoop() }

// Stop requests the strand to halt once the runqueue drains, per spec §3
// "stop flag."
func (s *Strand) Stop() { s.stop.Store(true) }

// goroutineMain is the body every fiber's dedicated goroutine executes.
func (f *Fiber) goroutineMain(s *Strand) {
	currentFibers.Store(goroutineID(), f)
	defer currentFibers.Delete(goroutineID())
	defer close(f.cswitchReturn)

	<-f.resumeCh

	func() {
		defer func() {
			if r := recover(); r != nil {
				switch sig := r.(type) {
				case cancelSignal:
					f.result = Canceled
				case exitSignal:
					f.result = sig.value
				default:
					panic(r)
				}
			}
			f.runCleanups()
		}()
		f.result = f.startFn(f.arg)
	}()

	s.control <- ctrlMsg{fiber: f, action: actionExit}
}

// suspend is the shared machinery behind Yield/Block/Pause/Wait: test for
// cancellation, hand the baton back to the strand with the given action,
// block until rescheduled, then test for cancellation again (spec §4.4
// cancellation points apply both going in and coming out of a wait).
func (f *Fiber) suspend(s *Strand, action ctrlAction) {
	f.testCancel()
	s.control <- ctrlMsg{fiber: f, action: action}
	<-f.resumeCh
	f.testCancel()
}

// Yield puts the current fiber back on the runqueue and switches to the
// next ready fiber, per spec §4.4 "yield(): puts the current fiber back
// on the runqueue." Must be called from within the fiber's own goroutine.
func (f *Fiber) Yield() { f.suspend(f.strand, actionYield) }

// Block puts the current fiber on the blocked list and switches to the
// next ready fiber, per spec §4.4 "block(): puts the current fiber on
// the blocked list." Must be called from within the fiber's own
// goroutine; some other fiber or callback must eventually call
// Strand.Run(f) or Strand.Cancel(f) to make it ready again.
func (f *Fiber) Block() { f.suspend(f.strand, actionBlock) }

// Pause arms a timer on the strand's timer queue that will run the
// current fiber at deadlineMicros (absolute, per Strand.NowMicros), then
// blocks; on wake, disarms the timer if it hasn't already fired, per spec
// §4.4 "pause(timeout): arm a timer ... cleanup handler guarantees
// disarming on cancellation." Must be called from within the fiber's own
// goroutine.
func (f *Fiber) Pause(deadlineMicros int64) {
	s := f.strand
	timer := waitset.NewTimer(func() { s.Run(f) })
	s.timers.Arm(timer, deadlineMicros)
	token := f.Cleanup(func() { s.timers.Disarm(timer) })
	f.Block()
	// A normal (non-canceled) wake reaches here; a canceled wake instead
	// unwinds via panic(cancelSignal{}) straight out of Block, leaving
	// token registered so goroutineMain's cleanup pass disarms it.
	f.removeCleanup(token)
	s.timers.Disarm(timer)
}

// Exit runs all cleanup handlers (LIFO) then terminates the fiber with
// the given result, per spec §4.4 "exit(value)." Must be called from
// within the fiber's own goroutine; does not return. Ordinary fibers
// usually don't need to call this explicitly — returning a value from
// the start routine passed to Strand.Create has the same effect, since
// that return value becomes Fiber.Result.
func (f *Fiber) Exit(value any) {
	panic(exitSignal{value: value})
}

type exitSignal struct{ value any }
