package fiber

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mainmemory/mainmemory-go/internal/waitset"
)

// State is one of the fiber lifecycle states from spec §3.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateBlocked
	StateInvalid
)

// Flags is a bitmask of the fiber flags from spec §3.
type Flags uint32

const (
	FlagCancelDisabled Flags = 1 << iota
	FlagCancelRequired
	FlagCancelOccurred
	FlagWaiting
	FlagBroken
)

// Priority ranges from 0 (highest) to 31 (boot); Worker is the default
// medium priority used for ordinary application fibers, per spec §3.
type Priority uint8

const (
	PriorityHighest Priority = 0
	PriorityWorker  Priority = 16
	PriorityBoot    Priority = 31
)

// Canceled is the sentinel result value of a fiber that exited via
// cancellation, per spec §4.4 "cancel(fiber): ... exits the fiber with a
// sentinel 'canceled' result."
var Canceled = &struct{ canceled bool }{true}

// Func is a fiber's start routine.
type Func func(arg any) any

// Attr configures fiber creation. StackSize is used only as the pool
// bucket key for dead-fiber reuse (spec §3 "destroyed only when ... the
// strand is stopping ... recycles dead fibers with identical stack
// size"); Go goroutines manage their own growable stacks, so no actual
// memory mapping happens here — see DESIGN.md.
type Attr struct {
	Priority  Priority
	StackSize int // rounded up to PageSize, minimum PageSize
}

// PageSize mirrors spec §4.3's page-size rounding unit for stack sizing.
const PageSize = 4096

// DefaultStackPages is spec §4.3's "configurable default (seven pages)."
const DefaultStackPages = 7

func (a Attr) normalized() Attr {
	if a.Priority == 0 && a.StackSize == 0 {
		a = Attr{Priority: PriorityWorker, StackSize: DefaultStackPages * PageSize}
		return a
	}
	if a.StackSize < PageSize {
		a.StackSize = PageSize
	} else {
		a.StackSize = ((a.StackSize + PageSize - 1) / PageSize) * PageSize
	}
	return a
}

type cleanupFrame struct {
	fn   func()
	next *cleanupFrame
}

// Fiber is a stackful user-space thread scheduled cooperatively by a
// Strand, per spec §3 "Fiber."
type Fiber struct {
	state atomic.Int32
	flags atomic.Uint32

	priority         Priority
	originalPriority Priority
	stackSize        int

	startFn Func
	arg     any
	result  any

	cleanup *cleanupFrame

	strand *Strand

	resumeCh chan struct{}

	rqNext *Fiber // intrusive runqueue link, owned exclusively by the strand

	cswitchReturn chan struct{} // closed once this fiber's goroutine has fully exited

	// inputWait/outputWait are the "optional input/output blocked-on
	// pointers" from spec §3: set by Context.WaitFD while this fiber is
	// parked waiting for a sink's read/write interest to fire, so a
	// cancellation's cleanup handler can find and clear the matching
	// registration on the sink side without the fiber package knowing
	// anything about sinks or pollers.
	inputWait, outputWait *waitset.Unique
}

// SetInputWait/SetOutputWait record which Unique this fiber is currently
// registered against for input/output readiness. ClearIOWait clears both.
// Must only be called from within the fiber's own goroutine.
func (f *Fiber) SetInputWait(u *waitset.Unique)  { f.inputWait = u }
func (f *Fiber) SetOutputWait(u *waitset.Unique) { f.outputWait = u }

// InputWait/OutputWait return the Unique most recently set by
// SetInputWait/SetOutputWait, or nil if none is currently registered.
func (f *Fiber) InputWait() *waitset.Unique  { return f.inputWait }
func (f *Fiber) OutputWait() *waitset.Unique { return f.outputWait }

// ClearIOWait clears both blocked-on pointers, e.g. once a WaitFD call
// has resolved or been cancelled.
func (f *Fiber) ClearIOWait() {
	f.inputWait = nil
	f.outputWait = nil
}

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// Priority returns the fiber's current (possibly hoisted) priority.
func (f *Fiber) Priority() Priority { return f.priority }

// Result returns the fiber's return value; valid only once State() ==
// StateInvalid.
func (f *Fiber) Result() any { return f.result }

// Cleanup registers fn to run, LIFO, when the fiber exits (normally or via
// cancellation), per spec §4.4 "exit(value): run all cleanup handlers
// (LIFO)" and §9's defer-style re-expression of the cleanup-handler stack.
// Must be called from within the fiber's own goroutine. The returned
// token may be passed to removeCleanup to cancel the registration early
// (used by Pause to disarm its timer without waiting for fiber exit).
func (f *Fiber) Cleanup(fn func()) *cleanupFrame {
	cf := &cleanupFrame{fn: fn, next: f.cleanup}
	f.cleanup = cf
	return cf
}

// removeCleanup splices token out of the cleanup stack if it is still
// the top frame (the only case that arises in practice: a fiber never
// runs further user code between pushing and popping a Pause timer's
// disarm callback).
func (f *Fiber) removeCleanup(token *cleanupFrame) {
	if f.cleanup == token {
		f.cleanup = token.next
	}
}

// RemoveCleanup is removeCleanup exported for callers outside the package
// (e.g. Context.WaitFD disarming its own readiness-wait cleanup once the
// fiber resumes normally, mirroring Pause's own use of the unexported form).
func (f *Fiber) RemoveCleanup(token *cleanupFrame) { f.removeCleanup(token) }

func (f *Fiber) runCleanups() {
	for c := f.cleanup; c != nil; c = c.next {
		c.fn()
	}
	f.cleanup = nil
}

// CancelState toggles the cancel-disabled flag for the current fiber
// (spec §4.4 "cancel_state(enable|disable)"). Must be called from within
// the fiber's own goroutine.
func (f *Fiber) CancelState(enable bool) {
	for {
		old := f.flags.Load()
		var next uint32
		if enable {
			next = old &^ uint32(FlagCancelDisabled)
		} else {
			next = old | uint32(FlagCancelDisabled)
		}
		if f.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// cancelSignal unwinds a fiber's goroutine stack when it reaches a
// cancellation point with cancel-required set and cancel-disabled clear.
// Caught only by the fiber's own goroutine wrapper (fiberMain).
type cancelSignal struct{}

// testCancel implements spec §4.4's cancellation points: "a cancellation
// point whose fiber has cancel-required set and does not have
// cancel-disabled set exits the fiber with a sentinel canceled result."
func (f *Fiber) testCancel() {
	flags := Flags(f.flags.Load())
	if flags&FlagCancelRequired != 0 && flags&FlagCancelDisabled == 0 {
		f.flags.Or(uint32(FlagCancelOccurred))
		panic(cancelSignal{})
	}
}

// TestCancel is the explicit cancellation point from spec §4.4
// ("testcancel"). Must be called from within the fiber's own goroutine.
func (f *Fiber) TestCancel() { f.testCancel() }

// currentFibers is the thread-local backstop from spec §9 ("Global
// thread-local context pointer ... keep a single thread-local for the
// backstop lookup used only by the cancellation-aware blocking
// wrappers"), re-expressed as a goroutine-ID-keyed registry since Go has
// no real thread-local storage. Populated for the lifetime of each
// fiber's dedicated goroutine.
var currentFibers sync.Map // map[uint64]*Fiber

// Current returns the Fiber running on the calling goroutine, or nil if
// the calling goroutine is not a fiber (e.g. it is a strand's driver
// goroutine, or an ordinary goroutine outside the runtime).
func Current() *Fiber {
	v, ok := currentFibers.Load(goroutineID())
	if !ok {
		return nil
	}
	return v.(*Fiber)
}

// goroutineID extracts the calling goroutine's numeric ID by parsing the
// "goroutine N [...]" header of runtime.Stack's output — the same
// technique the teacher's event loop uses (eventloop.getGoroutineID) to
// identify its own driver goroutine without a language-level thread-local.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
