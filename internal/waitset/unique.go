package waitset

import "sync/atomic"

// signaled is a sentinel *func() value, distinct from the address of any
// real callback, used to mark "Signal has fired, no waiter registered
// yet" in Unique.state.
var signaled = new(func())

// Unique is the "unique" wait-set flavor from spec §3/§4.7: a single
// waiter slot plus a one-shot signal flag — "the standard one-shot
// semaphore without a lock" — for events that by construction never have
// more than one fiber blocked on them at once (one fiber waiting on one
// sink direction, one fiber waiting on one async-syscall result). Set
// exists for the general multi-waiter case; Unique skips its cache and
// LIFO bookkeeping entirely.
//
// The zero value is ready to use. A Unique is single-shot: once Signal
// has been consumed by a matching Wait, it reverts to empty and may be
// reused for the next wait/signal pair (the sink and async-call call
// sites below both do this).
//
// state holds one of three values: nil (idle), signaled (Signal fired
// before any waiter registered), or the address of a registered wake
// callback (a waiter is registered, not yet signaled). Every transition
// goes through a CompareAndSwap, so exactly one of a racing Wait/Signal
// pair observes the other's write and is responsible for invoking the
// callback — the CAS plays the role of the spec's separate store/load
// fence pair, collapsed into a single atomic op.
type Unique struct {
	state atomic.Pointer[func()]
}

// Wait registers wake to run once Signal is called. If Signal already
// ran (or wins the race), wake runs inline instead of being stored, so a
// signal that arrives before Wait is never lost. Must only be called by
// the single fiber expected to wait on this Unique at a time.
func (u *Unique) Wait(wake func()) {
	for {
		cur := u.state.Load()
		if cur == signaled {
			if u.state.CompareAndSwap(cur, nil) {
				wake()
				return
			}
			continue
		}
		if u.state.CompareAndSwap(nil, &wake) {
			return
		}
	}
}

// Signal fires the registered waiter's callback, or, if none is
// registered yet, leaves a mark for the next Wait to observe and fire
// inline. A Signal with no corresponding Wait pending or yet to arrive
// is a no-op past the first one (the one-shot flag only needs to survive
// until the next Wait consumes it).
func (u *Unique) Signal() {
	for {
		cur := u.state.Load()
		if cur == nil {
			if u.state.CompareAndSwap(nil, signaled) {
				return
			}
			continue
		}
		if cur == signaled {
			return
		}
		if u.state.CompareAndSwap(cur, nil) {
			(*cur)()
			return
		}
	}
}

// Signaled reports whether Signal has fired with no Wait yet registered
// to consume it. Racy by construction; intended for diagnostics/tests.
func (u *Unique) Signaled() bool { return u.state.Load() == signaled }
