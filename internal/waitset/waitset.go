// Package waitset implements the two wait-set flavors from spec §4.7 plus
// the timer-queue primitive: Set, a LIFO of blocked-waiter descriptors
// guarded by a caller-provided lock, for events more than one waiter may
// block on at once; Unique, a lock-free one-shot semaphore for events that
// by construction never have more than one waiter at a time; and
// TimerQueue, a time-ordered priority queue of deadlines.
//
// Both wait-sets are generic over (or free of any dependency on) the
// waiter type so the package carries no dependency on the fiber package;
// internal/fiber instantiates Set[*fiber.Fiber] and supplies the wake
// callback that actually reschedules a fiber, and callers of Unique do
// the same with a plain func().
package waitset

import "sync"

// Entry is a single waiter record, drawn from a per-set free-list cache
// of at most entryCacheSize, per spec §3 "Wait entry": "drawn from a
// per-strand cache of at most 256 free entries plus an unbounded pending
// list; entries whose owning fiber has already moved on are returned to
// the cache."
type Entry[F comparable] struct {
	fiber F
	wake  func()
	next  *Entry[F]
}

const entryCacheSize = 256

// Set is a shared wait-set: a LIFO stack of wait entries guarded by a
// caller-provided lock, per spec §4.7 "Shared wait-set."
type Set[F comparable] struct {
	mu    sync.Mutex // guards cache only; the LIFO itself is guarded by the caller's lock
	cache []*Entry[F]
	head  *Entry[F]
}

// NewSet constructs an empty wait-set.
func NewSet[F comparable]() *Set[F] {
	return &Set[F]{}
}

func (s *Set[F]) alloc(fiber F, wake func()) *Entry[F] {
	s.mu.Lock()
	n := len(s.cache)
	if n > 0 {
		e := s.cache[n-1]
		s.cache = s.cache[:n-1]
		s.mu.Unlock()
		e.fiber = fiber
		e.wake = wake
		e.next = nil
		return e
	}
	s.mu.Unlock()
	return &Entry[F]{fiber: fiber, wake: wake}
}

func (s *Set[F]) release(e *Entry[F]) {
	var zero F
	e.fiber = zero
	e.wake = nil
	e.next = nil
	s.mu.Lock()
	if len(s.cache) < entryCacheSize {
		s.cache = append(s.cache, e)
	}
	s.mu.Unlock()
}

// Wait allocates an entry for fiber, pushes it onto the set's LIFO
// (assumed already guarded by the caller's lock), and returns it. The
// caller is expected to release its lock and block fiber immediately
// after this call returns, per spec §4.7:
//
//	wait(set, lock): allocate entry, push onto set, release lock, block
//	current fiber; on wake, mark entry's fiber pointer null.
func (s *Set[F]) Wait(fiber F, wake func()) *Entry[F] {
	e := s.alloc(fiber, wake)
	e.next = s.head
	s.head = e
	return e
}

// Woken clears an entry's fiber pointer once its waiter has resumed,
// allowing the entry to be recycled lazily the next time the set is
// touched. Must be called by the waiter after it wakes.
func (s *Set[F]) Woken(e *Entry[F]) {
	s.release(e)
}

// Broadcast moves the entire LIFO into a local list (under the caller's
// lock), then — after the caller releases that lock — the caller should
// invoke the returned slice's wake callbacks. Entries whose fiber is the
// zero value are recycled immediately and omitted from the result, per
// spec §4.7: "entries with null pointers are recycled."
func (s *Set[F]) Broadcast() []*Entry[F] {
	head := s.head
	s.head = nil

	var woke []*Entry[F]
	for e := head; e != nil; {
		next := e.next
		var zero F
		if e.fiber == zero {
			s.release(e)
		} else {
			woke = append(woke, e)
		}
		e = next
	}
	return woke
}

// Wake invokes the entry's registered wake callback. Callers should call
// this once per entry returned by Broadcast, outside of any lock.
func Wake[F comparable](e *Entry[F]) {
	if e.wake != nil {
		e.wake()
	}
}
