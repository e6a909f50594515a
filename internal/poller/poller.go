// Package poller adapts the host's native readiness-notification facility
// to the fixed shape spec §4.5 needs: register/modify/unregister a file
// descriptor for a read/write interest set, and poll once with an absolute
// microsecond timeout, dispatching every ready descriptor's callback
// before returning.
//
// Grounded in the teacher's eventloop.FastPoller (poller_linux.go /
// poller_darwin.go): a direct-indexed fd table guarded by an RWMutex,
// syscalls via golang.org/x/sys/unix, callbacks copied out under the read
// lock and invoked outside it. Three backends exist, selected by build
// tag: poller_linux.go (epoll + eventfd), poller_darwin.go (kqueue +
// EVFILT_USER), poller_other.go (a pipe-based self-pipe fallback for
// every other unix the teacher's x/sys/unix dependency already covers).
package poller

import "errors"

// Events is a bitmask of the fd-readiness conditions from spec §4.5.
type Events uint32

const (
	Read Events = 1 << iota
	Write
	Error
	Hangup
)

// Callback is invoked, inline, from within Poll, with the events that
// fired for the fd it was registered against.
type Callback func(Events)

var (
	ErrFDOutOfRange    = errors.New("poller: fd out of range")
	ErrFDRegistered    = errors.New("poller: fd already registered")
	ErrFDNotRegistered = errors.New("poller: fd not registered")
)

// maxFDs bounds the direct-indexed fd table, matching the teacher's
// FastPoller (65536: "max fd out of range" on linux).
const maxFDs = 65536

// Poller is the platform-native readiness backend, per spec §4.5 "poll
// backend." One instance belongs to exactly one context/listener; it is
// not safe for concurrent Register/Modify/Unregister/Poll calls, except
// for Wake, which is the one method other goroutines may call
// concurrently with a blocked Poll.
type Poller interface {
	// Register begins monitoring fd for events, invoking cb on readiness.
	Register(fd int, events Events, cb Callback) error
	// Modify changes the monitored event set for an already-registered fd.
	Modify(fd int, events Events) error
	// Unregister stops monitoring fd.
	Unregister(fd int) error
	// Poll blocks for at most timeoutMicros microseconds (-1: indefinite,
	// 0: non-blocking) waiting for at least one ready fd, then dispatches
	// every ready fd's callback and returns the count dispatched.
	Poll(timeoutMicros int64) (int, error)
	// Wake interrupts a concurrent or future Poll call, per spec §4.5
	// "Notification: a listener whose poll call is blocked can be woken
	// from another thread via the self-pipe trick."
	Wake() error
	// Close releases the backend's OS resources.
	Close() error
}

// New constructs the platform-appropriate Poller.
func New() (Poller, error) { return newPlatformPoller() }
