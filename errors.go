package mainmemory

import "errors"

// Sentinel errors returned across package boundaries, checked with
// errors.Is, per spec §6.1 "Error handling" and the teacher's
// eventloop.ErrLoopAlreadyRunning pattern.
var (
	ErrDomainAlreadyStarted = errors.New("mainmemory: domain already started")
	ErrDomainNotStarted     = errors.New("mainmemory: domain not started")
	ErrDomainStopped        = errors.New("mainmemory: domain stopped")
	ErrFDAlreadyRegistered  = errors.New("mainmemory: fd already registered")
	ErrFDNotRegistered      = errors.New("mainmemory: fd not registered")
	ErrSinkDetached         = errors.New("mainmemory: sink is detached")
	ErrSinkFixed            = errors.New("mainmemory: sink has the fixed-poller flag set")
	ErrInboxFull            = errors.New("mainmemory: inbox ring full")
	ErrNotOnFiber           = errors.New("mainmemory: called from outside a fiber")
)
