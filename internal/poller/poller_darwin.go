//go:build darwin

package poller

import "golang.org/x/sys/unix"

const wakeIdent = 1

// darwinPoller is the kqueue-backed implementation, grounded in the
// teacher's FastPoller (poller_darwin.go): kqueue + kevent via
// golang.org/x/sys/unix, with a native EVFILT_USER wake event instead of
// a self-pipe (spec §6.2: "no self-pipe needed" on this platform).
type darwinPoller struct {
	kq       int
	table    *fdTable
	eventBuf [256]unix.Kevent_t
}

func newPlatformPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	p := &darwinPoller{kq: kq, table: newFDTable()}
	reg := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{reg}, nil, nil); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	return p, nil
}

func (p *darwinPoller) Register(fd int, events Events, cb Callback) error {
	if err := p.table.insert(fd, events, cb); err != nil {
		return err
	}
	changes := toKevents(fd, events, unix.EV_ADD|unix.EV_CLEAR)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			_ = p.table.remove(fd)
			return err
		}
	}
	return nil
}

func (p *darwinPoller) Modify(fd int, events Events) error {
	if err := p.table.update(fd, events); err != nil {
		return err
	}
	disable := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(p.kq, disable, nil, nil) // best effort: a filter not currently armed errors harmlessly
	changes := toKevents(fd, events, unix.EV_ADD|unix.EV_CLEAR)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *darwinPoller) Unregister(fd int) error {
	if err := p.table.remove(fd); err != nil {
		return err
	}
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *darwinPoller) Poll(timeoutMicros int64) (int, error) {
	var ts *unix.Timespec
	if timeoutMicros >= 0 {
		t := unix.NsecToTimespec(timeoutMicros * 1000)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	dispatched := 0
	for i := 0; i < n; i++ {
		kev := p.eventBuf[i]
		if kev.Filter == unix.EVFILT_USER {
			continue // Wake: unblocks kevent, nothing to dispatch.
		}
		p.table.dispatch(int(kev.Ident), fromKevent(kev))
		dispatched++
	}
	return dispatched, nil
}

func (p *darwinPoller) Wake() error {
	trigger := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Fflags: unix.NOTE_TRIGGER}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{trigger}, nil, nil)
	return err
}

func (p *darwinPoller) Close() error { return unix.Close(p.kq) }

func toKevents(fd int, events Events, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&Read != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&Write != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func fromKevent(kev unix.Kevent_t) Events {
	var e Events
	switch kev.Filter {
	case unix.EVFILT_READ:
		e |= Read
	case unix.EVFILT_WRITE:
		e |= Write
	}
	if kev.Flags&unix.EV_EOF != 0 {
		e |= Hangup
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		e |= Error
	}
	return e
}
