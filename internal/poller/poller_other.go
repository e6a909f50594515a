//go:build !linux && !darwin

package poller

import "golang.org/x/sys/unix"

// genericPoller is the self-pipe fallback for platforms without a native
// user-event filter (spec §6.2 "Generic/self-pipe fallback"): Wake writes
// a byte to a pipe whose read end sits in every select() set, unblocking
// Poll the same way epoll's eventfd does on Linux.
type genericPoller struct {
	table      *fdTable
	registered map[int]struct{}
	wakeR      int
	wakeW      int
}

func newPlatformPoller() (Poller, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, err
	}
	return &genericPoller{
		table:      newFDTable(),
		registered: make(map[int]struct{}),
		wakeR:      fds[0],
		wakeW:      fds[1],
	}, nil
}

func (p *genericPoller) Register(fd int, events Events, cb Callback) error {
	if err := p.table.insert(fd, events, cb); err != nil {
		return err
	}
	p.registered[fd] = struct{}{}
	return nil
}

func (p *genericPoller) Modify(fd int, events Events) error {
	return p.table.update(fd, events)
}

func (p *genericPoller) Unregister(fd int) error {
	delete(p.registered, fd)
	return p.table.remove(fd)
}

func (p *genericPoller) Poll(timeoutMicros int64) (int, error) {
	var r, w unix.FdSet
	r.Set(p.wakeR)
	nfd := p.wakeR

	for fd := range p.registered {
		slot := p.table.snapshot(fd)
		if !slot.active {
			continue
		}
		if slot.events&Read != 0 {
			r.Set(fd)
		}
		if slot.events&Write != 0 {
			w.Set(fd)
		}
		if fd > nfd {
			nfd = fd
		}
	}

	var tv *unix.Timeval
	if timeoutMicros >= 0 {
		t := unix.NsecToTimeval(timeoutMicros * 1000)
		tv = &t
	}
	n, err := unix.Select(nfd+1, &r, &w, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if r.IsSet(p.wakeR) {
		p.drainWake()
	}
	dispatched := 0
	for fd := range p.registered {
		var ev Events
		if r.IsSet(fd) {
			ev |= Read
		}
		if w.IsSet(fd) {
			ev |= Write
		}
		if ev != 0 {
			p.table.dispatch(fd, ev)
			dispatched++
		}
	}
	return dispatched, nil
}

func (p *genericPoller) Wake() error {
	_, err := unix.Write(p.wakeW, []byte{1})
	return err
}

func (p *genericPoller) drainWake() {
	var buf [64]byte
	for {
		if _, err := unix.Read(p.wakeR, buf[:]); err != nil {
			return
		}
	}
}

func (p *genericPoller) Close() error {
	_ = unix.Close(p.wakeR)
	return unix.Close(p.wakeW)
}
