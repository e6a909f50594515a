//go:build linux

package poller

import "golang.org/x/sys/unix"

// linuxPoller is the epoll-backed implementation, grounded in the
// teacher's FastPoller (poller_linux.go): epoll_create1 + epoll_ctl +
// epoll_wait via golang.org/x/sys/unix, plus an eventfd-backed wake
// channel (wakeup_linux.go's createWakeFd).
type linuxPoller struct {
	epfd     int
	wakeFd   int
	table    *fdTable
	eventBuf [256]unix.EpollEvent
}

func newPlatformPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &linuxPoller{epfd: epfd, wakeFd: wakeFd, table: newFDTable()}
	wakeEv := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, wakeEv); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, err
	}
	return p, nil
}

func (p *linuxPoller) Register(fd int, events Events, cb Callback) error {
	if err := p.table.insert(fd, events, cb); err != nil {
		return err
	}
	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		_ = p.table.remove(fd)
		return err
	}
	return nil
}

func (p *linuxPoller) Modify(fd int, events Events) error {
	if err := p.table.update(fd, events); err != nil {
		return err
	}
	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *linuxPoller) Unregister(fd int) error {
	if err := p.table.remove(fd); err != nil {
		return err
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *linuxPoller) Poll(timeoutMicros int64) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], microsToMillis(timeoutMicros))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeFd {
			p.drainWake()
			continue
		}
		p.table.dispatch(fd, fromEpoll(p.eventBuf[i].Events))
		dispatched++
	}
	return dispatched, nil
}

func (p *linuxPoller) Wake() error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(p.wakeFd, buf[:])
	return err
}

func (p *linuxPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *linuxPoller) Close() error {
	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}

func toEpoll(e Events) uint32 {
	var v uint32
	if e&Read != 0 {
		v |= unix.EPOLLIN
	}
	if e&Write != 0 {
		v |= unix.EPOLLOUT
	}
	return v
}

func fromEpoll(v uint32) Events {
	var e Events
	if v&unix.EPOLLIN != 0 {
		e |= Read
	}
	if v&unix.EPOLLOUT != 0 {
		e |= Write
	}
	if v&unix.EPOLLERR != 0 {
		e |= Error
	}
	if v&unix.EPOLLHUP != 0 {
		e |= Hangup
	}
	return e
}

// microsToMillis converts an absolute microsecond timeout to the
// millisecond granularity epoll_wait expects, rounding up so a small
// positive timeout never collapses to a non-blocking 0.
func microsToMillis(us int64) int {
	if us < 0 {
		return -1
	}
	ms := us / 1000
	if us%1000 != 0 {
		ms++
	}
	const maxInt = int64(^uint(0) >> 1)
	if ms > maxInt {
		ms = maxInt
	}
	return int(ms)
}
