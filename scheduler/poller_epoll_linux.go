//go:build linux

package scheduler

import (
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

const (
	epollReadEvents  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	epollWriteEvents = unix.EPOLLOUT
	epollMaxEvents   = 256
)

// epollPoller waits on an epoll instance. An eventfd registered for read
// events is the wake-up channel.
type epollPoller struct {
	epfd   int
	wakefd int
	woken  atomic.Bool
	events [epollMaxEvents]unix.EpollEvent
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}

	err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Fd: int32(efd), Events: unix.EPOLLIN})
	if err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl add", err)
	}

	return &epollPoller{epfd: epfd, wakefd: efd}, nil
}

func toEpoll(events EventType) uint32 {
	var ev uint32
	if events&EventSocketRead != 0 {
		ev |= epollReadEvents
	}
	if events&EventSocketWrite != 0 {
		ev |= epollWriteEvents
	}
	return ev
}

func fromEpoll(ev uint32) EventType {
	var events EventType
	if ev&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		events |= EventSocketRead
	}
	if ev&unix.EPOLLOUT != 0 {
		events |= EventSocketWrite
	}
	// errors and hang-ups surface as readiness so the owner finds out on its next read or write
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		events |= EventSocketRead | EventSocketWrite
	}
	return events
}

func (p *epollPoller) add(fd int, events EventType) error {
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: toEpoll(events)}))
}

func (p *epollPoller) mod(fd int, events EventType) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: toEpoll(events)}))
}

func (p *epollPoller) del(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil))
}

func (p *epollPoller) wait(timeout time.Duration, fn func(fd int, events EventType)) error {
	n, err := unix.EpollWait(p.epfd, p.events[:], timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return os.NewSyscallError("epoll_wait", err)
	}

	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drain()
			continue
		}
		fn(fd, fromEpoll(ev.Events))
	}
	return nil
}

func (p *epollPoller) drain() {
	var buf uint64
	_, _ = unix.Read(p.wakefd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	p.woken.Store(false)
}

// wake writes to the eventfd unless a wake-up is already outstanding.
func (p *epollPoller) wake() error {
	if !p.woken.CompareAndSwap(false, true) {
		return nil
	}
	one := uint64(1)
	_, err := unix.Write(p.wakefd, (*(*[8]byte)(unsafe.Pointer(&one)))[:])
	if err != nil && err != unix.EAGAIN {
		p.woken.Store(false)
		return os.NewSyscallError("eventfd write", err)
	}
	return nil
}

func (p *epollPoller) close() error {
	return multierr.Append(
		os.NewSyscallError("close eventfd", unix.Close(p.wakefd)),
		os.NewSyscallError("close epoll", unix.Close(p.epfd)),
	)
}
