//go:build unix

package scheduler

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// pollPoller waits with poll(2). The descriptor set is rebuilt before every
// wait, so every registration change wakes the loop. A non-blocking
// self-pipe is the wake-up channel.
type pollPoller struct {
	mu    sync.Mutex
	fds   map[int]EventType
	rfd   int
	wfd   int
	woken atomic.Bool
	pfds  []unix.PollFd
}

func newPollPoller() (*pollPoller, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}
	return &pollPoller{fds: make(map[int]EventType), rfd: p[0], wfd: p[1]}, nil
}

func toPoll(events EventType) int16 {
	var ev int16
	if events&EventSocketRead != 0 {
		ev |= unix.POLLIN | unix.POLLPRI
	}
	if events&EventSocketWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPoll(ev int16) EventType {
	var events EventType
	if ev&(unix.POLLIN|unix.POLLPRI) != 0 {
		events |= EventSocketRead
	}
	if ev&unix.POLLOUT != 0 {
		events |= EventSocketWrite
	}
	if ev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		events |= EventSocketRead | EventSocketWrite
	}
	return events
}

func (p *pollPoller) add(fd int, events EventType) error {
	p.mu.Lock()
	if _, ok := p.fds[fd]; ok {
		p.mu.Unlock()
		return os.NewSyscallError("poll add", unix.EEXIST)
	}
	p.fds[fd] = events
	p.mu.Unlock()
	return p.wake()
}

func (p *pollPoller) mod(fd int, events EventType) error {
	p.mu.Lock()
	if _, ok := p.fds[fd]; !ok {
		p.mu.Unlock()
		return os.NewSyscallError("poll mod", unix.ENOENT)
	}
	p.fds[fd] = events
	p.mu.Unlock()
	return p.wake()
}

func (p *pollPoller) del(fd int) error {
	p.mu.Lock()
	if _, ok := p.fds[fd]; !ok {
		p.mu.Unlock()
		return os.NewSyscallError("poll del", unix.ENOENT)
	}
	delete(p.fds, fd)
	p.mu.Unlock()
	return p.wake()
}

func (p *pollPoller) wait(timeout time.Duration, fn func(fd int, events EventType)) error {
	p.mu.Lock()
	p.pfds = append(p.pfds[:0], unix.PollFd{Fd: int32(p.rfd), Events: unix.POLLIN})
	for fd, events := range p.fds {
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(fd), Events: toPoll(events)})
	}
	p.mu.Unlock()

	n, err := unix.Poll(p.pfds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return os.NewSyscallError("poll", err)
	}
	if n == 0 {
		return nil
	}

	for _, pfd := range p.pfds {
		if pfd.Revents == 0 {
			continue
		}
		if int(pfd.Fd) == p.rfd {
			p.drain()
			continue
		}
		fn(int(pfd.Fd), fromPoll(pfd.Revents))
	}
	return nil
}

func (p *pollPoller) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.rfd, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	p.woken.Store(false)
}

func (p *pollPoller) wake() error {
	if !p.woken.CompareAndSwap(false, true) {
		return nil
	}
	_, err := unix.Write(p.wfd, []byte{1})
	if err != nil && err != unix.EAGAIN {
		p.woken.Store(false)
		return os.NewSyscallError("pipe write", err)
	}
	return nil
}

func (p *pollPoller) close() error {
	return multierr.Append(
		os.NewSyscallError("close pipe", unix.Close(p.rfd)),
		os.NewSyscallError("close pipe", unix.Close(p.wfd)),
	)
}
