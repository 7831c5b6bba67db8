package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// poller is the readiness primitive under a loop: socket registration, a
// blocking wait with timeout, and a wake-up that forces the wait to return
// from any goroutine. The wake-up descriptor is consumed inside wait and is
// never reported to fn.
type poller interface {
	add(fd int, events EventType) error
	mod(fd int, events EventType) error
	del(fd int) error
	wait(timeout time.Duration, fn func(fd int, events EventType)) error
	wake() error
	close() error
}

// Backend selects the poller implementation of the loops.
type Backend int

const (
	BackendAuto Backend = iota
	BackendEpoll
	BackendPoll
)

func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendEpoll:
		return "epoll"
	case BackendPoll:
		return "poll"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return BackendAuto, nil
	case "epoll":
		return BackendEpoll, nil
	case "poll":
		return BackendPoll, nil
	}
	return BackendAuto, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// timeoutMillis rounds d up so a wait never returns before a timer is due.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
