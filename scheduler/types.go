// Package scheduler multiplexes sockets, timers, periodic ticks, signals and
// cross-thread notifications over a fixed pool of event loops. Every loop is
// driven by its own OS thread; interest is registered by handing a Task to
// one of the Install* methods, which returns an EventToken naming the
// registration until it is uninstalled.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// EventLoop names one of the loops owned by a Scheduler. Loop 0 is the main loop.
type EventLoop int

// EventToken identifies one live watcher. The zero token is never handed out.
type EventToken uint64

// EventType is a bitmask describing the kind of a watcher or the readiness
// reported to a Task.
type EventType uint32

const (
	EventAsync EventType = 1 << iota
	EventSocketRead
	EventSocketWrite
	EventPeriodic
	EventSignal
	EventTimer
)

const eventSocket = EventSocketRead | EventSocketWrite

var eventNames = []struct {
	t    EventType
	name string
}{
	{EventAsync, "async"},
	{EventSocketRead, "read"},
	{EventSocketWrite, "write"},
	{EventPeriodic, "periodic"},
	{EventSignal, "signal"},
	{EventTimer, "timer"},
}

func (t EventType) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, n := range eventNames {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("EventType(%d)", uint32(t))
	}
	return strings.Join(parts, "|")
}

// Task receives the events of the watchers it owns. The scheduler only holds
// a reference to a Task; it checks IsActive immediately before every delivery
// and drops the event when the Task reports itself inactive.
type Task interface {
	HandleEvent(token EventToken, events EventType)
	IsActive() bool
}

var (
	ErrUnknownLoop    = errors.New("scheduler: unknown loop")
	ErrClosed         = errors.New("scheduler: closed")
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrInvalidSocket  = errors.New("scheduler: invalid socket event type")
	ErrUnknownBackend = errors.New("scheduler: unknown backend")
	ErrUnsupported    = errors.New("scheduler: backend not supported on this platform")
)
