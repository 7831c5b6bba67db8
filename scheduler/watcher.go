package scheduler

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type watcher interface {
	kind() EventType
	base() *watcherBase
}

// watcherBase is the state every watcher variant carries.
type watcherBase struct {
	loop    *loop
	token   EventToken
	task    Task
	removed atomic.Bool
}

func (w *watcherBase) base() *watcherBase { return w }

// deliver hands events to the task unless the watcher was uninstalled or
// the task is no longer active. It runs on the loop thread without any
// scheduler lock held.
func (w *watcherBase) deliver(events EventType) {
	if w.removed.Load() {
		return
	}
	task := w.task
	if task == nil || !task.IsActive() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.loop.logger.Error("task panicked while handling event",
				zap.Uint64("token", uint64(w.token)),
				zap.Stringer("events", events),
				zap.Any("panic", r))
		}
	}()
	task.HandleEvent(w.token, events)
}

// notifyWatcher backs both async and signal watchers: a pending flag that is
// raised from any goroutine and consumed by the loop, so several
// notifications before the loop runs collapse into a single delivery.
type notifyWatcher struct {
	watcherBase
	event   EventType
	pending atomic.Bool

	// signal watchers only
	sig  os.Signal
	ch   chan os.Signal
	done chan struct{}
	stop sync.Once
}

func (w *notifyWatcher) kind() EventType { return w.event }

// stopSignal hands sig back to the runtime and ends the forwarding
// goroutine. Safe to call more than once.
func (w *notifyWatcher) stopSignal() {
	if w.ch == nil {
		return
	}
	w.stop.Do(func() {
		signal.Stop(w.ch)
		close(w.done)
	})
}

type socketWatcher struct {
	watcherBase
	fd     int
	events EventType
	active bool // guarded by loop.mu
}

func (w *socketWatcher) kind() EventType { return EventSocketRead }

// timerWatcher backs one-shot timers and periodic events. A periodic
// watcher is rescheduled by the loop after every expiry.
type timerWatcher struct {
	watcherBase
	periodic bool
	when     time.Time
	interval time.Duration
	index    int // position in loop.timers, -1 when not scheduled
	// arm counts rearms and clears; an expiry taken under an older arm is
	// not delivered. Guarded by loop.mu.
	arm uint64
}

func (w *timerWatcher) kind() EventType {
	if w.periodic {
		return EventPeriodic
	}
	return EventTimer
}
