package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type socketReady struct {
	fd     int
	events EventType
}

// loop is one event loop. Watcher state is guarded by mu; the lock is
// released before any task is called.
type loop struct {
	id     EventLoop
	poller poller
	logger *zap.Logger

	mu      sync.Mutex
	sockets map[int]*socketWatcher
	timers  timerHeap
	notify  []*notifyWatcher

	unloop atomic.Bool

	// life guards the poller against use after close
	life   sync.RWMutex
	closed bool

	// loop thread scratch space
	ready   []socketReady
	fired   []*timerWatcher
	arms    []uint64
	pending []*notifyWatcher
}

func newLoop(id EventLoop, p poller, logger *zap.Logger) *loop {
	return &loop{
		id:      id,
		poller:  p,
		logger:  logger,
		sockets: make(map[int]*socketWatcher),
	}
}

// run iterates until wakeup is requested.
func (l *loop) run() error {
	for {
		if err := l.runOnce(); err != nil {
			return err
		}
		if l.unloop.CompareAndSwap(true, false) {
			return nil
		}
	}
}

func (l *loop) runOnce() error {
	l.mu.Lock()
	timeout := l.timers.timeout(time.Now())
	l.mu.Unlock()

	l.ready = l.ready[:0]
	err := l.poller.wait(timeout, func(fd int, events EventType) {
		l.ready = append(l.ready, socketReady{fd: fd, events: events})
	})
	if err != nil {
		l.logger.Error("event loop wait failed", zap.Int("loop", int(l.id)), zap.Error(err))
		return err
	}

	l.dispatchSockets()
	l.dispatchNotifications()
	l.dispatchTimers(time.Now())
	return nil
}

func (l *loop) dispatchSockets() {
	for _, r := range l.ready {
		l.mu.Lock()
		w := l.sockets[r.fd]
		var events EventType
		if w != nil && w.active {
			events = r.events & w.events
		}
		l.mu.Unlock()

		if events != 0 {
			w.deliver(events)
		}
	}
}

func (l *loop) dispatchNotifications() {
	l.mu.Lock()
	l.pending, l.notify = l.notify, l.pending[:0]
	l.mu.Unlock()

	for i, w := range l.pending {
		// lowering the flag first lets a notification raised during the callback schedule another delivery
		if w.pending.CompareAndSwap(true, false) {
			w.deliver(w.event)
		}
		l.pending[i] = nil
	}
}

func (l *loop) dispatchTimers(now time.Time) {
	l.mu.Lock()
	l.fired = l.timers.expire(now, l.fired[:0])
	l.arms = l.arms[:0]
	for _, w := range l.fired {
		l.arms = append(l.arms, w.arm)
	}
	l.mu.Unlock()

	for i, w := range l.fired {
		// an earlier callback may have cleared or rearmed w
		l.mu.Lock()
		current := w.arm == l.arms[i]
		l.mu.Unlock()

		if current {
			w.deliver(w.kind())
		}
		l.fired[i] = nil
	}
}

// raise marks w pending and queues it for the loop. Repeated calls before
// the loop consumes the flag are coalesced.
func (l *loop) raise(w *notifyWatcher) {
	if !w.pending.CompareAndSwap(false, true) {
		return
	}
	l.mu.Lock()
	l.notify = append(l.notify, w)
	l.mu.Unlock()
	l.wake()
}

func (l *loop) wake() {
	l.life.RLock()
	defer l.life.RUnlock()

	if l.closed {
		return
	}
	if err := l.poller.wake(); err != nil {
		l.logger.Warn("cannot wake event loop", zap.Int("loop", int(l.id)), zap.Error(err))
	}
}

func (l *loop) isClosed() bool {
	l.life.RLock()
	defer l.life.RUnlock()
	return l.closed
}

// wakeup makes the running (or next) call of run return.
func (l *loop) wakeup() {
	l.unloop.Store(true)
	l.wake()
}

func (l *loop) startSocket(w *socketWatcher) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w.active {
		return nil
	}

	l.life.RLock()
	defer l.life.RUnlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.poller.add(w.fd, w.events); err != nil {
		return err
	}
	w.active = true
	l.sockets[w.fd] = w
	return nil
}

func (l *loop) stopSocket(w *socketWatcher) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !w.active {
		return nil
	}
	w.active = false
	if l.sockets[w.fd] == w {
		delete(l.sockets, w.fd)
	}

	l.life.RLock()
	defer l.life.RUnlock()
	if l.closed {
		return nil
	}
	return l.poller.del(w.fd)
}

func (l *loop) modifySocket(w *socketWatcher, events EventType) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !w.active {
		w.events = events
		return nil
	}

	l.life.RLock()
	defer l.life.RUnlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.poller.mod(w.fd, events); err != nil {
		return err
	}
	w.events = events
	return nil
}

func (l *loop) scheduleTimer(w *timerWatcher, when time.Time, interval time.Duration) {
	l.mu.Lock()
	w.arm++
	w.interval = interval
	l.timers.schedule(w, when)
	l.mu.Unlock()
	// the loop may be blocked with a timeout computed for a later deadline
	l.wake()
}

func (l *loop) cancelTimer(w *timerWatcher) {
	l.mu.Lock()
	w.arm++
	l.timers.remove(w)
	l.mu.Unlock()
}

// close releases the poller. The loop thread must have left run.
func (l *loop) close() error {
	l.life.Lock()
	defer l.life.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.poller.close()
}
