package scheduler

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Concurrency is the number of loops and threads; values below one mean one.
	Concurrency int
	Backend     Backend
	Logger      *zap.Logger
}

// Scheduler owns a fixed set of event loops, one OS thread per loop, and the
// token registry shared by all of them. All methods are safe for concurrent use.
type Scheduler struct {
	logger   *zap.Logger
	backend  Backend
	loops    []*loop
	threads  []*Thread
	registry *registry

	mu       sync.Mutex
	group    *errgroup.Group
	started  bool
	shutdown bool
}

type Stats struct {
	Backend    Backend
	Loops      int
	Async      int
	Socket     int
	Timer      int
	Periodic   int
	Signal     int
	FreeTokens int
}

func New(cfg Config) (*Scheduler, error) {
	n := cfg.Concurrency
	if n < 1 {
		n = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("creating scheduler",
		zap.Int("concurrency", n),
		zap.Stringer("backend", cfg.Backend),
		zap.Any("available", AvailableBackends()))

	s := &Scheduler{
		logger:   logger,
		backend:  cfg.Backend,
		loops:    make([]*loop, n),
		threads:  make([]*Thread, n),
		registry: newRegistry(),
	}

	for i := 0; i < n; i++ {
		p, err := newPoller(cfg.Backend)
		if err != nil {
			for _, l := range s.loops[:i] {
				_ = l.close()
			}
			return nil, fmt.Errorf("scheduler: create loop %d: %w", i, err)
		}
		s.loops[i] = newLoop(EventLoop(i), p, logger)
		s.threads[i] = newThread(s, EventLoop(i), i == 0)
	}

	return s, nil
}

func (s *Scheduler) NumLoops() int { return len(s.loops) }

// Thread returns the thread bound to loop.
func (s *Scheduler) Thread(loop EventLoop) (*Thread, error) {
	if _, err := s.lookupLoop(loop); err != nil {
		return nil, err
	}
	return s.threads[loop], nil
}

// Start launches one thread per loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.group = new(errgroup.Group)
	for _, t := range s.threads {
		t.start(s.group)
	}
	s.logger.Info("scheduler started", zap.Int("threads", len(s.threads)))
	return nil
}

// Wait blocks until every thread has exited and returns the first loop error.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// Shutdown asks every thread to finish, forces them out of their waits,
// joins them and finally releases the loops. It is idempotent.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	g := s.group
	s.mu.Unlock()

	s.logger.Debug("beginning shutdown sequence of scheduler")

	for _, t := range s.threads {
		t.BeginShutdown()
	}
	for _, t := range s.threads {
		t.Stop()
	}

	var err error
	if g != nil {
		err = g.Wait()
	}
	// signals still watched would otherwise be swallowed by closed loops
	for _, w := range s.registry.signals() {
		w.stopSignal()
	}
	for _, l := range s.loops {
		err = multierr.Append(err, l.close())
	}

	s.logger.Info("scheduler stopped")
	return err
}

// EventLoop runs loop until WakeupLoop is called for it. It is the body of
// the loop's thread and must not be called concurrently for the same loop.
func (s *Scheduler) EventLoop(loop EventLoop) error {
	l, err := s.openLoop(loop)
	if err != nil {
		return err
	}
	return l.run()
}

// WakeupLoop forces the wait of loop to return so its thread re-checks
// its run state.
func (s *Scheduler) WakeupLoop(loop EventLoop) error {
	l, err := s.lookupLoop(loop)
	if err != nil {
		return err
	}
	l.wakeup()
	return nil
}

func (s *Scheduler) InstallAsyncEvent(loop EventLoop, task Task) (EventToken, error) {
	l, err := s.openLoop(loop)
	if err != nil {
		return 0, err
	}

	w := &notifyWatcher{event: EventAsync}
	w.loop, w.task = l, task
	w.token = s.registry.register(w)
	return w.token, nil
}

// SendAsync schedules one delivery to the async watcher behind token.
// Sends that arrive before the loop ran the watcher are merged.
func (s *Scheduler) SendAsync(token EventToken) {
	w := lookupAs[*notifyWatcher](s.registry, token)
	if w == nil || w.event != EventAsync {
		return
	}
	w.loop.raise(w)
}

// InstallSocketEvent watches fd for the readiness in events, a combination
// of EventSocketRead and EventSocketWrite. The watcher starts active.
func (s *Scheduler) InstallSocketEvent(loop EventLoop, events EventType, task Task, fd int) (EventToken, error) {
	if events&eventSocket == 0 || events&^eventSocket != 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSocket, events)
	}
	l, err := s.openLoop(loop)
	if err != nil {
		return 0, err
	}

	w := &socketWatcher{fd: fd, events: events}
	w.loop, w.task = l, task
	w.token = s.registry.register(w)

	if err := l.startSocket(w); err != nil {
		s.registry.unregister(w.token, w)
		return 0, err
	}
	return w.token, nil
}

// StartSocketEvents resumes a stopped socket watcher; starting an active one does nothing.
func (s *Scheduler) StartSocketEvents(token EventToken) error {
	w := lookupAs[*socketWatcher](s.registry, token)
	if w == nil || w.removed.Load() {
		return nil
	}
	return w.loop.startSocket(w)
}

// StopSocketEvents suspends a socket watcher without releasing its token.
func (s *Scheduler) StopSocketEvents(token EventToken) error {
	w := lookupAs[*socketWatcher](s.registry, token)
	if w == nil {
		return nil
	}
	return w.loop.stopSocket(w)
}

// SetSocketEvents replaces the readiness a socket watcher is interested in.
func (s *Scheduler) SetSocketEvents(token EventToken, events EventType) error {
	if events&eventSocket == 0 || events&^eventSocket != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSocket, events)
	}
	w := lookupAs[*socketWatcher](s.registry, token)
	if w == nil || w.removed.Load() {
		return nil
	}
	return w.loop.modifySocket(w, events)
}

// InstallPeriodicEvent fires first after offset and then every interval.
// A non-positive interval makes it fire once.
func (s *Scheduler) InstallPeriodicEvent(loop EventLoop, task Task, offset, interval time.Duration) (EventToken, error) {
	return s.installTimer(loop, task, true, offset, interval)
}

func (s *Scheduler) RearmPeriodic(token EventToken, offset, interval time.Duration) {
	w := lookupAs[*timerWatcher](s.registry, token)
	if w == nil || !w.periodic {
		return
	}
	w.loop.scheduleTimer(w, time.Now().Add(clamp(offset)), interval)
}

// InstallTimerEvent fires once after timeout.
func (s *Scheduler) InstallTimerEvent(loop EventLoop, task Task, timeout time.Duration) (EventToken, error) {
	return s.installTimer(loop, task, false, timeout, 0)
}

// RearmTimer restarts the timer as a fresh countdown of timeout, whether
// it already fired, was cleared or is still pending.
func (s *Scheduler) RearmTimer(token EventToken, timeout time.Duration) {
	w := lookupAs[*timerWatcher](s.registry, token)
	if w == nil || w.periodic {
		return
	}
	w.loop.scheduleTimer(w, time.Now().Add(clamp(timeout)), 0)
}

// ClearTimer stops the timer but keeps the token; RearmTimer restarts it.
func (s *Scheduler) ClearTimer(token EventToken) {
	w := lookupAs[*timerWatcher](s.registry, token)
	if w == nil || w.periodic {
		return
	}
	w.loop.cancelTimer(w)
}

func (s *Scheduler) installTimer(loop EventLoop, task Task, periodic bool, offset, interval time.Duration) (EventToken, error) {
	l, err := s.openLoop(loop)
	if err != nil {
		return 0, err
	}

	w := &timerWatcher{periodic: periodic, index: -1}
	w.loop, w.task = l, task
	w.token = s.registry.register(w)
	l.scheduleTimer(w, time.Now().Add(clamp(offset)), interval)
	return w.token, nil
}

// InstallSignalEvent delivers sig to task on loop. Signals received before
// the loop ran the watcher are merged into one delivery.
func (s *Scheduler) InstallSignalEvent(loop EventLoop, task Task, sig os.Signal) (EventToken, error) {
	l, err := s.openLoop(loop)
	if err != nil {
		return 0, err
	}

	w := &notifyWatcher{
		event: EventSignal,
		sig:   sig,
		ch:    make(chan os.Signal, 1),
		done:  make(chan struct{}),
	}
	w.loop, w.task = l, task
	w.token = s.registry.register(w)

	signal.Notify(w.ch, sig)
	go func() {
		for {
			select {
			case <-w.ch:
				l.raise(w)
			case <-w.done:
				return
			}
		}
	}()
	return w.token, nil
}

// UninstallEvent stops the watcher behind token and releases the token.
// Unknown or already released tokens are ignored.
func (s *Scheduler) UninstallEvent(token EventToken) {
	w := s.registry.lookup(token)
	if w == nil {
		return
	}
	b := w.base()
	if !b.removed.CompareAndSwap(false, true) {
		return
	}

	switch w := w.(type) {
	case *notifyWatcher:
		w.stopSignal()
	case *socketWatcher:
		if err := w.loop.stopSocket(w); err != nil {
			s.logger.Debug("cannot stop socket watcher",
				zap.Uint64("token", uint64(token)), zap.Int("fd", w.fd), zap.Error(err))
		}
	case *timerWatcher:
		w.loop.cancelTimer(w)
	}

	s.registry.unregister(token, w)
}

func (s *Scheduler) Stats() Stats {
	live, free := s.registry.counts()
	return Stats{
		Backend:    s.backend,
		Loops:      len(s.loops),
		Async:      live[EventAsync],
		Socket:     live[EventSocketRead],
		Timer:      live[EventTimer],
		Periodic:   live[EventPeriodic],
		Signal:     live[EventSignal],
		FreeTokens: free,
	}
}

func (s *Scheduler) lookupLoop(loop EventLoop) (*loop, error) {
	if loop < 0 || int(loop) >= len(s.loops) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoop, loop)
	}
	return s.loops[loop], nil
}

func (s *Scheduler) openLoop(loop EventLoop) (*loop, error) {
	l, err := s.lookupLoop(loop)
	if err != nil {
		return nil, err
	}
	if l.isClosed() {
		return nil, ErrClosed
	}
	return l, nil
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
