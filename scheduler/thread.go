package scheduler

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ThreadState int32

const (
	ThreadCreated ThreadState = iota
	ThreadRunning
	ThreadShuttingDown
	ThreadStopped
)

func (s ThreadState) String() string {
	switch s {
	case ThreadCreated:
		return "created"
	case ThreadRunning:
		return "running"
	case ThreadShuttingDown:
		return "shutting-down"
	case ThreadStopped:
		return "stopped"
	}
	return fmt.Sprintf("ThreadState(%d)", int32(s))
}

// Thread drives one loop on a dedicated OS thread. It re-enters the loop
// after every wake-up until shutdown was requested.
type Thread struct {
	scheduler *Scheduler
	loop      EventLoop
	main      bool

	state    atomic.Int32
	stopping atomic.Bool
	done     chan struct{}
}

func newThread(s *Scheduler, loop EventLoop, main bool) *Thread {
	return &Thread{
		scheduler: s,
		loop:      loop,
		main:      main,
		done:      make(chan struct{}),
	}
}

func (t *Thread) Loop() EventLoop { return t.loop }

// IsMain reports whether the thread runs loop 0.
func (t *Thread) IsMain() bool { return t.main }

func (t *Thread) State() ThreadState { return ThreadState(t.state.Load()) }

func (t *Thread) start(g *errgroup.Group) bool {
	if !t.state.CompareAndSwap(int32(ThreadCreated), int32(ThreadRunning)) {
		return false
	}
	g.Go(t.run)
	return true
}

func (t *Thread) run() error {
	defer close(t.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := t.scheduler.logger.With(zap.Int("loop", int(t.loop)))
	logger.Debug("scheduler thread started", zap.Bool("main", t.main))

	for !t.stopping.Load() {
		if err := t.scheduler.EventLoop(t.loop); err != nil {
			logger.Error("scheduler thread aborted", zap.Error(err))
			return fmt.Errorf("loop %d: %w", t.loop, err)
		}
	}

	logger.Debug("scheduler thread finished")
	return nil
}

// BeginShutdown asks the thread to leave after its current loop iteration.
// It does not interrupt a blocked wait; Stop does.
func (t *Thread) BeginShutdown() {
	t.stopping.Store(true)
	t.state.CompareAndSwap(int32(ThreadRunning), int32(ThreadShuttingDown))
}

// Stop wakes the loop and waits for the thread to exit. It may be called
// without BeginShutdown.
func (t *Thread) Stop() {
	t.stopping.Store(true)

	switch t.State() {
	case ThreadStopped:
		return
	case ThreadCreated:
		if t.state.CompareAndSwap(int32(ThreadCreated), int32(ThreadStopped)) {
			return
		}
	}

	_ = t.scheduler.WakeupLoop(t.loop)
	<-t.done
	t.state.Store(int32(ThreadStopped))
}
