package dispatcher

import (
	"fmt"

	"go.uber.org/zap"
)

// ThreadFactory creates the workers of a queue. It is called with the
// queue lock held and must not call back into the queue.
type ThreadFactory func(q *Queue) *Thread

type ThreadOption func(t *Thread)

// WithInit runs fn on the worker before it takes its first job. An error
// stops the worker and, during Queue.Start, fails the start.
func WithInit(fn func(t *Thread) error) ThreadOption {
	return func(t *Thread) { t.init = fn }
}

// WithExit runs fn on the worker after its last job.
func WithExit(fn func(t *Thread)) ThreadOption {
	return func(t *Thread) { t.exit = fn }
}

// Thread is one worker of a queue.
type Thread struct {
	queue *Queue
	id    int
	init  func(t *Thread) error
	exit  func(t *Thread)

	// guarded by queue.mu
	blocked bool
	job     Job

	initDone chan error
}

func NewThread(q *Queue, opts ...ThreadOption) *Thread {
	t := &Thread{queue: q, initDone: make(chan error, 1)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultThread is the factory used by Dispatcher.AddQueue.
func DefaultThread(q *Queue) *Thread {
	return NewThread(q)
}

func (t *Thread) Queue() *Queue { return t.queue }

func (t *Thread) String() string {
	return fmt.Sprintf("%s#%d", t.queue.name, t.id)
}

// Block tells the queue the current job is about to wait on something
// slow. The worker is counted as special and, while the queue is not
// stopping, a replacement worker keeps the queue at its configured size.
func (t *Thread) Block() {
	q := t.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	if t.blocked {
		return
	}
	t.blocked = true
	q.special++

	if !q.stopping && q.alive()-q.special < q.nrThreads {
		q.startThreadLocked(q.factory(q))
	}
}

// Unblock reverses Block. Surplus workers leave once they are idle.
func (t *Thread) Unblock() {
	q := t.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	if !t.blocked {
		return
	}
	t.blocked = false
	q.special--
	q.cond.Broadcast()
}

func (t *Thread) run() {
	q := t.queue
	logger := q.logger.With(zap.Stringer("thread", t))

	var err error
	if t.init != nil {
		err = t.init(t)
	}
	if err != nil {
		logger.Error("dispatcher thread failed to initialise", zap.Error(err))
		q.mu.Lock()
		q.finishLocked(t)
		q.mu.Unlock()
		t.initDone <- err
		return
	}
	t.initDone <- nil

	logger.Debug("dispatcher thread started")

	q.mu.Lock()
	for {
		job := q.nextLocked()
		if job == nil {
			break
		}
		t.job = job
		q.mu.Unlock()

		status := t.execute(job)

		q.mu.Lock()
		t.job = nil
		q.doneLocked(job)
		if status == StatusRequeue && !q.stopping {
			q.ready.Add(job)
			q.cond.Signal()
			continue
		}
		q.mu.Unlock()

		if status == StatusRequeue {
			job.HandleError(ErrShuttingDown)
		}
		job.Cleanup()

		q.mu.Lock()
	}
	q.mu.Unlock()

	if t.exit != nil {
		t.exit(t)
	}

	q.mu.Lock()
	q.finishLocked(t)
	q.mu.Unlock()

	logger.Debug("dispatcher thread stopped")
}

func (t *Thread) execute(job Job) (status Status) {
	if job.Type() == JobSpecial {
		t.Block()
	}
	defer func() {
		if r := recover(); r != nil {
			t.queue.logger.Error("job panicked",
				zap.String("job", job.Name()),
				zap.Stringer("thread", t),
				zap.Any("panic", r))
			job.HandleError(fmt.Errorf("%w: %v", ErrJobPanicked, r))
			status = StatusFailed
		}
		// a job that forgot to unblock must not keep its worker special
		t.Unblock()
	}()
	return job.Work(t)
}
