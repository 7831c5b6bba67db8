package dispatcher

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type QueueOption func(q *Queue)

// WithMaxReady bounds the number of jobs waiting in the queue. Zero means
// unbounded. A full queue rejects new jobs with ErrQueueFull.
func WithMaxReady(n int) QueueOption {
	return func(q *Queue) { q.maxReady = n }
}

// Queue is a FIFO of ready jobs served by a pool of workers.
//
// Counters follow the workers: a started worker is running while it looks
// for or executes a job, waiting while it sleeps on the queue and stopped
// once it has left. Between transitions started = running + waiting + stopped.
type Queue struct {
	name      string
	nrThreads int
	maxReady  int
	factory   ThreadFactory
	logger    *zap.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	ready       *queue.Queue
	threads     map[*Thread]struct{}
	started     int
	running     int
	waiting     int
	stopped     int
	special     int
	executing   int
	monopolizer bool
	stopping    bool
}

type QueueStatus struct {
	Name        string
	Threads     int
	Started     int
	Running     int
	Waiting     int
	Stopped     int
	Special     int
	Ready       int
	Monopolized bool
}

func newQueue(name string, factory ThreadFactory, nrThreads int, logger *zap.Logger, opts ...QueueOption) *Queue {
	if factory == nil {
		factory = DefaultThread
	}
	if nrThreads < 1 {
		nrThreads = 1
	}
	q := &Queue{
		name:      name,
		nrThreads: nrThreads,
		factory:   factory,
		logger:    logger.With(zap.String("queue", name)),
		ready:     queue.New(),
		threads:   make(map[*Thread]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

// Start launches the configured number of workers and waits for their init
// hooks. Workers that initialised keep running when another one failed.
func (q *Queue) Start() error {
	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	if q.started > 0 {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	threads := make([]*Thread, q.nrThreads)
	for i := range threads {
		threads[i] = q.factory(q)
		q.startThreadLocked(threads[i])
	}
	q.mu.Unlock()

	var err error
	for _, t := range threads {
		err = multierr.Append(err, <-t.initDone)
	}
	if err != nil {
		return fmt.Errorf("queue %q: %w", q.name, err)
	}
	return nil
}

// AddJob appends job to the ready list. On error the job still belongs to
// the caller.
func (q *Queue) AddJob(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return ErrShuttingDown
	}
	if q.maxReady > 0 && q.ready.Length() >= q.maxReady {
		return ErrQueueFull
	}
	q.ready.Add(job)
	q.cond.Signal()
	return nil
}

// BeginShutdown stops accepting jobs. Workers finish the ready list and leave.
func (q *Queue) BeginShutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return
	}
	q.stopping = true
	q.cond.Broadcast()
}

// IsRunning reports whether any worker of the queue is still alive.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.alive() > 0
}

func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStatus{
		Name:        q.name,
		Threads:     q.nrThreads,
		Started:     q.started,
		Running:     q.running,
		Waiting:     q.waiting,
		Stopped:     q.stopped,
		Special:     q.special,
		Ready:       q.ready.Length(),
		Monopolized: q.monopolizer,
	}
}

// discard removes every job still waiting and hands it back with
// ErrShuttingDown.
func (q *Queue) discard() int {
	q.mu.Lock()
	jobs := make([]Job, 0, q.ready.Length())
	for q.ready.Length() > 0 {
		jobs = append(jobs, q.ready.Remove().(Job))
	}
	q.mu.Unlock()

	for _, job := range jobs {
		q.logger.Debug("discarding job", zap.String("job", job.Name()))
		job.HandleError(ErrShuttingDown)
		job.Cleanup()
	}
	return len(jobs)
}

func (q *Queue) reportStatus(logger *zap.Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()

	logger.Debug("dispatcher queue status",
		zap.String("queue", q.name),
		zap.Int("threads", q.nrThreads),
		zap.Int("started", q.started),
		zap.Int("running", q.running),
		zap.Int("waiting", q.waiting),
		zap.Int("stopped", q.stopped),
		zap.Int("special", q.special),
		zap.Int("ready", q.ready.Length()),
		zap.Bool("monopolistic", q.monopolizer))

	for t := range q.threads {
		if t.job != nil {
			logger.Debug("dispatcher thread status",
				zap.Stringer("thread", t),
				zap.String("job", t.job.Name()),
				zap.Bool("special", t.blocked))
		}
	}
}

func (q *Queue) alive() int { return q.started - q.stopped }

func (q *Queue) startThreadLocked(t *Thread) {
	q.started++
	q.running++
	t.id = q.started
	q.threads[t] = struct{}{}
	go t.run()
}

func (q *Queue) finishLocked(t *Thread) {
	q.running--
	q.stopped++
	delete(q.threads, t)
	q.cond.Broadcast()
}

// nextLocked blocks until the calling worker may take the head of the
// ready list, or returns nil when the worker should leave.
func (q *Queue) nextLocked() Job {
	for {
		if q.alive()-q.special > q.nrThreads {
			return nil
		}

		if q.ready.Length() > 0 {
			if !q.monopolizer {
				job := q.ready.Peek().(Job)
				write := job.Type() == JobWrite
				if !write || q.executing == 0 {
					q.ready.Remove()
					q.executing++
					q.monopolizer = write
					return job
				}
			}
		} else if q.stopping {
			return nil
		}

		q.running--
		q.waiting++
		q.cond.Wait()
		q.waiting--
		q.running++
	}
}

func (q *Queue) doneLocked(job Job) {
	q.executing--
	if job.Type() == JobWrite {
		q.monopolizer = false
	}
	q.cond.Broadcast()
}
