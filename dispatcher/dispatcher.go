package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const shutdownPollInterval = 10 * time.Millisecond

// Dispatcher routes jobs to named queues.
type Dispatcher struct {
	logger   *zap.Logger
	stopping atomic.Bool

	mu     sync.RWMutex
	queues map[string]*Queue
}

func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger: logger,
		queues: make(map[string]*Queue),
	}
}

// AddQueue creates a queue served by nrThreads default workers. A queue
// with the same name is replaced.
func (d *Dispatcher) AddQueue(name string, nrThreads int, opts ...QueueOption) *Queue {
	return d.AddQueueWithFactory(name, DefaultThread, nrThreads, opts...)
}

func (d *Dispatcher) AddQueueWithFactory(name string, factory ThreadFactory, nrThreads int, opts ...QueueOption) *Queue {
	q := newQueue(name, factory, nrThreads, d.logger, opts...)

	d.mu.Lock()
	old := d.queues[name]
	d.queues[name] = q
	d.mu.Unlock()

	if old != nil {
		d.logger.Warn("replacing dispatcher queue", zap.String("queue", name))
		old.BeginShutdown()
		old.discard()
	}
	return q
}

// Submit hands job to its queue. On error the job remains the caller's.
func (d *Dispatcher) Submit(job Job) error {
	if d.stopping.Load() {
		return ErrShuttingDown
	}

	d.mu.RLock()
	q := d.queues[job.Queue()]
	d.mu.RUnlock()

	if q == nil {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, job.Queue())
	}

	// logged first: the job may run and be cleaned up before AddJob returns
	d.logger.Debug("adding job", zap.String("job", job.Name()), zap.String("queue", q.name))
	if err := q.AddJob(job); err != nil {
		return fmt.Errorf("queue %q: %w", q.name, err)
	}
	return nil
}

// AddJob is Submit reduced to accepted or not. Rejections are logged.
func (d *Dispatcher) AddJob(job Job) bool {
	err := d.Submit(job)
	if err == nil {
		return true
	}
	d.logger.Warn("cannot add job",
		zap.String("job", job.Name()),
		zap.String("queue", job.Queue()),
		zap.Error(err))
	return false
}

// IsRunning reports whether any queue has a live worker.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, q := range d.queues {
		if q.IsRunning() {
			return true
		}
	}
	return false
}

// Start starts the queues in name order and stops at the first failure.
// Queues started before the failure keep running.
func (d *Dispatcher) Start() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, name := range d.sortedNames() {
		if err := d.queues[name].Start(); err != nil {
			d.logger.Error("cannot start dispatcher queue", zap.String("queue", name), zap.Error(err))
			return err
		}
	}
	return nil
}

func (d *Dispatcher) BeginShutdown() {
	if d.stopping.Load() {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.stopping.CompareAndSwap(false, true) {
		return
	}
	d.logger.Debug("beginning shutdown sequence of dispatcher")
	for _, q := range d.queues {
		q.BeginShutdown()
	}
}

// Shutdown begins the shutdown and waits until every worker has left or
// ctx is done. Jobs that were never picked up are discarded either way.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.BeginShutdown()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	var err error
wait:
	for d.IsRunning() {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break wait
		case <-ticker.C:
		}
	}

	d.mu.RLock()
	queues := maps.Values(d.queues)
	d.mu.RUnlock()

	discarded := 0
	for _, q := range queues {
		discarded += q.discard()
	}
	if discarded > 0 {
		d.logger.Info("discarded pending jobs", zap.Int("jobs", discarded))
	}
	return err
}

// ReportStatus logs the counters of every queue at debug level.
func (d *Dispatcher) ReportStatus() {
	if ce := d.logger.Check(zap.DebugLevel, "dispatcher status"); ce == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, name := range d.sortedNames() {
		d.queues[name].reportStatus(d.logger)
	}
}

func (d *Dispatcher) QueueStatus(name string) (QueueStatus, bool) {
	d.mu.RLock()
	q := d.queues[name]
	d.mu.RUnlock()

	if q == nil {
		return QueueStatus{}, false
	}
	return q.Status(), true
}

// Queues returns the queue names in sorted order.
func (d *Dispatcher) Queues() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedNames()
}

func (d *Dispatcher) sortedNames() []string {
	names := maps.Keys(d.queues)
	slices.Sort(names)
	return names
}
