package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type testJob struct {
	name  string
	queue string
	typ   JobType
	work  func(t *Thread) Status

	worked  atomic.Int32
	cleaned atomic.Int32

	mu   sync.Mutex
	errs []error
}

func newJob(queue string, work func(t *Thread) Status) *testJob {
	return &testJob{name: "job", queue: queue, work: work}
}

func (j *testJob) Name() string  { return j.name }
func (j *testJob) Queue() string { return j.queue }
func (j *testJob) Type() JobType { return j.typ }

func (j *testJob) Work(t *Thread) Status {
	j.worked.Add(1)
	if j.work == nil {
		return StatusDone
	}
	return j.work(t)
}

func (j *testJob) HandleError(err error) {
	j.mu.Lock()
	j.errs = append(j.errs, err)
	j.mu.Unlock()
}

func (j *testJob) Cleanup() { j.cleaned.Add(1) }

func (j *testJob) errors() []error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]error(nil), j.errs...)
}

func shutdown(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func TestAddJobUnknownQueue(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 1)
	require.NoError(t, d.Start())
	defer shutdown(t, d)

	job := newJob("NOPE", nil)
	assert.False(t, d.AddJob(job))
	assert.ErrorIs(t, d.Submit(job), ErrUnknownQueue)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, job.worked.Load())
	assert.Zero(t, job.cleaned.Load())
}

func TestAddJobAfterShutdown(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 2)
	require.NoError(t, d.Start())

	d.BeginShutdown()
	d.BeginShutdown()

	job := newJob("CLIENT", nil)
	assert.False(t, d.AddJob(job))
	assert.ErrorIs(t, d.Submit(job), ErrShuttingDown)

	shutdown(t, d)
	assert.Zero(t, job.worked.Load())
	assert.Zero(t, job.cleaned.Load())
}

func TestClientQueueRunsHundredJobs(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 4)
	require.NoError(t, d.Start())

	var (
		count atomic.Int32
		wg    sync.WaitGroup
	)
	jobs := make([]*testJob, 100)
	for i := range jobs {
		wg.Add(1)
		jobs[i] = newJob("CLIENT", func(*Thread) Status {
			count.Add(1)
			wg.Done()
			return StatusDone
		})
		jobs[i].name = fmt.Sprintf("job-%d", i)
		require.True(t, d.AddJob(jobs[i]))
	}
	wg.Wait()

	shutdown(t, d)
	assert.EqualValues(t, 100, count.Load())
	for _, j := range jobs {
		assert.EqualValues(t, 1, j.cleaned.Load())
	}
	assert.False(t, d.IsRunning())

	st, ok := d.QueueStatus("CLIENT")
	require.True(t, ok)
	assert.Equal(t, 4, st.Started)
	assert.Equal(t, 4, st.Stopped)
	assert.Equal(t, st.Started, st.Running+st.Waiting+st.Stopped)
}

func TestQueuedBeforeStartDrainOnBeginShutdown(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 2)

	var count atomic.Int32
	jobs := make([]*testJob, 100)
	for i := range jobs {
		jobs[i] = newJob("CLIENT", func(*Thread) Status {
			count.Add(1)
			return StatusDone
		})
		require.True(t, d.AddJob(jobs[i]))
	}
	assert.Zero(t, count.Load(), "nothing runs before Start")

	require.NoError(t, d.Start())
	d.BeginShutdown()
	assert.Eventually(t, func() bool { return !d.IsRunning() }, 5*time.Second, 5*time.Millisecond)

	assert.EqualValues(t, 100, count.Load())
	for _, j := range jobs {
		assert.EqualValues(t, 1, j.cleaned.Load())
	}
	shutdown(t, d)
}

func TestIsRunningIsAnyQueue(t *testing.T) {
	d := New(nil)
	assert.False(t, d.IsRunning())

	d.AddQueue("ADMIN", 1)
	client := d.AddQueue("CLIENT", 2)
	assert.False(t, d.IsRunning())

	require.NoError(t, client.Start())
	assert.True(t, d.IsRunning())

	shutdown(t, d)
	assert.False(t, d.IsRunning())
}

func TestAddQueueReplaces(t *testing.T) {
	d := New(nil)
	d.AddQueue("CLIENT", 1)
	d.AddQueue("CLIENT", 3)

	assert.Equal(t, []string{"CLIENT"}, d.Queues())
	st, ok := d.QueueStatus("CLIENT")
	require.True(t, ok)
	assert.Equal(t, 3, st.Threads)

	_, ok = d.QueueStatus("ADMIN")
	assert.False(t, ok)
}

func TestWriteJobsAreMonopolistic(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 4)
	require.NoError(t, d.Start())

	var (
		active     atomic.Int32
		violations atomic.Int32
		wg         sync.WaitGroup
	)
	for i := 0; i < 60; i++ {
		write := i%5 == 0
		job := newJob("CLIENT", func(*Thread) Status {
			n := active.Add(1)
			if write && n != 1 {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			if write && active.Load() != 1 {
				violations.Add(1)
			}
			active.Add(-1)
			wg.Done()
			return StatusDone
		})
		if write {
			job.typ = JobWrite
		}
		wg.Add(1)
		require.True(t, d.AddJob(job))
	}
	wg.Wait()
	shutdown(t, d)

	assert.Zero(t, violations.Load())
}

func TestQueueFullRejects(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 1, WithMaxReady(2))

	first, second, third := newJob("CLIENT", nil), newJob("CLIENT", nil), newJob("CLIENT", nil)
	require.NoError(t, d.Submit(first))
	require.NoError(t, d.Submit(second))
	assert.ErrorIs(t, d.Submit(third), ErrQueueFull)

	shutdown(t, d)

	for _, j := range []*testJob{first, second} {
		assert.Zero(t, j.worked.Load())
		assert.EqualValues(t, 1, j.cleaned.Load())
		errs := j.errors()
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrShuttingDown)
	}
	assert.Zero(t, third.cleaned.Load())
}

func TestRequeueRunsAgain(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 2)
	require.NoError(t, d.Start())

	done := make(chan struct{})
	var job *testJob
	job = newJob("CLIENT", func(*Thread) Status {
		if job.worked.Load() < 3 {
			return StatusRequeue
		}
		close(done)
		return StatusDone
	})
	require.True(t, d.AddJob(job))

	<-done
	shutdown(t, d)
	assert.EqualValues(t, 3, job.worked.Load())
	assert.EqualValues(t, 1, job.cleaned.Load())
	assert.Empty(t, job.errors())
}

func TestPanickingJobIsReported(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 1)
	require.NoError(t, d.Start())

	bad := newJob("CLIENT", func(*Thread) Status { panic("boom") })
	good := newJob("CLIENT", nil)
	require.True(t, d.AddJob(bad))
	require.True(t, d.AddJob(good))

	require.Eventually(t, func() bool { return good.cleaned.Load() == 1 }, time.Second, 5*time.Millisecond)
	shutdown(t, d)

	errs := bad.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrJobPanicked)
	assert.EqualValues(t, 1, bad.cleaned.Load())
}

func TestBlockStartsReplacement(t *testing.T) {
	for _, tc := range []struct {
		name string
		typ  JobType
	}{
		{"explicit block", JobRead},
		{"special job", JobSpecial},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := New(zaptest.NewLogger(t))
			q := d.AddQueue("CLIENT", 1)
			require.NoError(t, d.Start())

			gate := make(chan struct{})
			slow := newJob("CLIENT", func(th *Thread) Status {
				if tc.typ != JobSpecial {
					th.Block()
					defer th.Unblock()
				}
				<-gate
				return StatusDone
			})
			slow.typ = tc.typ
			require.True(t, d.AddJob(slow))

			require.Eventually(t, func() bool { return q.Status().Special == 1 }, time.Second, 5*time.Millisecond)

			fast := newJob("CLIENT", nil)
			require.True(t, d.AddJob(fast))
			require.Eventually(t, func() bool { return fast.cleaned.Load() == 1 }, time.Second, 5*time.Millisecond)

			close(gate)
			require.Eventually(t, func() bool {
				st := q.Status()
				return st.Special == 0 && st.Started-st.Stopped == 1
			}, time.Second, 5*time.Millisecond)

			shutdown(t, d)
			assert.Equal(t, 2, q.Status().Started)
		})
	}
}

func TestInitFailureFailsStart(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	bad := errors.New("no runtime")
	var exits atomic.Int32

	d.AddQueueWithFactory("ADMIN", func(q *Queue) *Thread {
		return NewThread(q, WithInit(func(*Thread) error { return bad }))
	}, 2)
	d.AddQueueWithFactory("CLIENT", func(q *Queue) *Thread {
		return NewThread(q, WithExit(func(*Thread) { exits.Add(1) }))
	}, 2)

	err := d.Start()
	assert.ErrorIs(t, err, bad)

	st, _ := d.QueueStatus("ADMIN")
	assert.Equal(t, 2, st.Stopped)
	st, _ = d.QueueStatus("CLIENT")
	assert.Zero(t, st.Started)

	shutdown(t, d)
	assert.Zero(t, exits.Load())
}

func TestExitHookRunsOnShutdown(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	var inits, exits atomic.Int32
	d.AddQueueWithFactory("CLIENT", func(q *Queue) *Thread {
		return NewThread(q,
			WithInit(func(*Thread) error { inits.Add(1); return nil }),
			WithExit(func(*Thread) { exits.Add(1) }))
	}, 3)
	require.NoError(t, d.Start())
	assert.EqualValues(t, 3, inits.Load())

	shutdown(t, d)
	assert.EqualValues(t, 3, exits.Load())
}

func TestShutdownDrainsReadyJobs(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 1)
	require.NoError(t, d.Start())

	gate := make(chan struct{})
	first := newJob("CLIENT", func(*Thread) Status {
		<-gate
		return StatusDone
	})
	require.True(t, d.AddJob(first))

	rest := make([]*testJob, 5)
	for i := range rest {
		rest[i] = newJob("CLIENT", nil)
		require.True(t, d.AddJob(rest[i]))
	}

	d.BeginShutdown()
	close(gate)
	shutdown(t, d)

	for _, j := range append(rest, first) {
		assert.EqualValues(t, 1, j.worked.Load())
		assert.Empty(t, j.errors())
	}
}

func TestShutdownHonoursContext(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	d.AddQueue("CLIENT", 1)
	require.NoError(t, d.Start())

	gate := make(chan struct{})
	require.True(t, d.AddJob(newJob("CLIENT", func(*Thread) Status {
		<-gate
		return StatusDone
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	assert.True(t, d.IsRunning())

	close(gate)
	shutdown(t, d)
	assert.False(t, d.IsRunning())
}

func TestReportStatusOnlyAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := New(zap.New(core))
	d.AddQueue("ADMIN", 1)
	d.AddQueue("CLIENT", 2)
	require.NoError(t, d.Start())

	d.ReportStatus()
	entries := logs.FilterMessage("dispatcher queue status").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ADMIN", entries[0].ContextMap()["queue"])
	assert.EqualValues(t, 2, entries[1].ContextMap()["threads"])
	shutdown(t, d)

	quiet, quietLogs := observer.New(zap.InfoLevel)
	d = New(zap.New(quiet))
	d.AddQueue("CLIENT", 1)
	d.ReportStatus()
	assert.Zero(t, quietLogs.Len())
}
