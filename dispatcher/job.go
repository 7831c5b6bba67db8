// Package dispatcher runs jobs on pools of worker goroutines organised in
// named queues. A job names its queue; the dispatcher routes it there, and
// one of the queue's workers executes it.
package dispatcher

import (
	"errors"
	"fmt"
)

type JobType int

const (
	// JobRead jobs run concurrently with each other.
	JobRead JobType = iota
	// JobWrite jobs are monopolistic: one starts only when no other job of
	// its queue executes, and nothing else starts while it runs.
	JobWrite
	// JobSpecial jobs are expected to block for long; their worker is
	// counted as special for the whole run and replaced meanwhile.
	JobSpecial
)

func (t JobType) String() string {
	switch t {
	case JobRead:
		return "read"
	case JobWrite:
		return "write"
	case JobSpecial:
		return "special"
	}
	return fmt.Sprintf("JobType(%d)", int(t))
}

type Status int

const (
	StatusDone Status = iota
	// StatusRequeue puts the job back at the tail of its queue.
	StatusRequeue
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusRequeue:
		return "requeue"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Job is a unit of work. Once a queue accepted a job it owns it until
// Cleanup, which is called exactly once after the final Work or after the
// job was discarded.
type Job interface {
	Name() string
	Queue() string
	Type() JobType
	Work(t *Thread) Status
	// HandleError receives failures the job did not report itself: panics
	// in Work and discards during shutdown.
	HandleError(err error)
	Cleanup()
}

var (
	ErrUnknownQueue   = errors.New("dispatcher: unknown queue")
	ErrShuttingDown   = errors.New("dispatcher: shutting down")
	ErrQueueFull      = errors.New("dispatcher: queue full")
	ErrAlreadyStarted = errors.New("dispatcher: queue already started")
	ErrJobPanicked    = errors.New("dispatcher: job panicked")
)
