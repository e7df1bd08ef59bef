// Package sched is the scheduler collaborator boundary. The IPC core
// never runs threads of its own: a blocking send or receive parks the
// calling task here ("block task, register wakeup, yield") and a peer
// operation wakes it. The default implementation parks on channels,
// which maps the same contract onto goroutines.
package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Cause tells a woken task why it resumed.
type Cause uint8

const (
	// CauseReady means the condition the task waited for may now hold
	// (queue space freed, message arrived). The task must re-check.
	CauseReady Cause = iota + 1
	// CauseClosed means the endpoint closed while the task waited.
	CauseClosed
)

// ErrTimeout is returned by Block when the caller-supplied timeout
// elapses before a wakeup.
var ErrTimeout = errors.New("wait timed out")

// Task is a parked execution context. A task is woken at most once;
// TryWake reports whether this call was the one that woke it, which
// lets wait-set owners resolve the wake/timeout race exactly once.
type Task struct {
	ch    chan Cause
	woken atomic.Bool
}

// TryWake wakes the task with the given cause. Returns false if the
// task was already woken.
func (t *Task) TryWake(cause Cause) bool {
	if !t.woken.CompareAndSwap(false, true) {
		return false
	}
	t.ch <- cause
	return true
}

// Consume retrieves a wake cause that is known to be in flight. Called
// after a timed-out waiter discovers it was concurrently woken.
func (t *Task) Consume() Cause {
	return <-t.ch
}

// Scheduler blocks and wakes tasks.
type Scheduler interface {
	// NewTask creates a parkable task.
	NewTask() *Task
	// Block parks the task until a wakeup, context cancellation, or
	// timeout (0 means no timeout). On ErrTimeout or a context error
	// the caller still owns the race against a concurrent TryWake.
	Block(ctx context.Context, t *Task, timeout time.Duration) (Cause, error)
	// Wake resumes a parked task. Returns false if it was already
	// woken.
	Wake(t *Task, cause Cause) bool
}

// Parker is the default channel-parking scheduler.
type Parker struct{}

// NewParker creates the default scheduler.
func NewParker() *Parker {
	return &Parker{}
}

// NewTask implements Scheduler.
func (*Parker) NewTask() *Task {
	return &Task{ch: make(chan Cause, 1)}
}

// Block implements Scheduler.
func (*Parker) Block(ctx context.Context, t *Task, timeout time.Duration) (Cause, error) {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case cause := <-t.ch:
		return cause, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timeoutCh:
		return 0, ErrTimeout
	}
}

// Wake implements Scheduler.
func (*Parker) Wake(t *Task, cause Cause) bool {
	return t.TryWake(cause)
}
