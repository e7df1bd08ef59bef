package ipc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ferrous-os/ferrous/internal/sched"
)

// DefaultQueueCapacity bounds a message queue when no capacity is
// configured.
const DefaultQueueCapacity = 64

// Queue is a bounded FIFO of in-flight messages plus two wait sets.
// Senders block when the ring is full, receivers when it is empty;
// wakeups are strictly FIFO among waiters of the same kind. Both sides
// act concurrently, so the queue carries its own lock even though its
// endpoint is capability-scoped.
type Queue struct {
	sched sched.Scheduler

	mu        sync.Mutex
	buf       []Message
	head      int
	count     int
	senders   waitList
	receivers waitList
	closed    bool
}

// NewQueue creates a queue with the given capacity (DefaultQueueCapacity
// if non-positive), parking tasks on s.
func NewQueue(capacity int, s sched.Scheduler) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		sched: s,
		buf:   make([]Message, capacity),
	}
}

// push appends at the tail. Caller holds q.mu.
func (q *Queue) push(msg Message) {
	if q.count == len(q.buf) {
		// The capacity checks above this point make overflow a logic
		// defect, not a caller error.
		panic("ipc: queue exceeded capacity")
	}
	q.buf[(q.head+q.count)%len(q.buf)] = msg
	q.count++
}

// pop removes the head. Caller holds q.mu and has checked count > 0.
func (q *Queue) pop() Message {
	msg := q.buf[q.head]
	q.buf[q.head] = Message{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return msg
}

// wakeOneReceiver pops the oldest waiting receiver. Caller holds q.mu.
func (q *Queue) wakeOneReceiver() {
	if w := q.receivers.popFront(); w != nil {
		q.sched.Wake(w.task, sched.CauseReady)
	}
}

// wakeOneSender pops the oldest waiting sender. Caller holds q.mu.
func (q *Queue) wakeOneSender() {
	if w := q.senders.popFront(); w != nil {
		q.sched.Wake(w.task, sched.CauseReady)
	}
}

// Enqueue appends msg at the tail, blocking while the queue is full.
// A zero timeout blocks until ctx is done or the endpoint closes.
// Delivery order is the order enqueues complete, which this method
// makes as fair as it can: fresh senders queue behind parked ones.
func (q *Queue) Enqueue(ctx context.Context, msg Message, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	q.mu.Lock()
	woken := false
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrEndpointClosed
		}
		if q.count < len(q.buf) && (woken || q.senders.len() == 0) {
			q.push(msg)
			q.wakeOneReceiver()
			q.mu.Unlock()
			return nil
		}

		var remaining time.Duration
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				q.mu.Unlock()
				return ErrTimeout
			}
		}

		w := &waiter{task: q.sched.NewTask()}
		if woken {
			// Keep our place: we were woken for a slot a fresh sender
			// stole before we reacquired the lock.
			q.senders.pushFront(w)
		} else {
			q.senders.pushBack(w)
		}
		q.mu.Unlock()

		cause, err := q.sched.Block(ctx, w.task, remaining)

		q.mu.Lock()
		if err != nil {
			if q.senders.remove(w) {
				// Removed from the wait set exactly once, by us.
				q.mu.Unlock()
				if errors.Is(err, sched.ErrTimeout) {
					return ErrTimeout
				}
				return err
			}
			// A wakeup won the race; its cause is already in flight.
			cause = w.task.Consume()
		}
		if cause == sched.CauseClosed {
			q.mu.Unlock()
			return ErrEndpointClosed
		}
		woken = true
	}
}

// TryEnqueue is the non-blocking variant: same algorithm with the
// blocking step replaced by ErrQueueFull.
func (q *Queue) TryEnqueue(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrEndpointClosed
	}
	if q.count == len(q.buf) || q.senders.len() > 0 {
		return ErrQueueFull
	}
	q.push(msg)
	q.wakeOneReceiver()
	return nil
}

// Dequeue removes and returns the head message, blocking while the
// queue is empty. Fresh receivers queue behind parked ones, mirroring
// Enqueue's treatment of senders.
//
// bufCap is the receiver's buffer capacity: an inline payload larger
// than it fails with ErrBufferTooSmall without dequeuing (negative
// disables the check; region payloads never copy).
//
// commit, if non-nil, runs under the queue lock against the head
// message just before removal; an error from it leaves the message
// queued. The kernel uses it to make capability insertion and
// dequeuing atomic.
func (q *Queue) Dequeue(ctx context.Context, bufCap int, timeout time.Duration, commit func(*Message) error) (Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	q.mu.Lock()
	woken := false
	for {
		if q.count > 0 && (woken || q.receivers.len() == 0) {
			head := &q.buf[q.head]
			if bufCap >= 0 && head.Payload.Kind() == PayloadInline && head.Payload.Len() > bufCap {
				// The message stays queued; hand the delivery to the
				// next parked receiver so it is not stranded.
				q.wakeOneReceiver()
				q.mu.Unlock()
				return Message{}, ErrBufferTooSmall
			}
			if commit != nil {
				if err := commit(head); err != nil {
					q.wakeOneReceiver()
					q.mu.Unlock()
					return Message{}, err
				}
			}
			msg := q.pop()
			q.wakeOneSender()
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Message{}, ErrEndpointClosed
		}

		var remaining time.Duration
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				q.mu.Unlock()
				return Message{}, ErrTimeout
			}
		}

		w := &waiter{task: q.sched.NewTask()}
		if woken {
			// Keep our place: we were woken for a message a chained
			// wakeup consumed before we reacquired the lock.
			q.receivers.pushFront(w)
		} else {
			q.receivers.pushBack(w)
		}
		q.mu.Unlock()

		cause, err := q.sched.Block(ctx, w.task, remaining)

		q.mu.Lock()
		if err != nil {
			if q.receivers.remove(w) {
				q.mu.Unlock()
				if errors.Is(err, sched.ErrTimeout) {
					return Message{}, ErrTimeout
				}
				return Message{}, err
			}
			cause = w.task.Consume()
		}
		if cause == sched.CauseClosed {
			q.mu.Unlock()
			return Message{}, ErrEndpointClosed
		}
		woken = true
	}
}

// TryDequeue is the non-blocking variant: ErrQueueEmpty instead of
// blocking.
func (q *Queue) TryDequeue(bufCap int, commit func(*Message) error) (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 || q.receivers.len() > 0 {
		if q.closed {
			return Message{}, ErrEndpointClosed
		}
		return Message{}, ErrQueueEmpty
	}
	head := &q.buf[q.head]
	if bufCap >= 0 && head.Payload.Kind() == PayloadInline && head.Payload.Len() > bufCap {
		return Message{}, ErrBufferTooSmall
	}
	if commit != nil {
		if err := commit(head); err != nil {
			return Message{}, err
		}
	}
	msg := q.pop()
	q.wakeOneSender()
	return msg, nil
}

// Close marks the queue closed, wakes every waiter on both sides with
// CauseClosed, and returns the drained in-flight messages so their
// attached capabilities and region references can be unwound.
// Idempotent: later calls return nil.
func (q *Queue) Close() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	drained := make([]Message, 0, q.count)
	for q.count > 0 {
		drained = append(drained, q.pop())
	}
	for w := q.senders.popFront(); w != nil; w = q.senders.popFront() {
		q.sched.Wake(w.task, sched.CauseClosed)
	}
	for w := q.receivers.popFront(); w != nil; w = q.receivers.popFront() {
		q.sched.Wake(w.task, sched.CauseClosed)
	}
	return drained
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// BlockedSenders returns the sender wait set size.
func (q *Queue) BlockedSenders() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.senders.len()
}

// BlockedReceivers returns the receiver wait set size.
func (q *Queue) BlockedReceivers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.receivers.len()
}

// waiter is one parked task in a wait set.
type waiter struct {
	task *sched.Task
}

// waitList is a FIFO of waiters.
type waitList struct {
	items []*waiter
}

func (l *waitList) len() int { return len(l.items) }

func (l *waitList) pushBack(w *waiter) {
	l.items = append(l.items, w)
}

func (l *waitList) pushFront(w *waiter) {
	l.items = append([]*waiter{w}, l.items...)
}

func (l *waitList) popFront() *waiter {
	if len(l.items) == 0 {
		return nil
	}
	w := l.items[0]
	l.items = l.items[1:]
	return w
}

// remove deletes w if still present, reporting whether it did. The
// false case means a waker already popped it: the wake/cancel race is
// resolved by exactly one side.
func (l *waitList) remove(w *waiter) bool {
	for i, item := range l.items {
		if item == w {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}
