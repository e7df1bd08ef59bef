package events

import (
	"sync"
)

// DefaultJournalSize is the default ring capacity.
const DefaultJournalSize = 4096

// Journal is a bounded in-memory ring of recent events with live
// subscription fan-out. It backs the monitor API's event endpoints.
type Journal struct {
	mu    sync.RWMutex
	buf   []Event
	head  int
	count int
	subs  map[chan Event]struct{}
}

// NewJournal creates a journal holding up to size events.
func NewJournal(size int) *Journal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	return &Journal{
		buf:  make([]Event, size),
		subs: make(map[chan Event]struct{}),
	}
}

// Emit implements Sink. The oldest event is overwritten when the ring
// is full; slow subscribers miss events rather than block the kernel.
func (j *Journal) Emit(e Event) {
	j.mu.Lock()
	tail := (j.head + j.count) % len(j.buf)
	j.buf[tail] = e
	if j.count == len(j.buf) {
		j.head = (j.head + 1) % len(j.buf)
	} else {
		j.count++
	}
	for ch := range j.subs {
		select {
		case ch <- e:
		default:
		}
	}
	j.mu.Unlock()
}

// Tail returns up to n most recent events, oldest first.
func (j *Journal) Tail(n int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > j.count {
		n = j.count
	}
	out := make([]Event, 0, n)
	for i := j.count - n; i < j.count; i++ {
		out = append(out, j.buf[(j.head+i)%len(j.buf)])
	}
	return out
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

// Subscribe registers a live event channel. The returned cancel
// function unregisters it and closes the channel.
func (j *Journal) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	j.mu.Lock()
	j.subs[ch] = struct{}{}
	j.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, ch)
			j.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
