package ipc

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ferrous-os/ferrous/internal/sched"
	"github.com/ferrous-os/ferrous/internal/shared/id"
)

// EndpointID identifies an endpoint. Endpoints are only reachable
// through capabilities, so a dense kernel-issued counter suffices.
type EndpointID uint64

// String returns the decimal form.
func (e EndpointID) String() string {
	return strconv.FormatUint(uint64(e), 10)
}

// EndpointState is the lifecycle of an endpoint.
type EndpointState uint8

const (
	StateUnconnected EndpointState = iota
	StateConnected
	StateClosed
)

// String returns the string representation of the state.
func (s EndpointState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Endpoint is one side of a bidirectional channel. Each endpoint owns
// the queue it receives from; sending goes into the peer's queue. The
// pair is symmetric once connected.
type Endpoint struct {
	id    EndpointID
	owner id.ProcessID

	mu    sync.Mutex
	state EndpointState
	peer  *Endpoint
	queue *Queue
}

// ID returns the endpoint's identity.
func (e *Endpoint) ID() EndpointID { return e.id }

// Owner returns the creating process.
func (e *Endpoint) Owner() id.ProcessID { return e.owner }

// State returns the current lifecycle state.
func (e *Endpoint) State() EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Peer returns the connected peer's ID, or zero.
func (e *Endpoint) Peer() EndpointID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peer == nil {
		return 0
	}
	return e.peer.id
}

// RecvQueue returns the queue this endpoint receives from, after
// checking it is in a receivable state.
func (e *Endpoint) RecvQueue() (*Queue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateUnconnected:
		return nil, ErrNotConnected
	case StateClosed:
		return nil, ErrEndpointClosed
	}
	return e.queue, nil
}

// SendQueue returns the peer's queue, the destination of a send.
func (e *Endpoint) SendQueue() (*Queue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateUnconnected:
		return nil, ErrNotConnected
	case StateClosed:
		return nil, ErrEndpointClosed
	}
	return e.peer.queue, nil
}

// QueueDepth returns the number of messages waiting on this endpoint.
func (e *Endpoint) QueueDepth() int {
	return e.queue.Len()
}

// Queue returns the endpoint's receive queue without a state check.
// Introspection only; send and receive paths go through SendQueue and
// RecvQueue.
func (e *Endpoint) Queue() *Queue {
	return e.queue
}

const registryShards = 16

type registryShard struct {
	mu        sync.RWMutex
	endpoints map[EndpointID]*Endpoint
}

// Registry tracks all live endpoints, sharded to keep creation and
// lookup off each other's locks.
type Registry struct {
	sched  sched.Scheduler
	nextID atomic.Uint64
	shards [registryShards]registryShard
}

// NewRegistry creates an empty registry whose endpoints park blocked
// tasks on s.
func NewRegistry(s sched.Scheduler) *Registry {
	r := &Registry{sched: s}
	for i := range r.shards {
		r.shards[i].endpoints = make(map[EndpointID]*Endpoint)
	}
	return r
}

func (r *Registry) shard(eid EndpointID) *registryShard {
	return &r.shards[uint64(eid)%registryShards]
}

// Create registers a new unconnected endpoint owned by owner, with a
// receive queue of the given capacity (DefaultQueueCapacity if
// non-positive).
func (r *Registry) Create(owner id.ProcessID, capacity int) *Endpoint {
	ep := &Endpoint{
		id:    EndpointID(r.nextID.Add(1)),
		owner: owner,
		state: StateUnconnected,
		queue: NewQueue(capacity, r.sched),
	}
	s := r.shard(ep.id)
	s.mu.Lock()
	s.endpoints[ep.id] = ep
	s.mu.Unlock()
	return ep
}

// Get looks up an endpoint by ID.
func (r *Registry) Get(eid EndpointID) (*Endpoint, error) {
	s := r.shard(eid)
	s.mu.RLock()
	ep, ok := s.endpoints[eid]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidEndpoint
	}
	return ep, nil
}

// Connect joins two unconnected endpoints into a channel. Fails with
// ErrInvalidEndpoint if either is missing, already connected, closed,
// or the two are the same endpoint.
func (r *Registry) Connect(a, b EndpointID) error {
	if a == b {
		return ErrInvalidEndpoint
	}
	ea, err := r.Get(a)
	if err != nil {
		return err
	}
	eb, err := r.Get(b)
	if err != nil {
		return err
	}

	// Lock in ID order so concurrent Connect calls on overlapping
	// pairs cannot deadlock.
	first, second := ea, eb
	if eb.id < ea.id {
		first, second = eb, ea
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if ea.state != StateUnconnected || eb.state != StateUnconnected {
		return ErrInvalidEndpoint
	}
	ea.state = StateConnected
	eb.state = StateConnected
	ea.peer = eb
	eb.peer = ea
	return nil
}

// Close transitions an endpoint and its peer (if any) to closed, wakes
// every blocked sender and receiver on both queues, and returns the
// drained in-flight messages from both directions so attached
// capabilities and region references can be unwound. Idempotent.
func (r *Registry) Close(eid EndpointID) ([]Message, error) {
	ep, err := r.Get(eid)
	if err != nil {
		return nil, err
	}

	ep.mu.Lock()
	if ep.state == StateClosed {
		ep.mu.Unlock()
		return nil, nil
	}
	ep.state = StateClosed
	peer := ep.peer
	ep.mu.Unlock()

	drained := ep.queue.Close()
	if peer != nil {
		peer.mu.Lock()
		peer.state = StateClosed
		peer.mu.Unlock()
		drained = append(drained, peer.queue.Close()...)
	}
	return drained, nil
}

// Remove deletes an endpoint from the registry. The endpoint must be
// closed first; live endpoints are kept visible for introspection.
func (r *Registry) Remove(eid EndpointID) {
	s := r.shard(eid)
	s.mu.Lock()
	delete(s.endpoints, eid)
	s.mu.Unlock()
}

// Count returns the number of registered endpoints.
func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.endpoints)
		s.mu.RUnlock()
	}
	return n
}

// Each calls fn for every registered endpoint. fn must not call back
// into the registry.
func (r *Registry) Each(fn func(*Endpoint)) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, ep := range s.endpoints {
			fn(ep)
		}
		s.mu.RUnlock()
	}
}
